package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurodash-agent/api"
	"neurodash-agent/collector"
	"neurodash-agent/config"
	"neurodash-agent/history"
	"neurodash-agent/logging"
	"neurodash-agent/sampler"
	"neurodash-agent/snapshot"
)

// Build info
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			fmt.Fprintf(os.Stdout, "Usage of neurodash-agent:\n%s", config.Usage())
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfig
	}

	logger, flush, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return exitConfig
	}
	defer flush()

	logger.Info("NeuroDash agent starting", "version", version, "commit", commit, "built", date)
	logger.Info("Configuration",
		"addr", cfg.Addr(),
		"interval", cfg.UpdateInterval(),
		"historySize", cfg.HistorySize,
		"top", cfg.TopProcesses,
		"disks", cfg.DiskPaths,
		"configFile", cfg.ConfigFile)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probe, err := collector.NewHardwareProbe(ctx, logger, collector.Options{
		DiskPaths:      cfg.DiskPaths,
		Accelerator:    cfg.Accelerator,
		Containers:     cfg.Containers,
		PingTarget:     cfg.PingTarget,
		PingPrivileged: cfg.PingPrivileged,
	})
	if err != nil {
		logger.Error(err, "Cannot read system metrics")
		return exitFatal
	}
	defer func() {
		if err := probe.Close(); err != nil {
			logger.Error(err, "Closing probe")
		}
	}()

	caps := probe.DetectCapabilities(ctx)
	host := probe.Host(ctx)
	logger.Info("Host", "hostname", host.Hostname, "os", host.OS, "kernel", host.Kernel,
		"cpu", host.CPUModel, "cores", host.LogicalCores)

	store, err := history.NewStore(cfg.HistorySize)
	if err != nil {
		logger.Error(err, "Creating history store")
		return exitConfig
	}
	publisher := snapshot.NewPublisher()

	smp, err := sampler.New(logger, probe, store, publisher, sampler.Config{
		Interval:     cfg.UpdateInterval(),
		TopProcesses: cfg.TopProcesses,
		Capabilities: caps,
		Host:         host,
		DiskPaths:    probe.DiskPaths(),
	})
	if err != nil {
		logger.Error(err, "Creating sampler")
		return exitConfig
	}

	server := api.NewServer(logger, cfg.Addr(), publisher, api.WithVersion(version))
	if err := server.Start(); err != nil {
		logger.Error(err, "Cannot start HTTP server")
		return exitFatal
	}

	samplerErr := make(chan error, 1)
	go func() { samplerErr <- smp.Run(ctx) }()

	code := exitOK
	samplerDone := false
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-samplerErr:
		samplerDone = true
		if err != nil {
			logger.Error(err, "Sampler stopped")
			code = exitFatal
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP shutdown")
	}
	if !samplerDone {
		<-samplerErr
	}
	return code
}
