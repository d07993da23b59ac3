// Package config resolves the agent settings. Layers, lowest first:
// built-in defaults, a YAML file, .env plus the process environment,
// command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = pflag.ErrHelp

// Config holds the agent configuration.
type Config struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	HistorySize      int      `yaml:"history_size"`
	UpdateIntervalMS int      `yaml:"update_interval"`
	TopProcesses     int      `yaml:"top_processes"`
	DiskPaths        []string `yaml:"disk_paths"`
	Accelerator      string   `yaml:"accelerator"`
	Containers       bool     `yaml:"containers"`
	PingTarget       string   `yaml:"ping_target"`
	PingPrivileged   bool     `yaml:"ping_privileged"`
	LogLevel         string   `yaml:"log_level"`
	LogFormat        string   `yaml:"log_format"`

	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	disk := "/"
	if runtime.GOOS == "windows" {
		disk = `C:\`
	}
	return &Config{
		Host:             "0.0.0.0",
		Port:             9999,
		HistorySize:      60,
		UpdateIntervalMS: 1000,
		TopProcesses:     10,
		DiskPaths:        []string{disk},
		Accelerator:      "auto",
		Containers:       true,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// UpdateInterval is the sampling period.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects settings the agent can not run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.HistorySize < 1 || c.HistorySize > 100000 {
		errs = append(errs, fmt.Errorf("history size %d out of range 1-100000", c.HistorySize))
	}
	if c.UpdateIntervalMS < 10 || c.UpdateIntervalMS > 3600000 {
		errs = append(errs, fmt.Errorf("update interval %dms out of range 10-3600000", c.UpdateIntervalMS))
	}
	if c.TopProcesses < 0 || c.TopProcesses > 1000 {
		errs = append(errs, fmt.Errorf("top processes %d out of range 0-1000", c.TopProcesses))
	}
	if len(c.DiskPaths) == 0 {
		errs = append(errs, errors.New("at least one disk path is required"))
	}
	switch c.Accelerator {
	case "auto", "nvml", "none":
	default:
		errs = append(errs, fmt.Errorf("accelerator %q is not one of auto, nvml, none", c.Accelerator))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Load builds the configuration from args (without the program name),
// the environment and an optional YAML file.
func Load(args []string) (*Config, error) {
	cfg := Default()
	flags, opts := newFlagSet(cfg)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if rest := flags.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", rest[0])
	}

	// Missing .env is fine, plain environment is used then.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := getEnv("CONFIG_FILE", "")
	if flags.Changed("config") {
		path = opts.configFile
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	applyEnv(cfg)
	applyFlags(cfg, flags, opts)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Usage prints flag help.
func Usage() string {
	flags, _ := newFlagSet(Default())
	return flags.FlagUsages()
}

type flagValues struct {
	configFile     string
	host           string
	port           int
	historySize    int
	updateInterval int
	top            int
	disks          []string
	accelerator    string
	containers     bool
	pingTarget     string
	pingPrivileged bool
	logLevel       string
	logFormat      string
}

func newFlagSet(def *Config) (*pflag.FlagSet, *flagValues) {
	v := &flagValues{}
	fs := pflag.NewFlagSet("neurodash-agent", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&v.configFile, "config", "", "YAML config file (env CONFIG_FILE)")
	fs.StringVar(&v.host, "host", def.Host, "listen host (env HOST)")
	fs.IntVar(&v.port, "port", def.Port, "listen port (env PORT)")
	fs.IntVar(&v.historySize, "history-size", def.HistorySize, "samples kept per history channel (env HISTORY_SIZE)")
	fs.IntVar(&v.updateInterval, "update-interval", def.UpdateIntervalMS, "sampling period in milliseconds (env UPDATE_INTERVAL)")
	fs.IntVar(&v.top, "top", def.TopProcesses, "number of top processes reported (env TOP_PROCESSES)")
	fs.StringSliceVar(&v.disks, "disk", def.DiskPaths, "mount points to report, repeatable (env DISK_PATHS)")
	fs.StringVar(&v.accelerator, "accelerator", def.Accelerator, "accelerator backend: auto, nvml or none (env ACCELERATOR)")
	fs.BoolVar(&v.containers, "containers", def.Containers, "report Docker containers (env CONTAINERS)")
	fs.StringVar(&v.pingTarget, "ping-target", def.PingTarget, "host to measure ICMP latency to (env PING_TARGET)")
	fs.BoolVar(&v.pingPrivileged, "ping-privileged", def.PingPrivileged, "use raw ICMP sockets (env PING_PRIVILEGED)")
	fs.StringVar(&v.logLevel, "log-level", def.LogLevel, "trace, debug, info, warn or error (env LOG_LEVEL)")
	fs.StringVar(&v.logFormat, "log-format", def.LogFormat, "json or console (env LOG_FORMAT)")
	return fs, v
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.HistorySize = getEnvInt("HISTORY_SIZE", cfg.HistorySize)
	cfg.UpdateIntervalMS = getEnvInt("UPDATE_INTERVAL", cfg.UpdateIntervalMS)
	cfg.TopProcesses = getEnvInt("TOP_PROCESSES", cfg.TopProcesses)
	if disks := splitList(os.Getenv("DISK_PATHS")); len(disks) > 0 {
		cfg.DiskPaths = disks
	}
	cfg.Accelerator = strings.ToLower(getEnv("ACCELERATOR", cfg.Accelerator))
	cfg.Containers = getEnvBool("CONTAINERS", cfg.Containers)
	cfg.PingTarget = getEnv("PING_TARGET", cfg.PingTarget)
	cfg.PingPrivileged = getEnvBool("PING_PRIVILEGED", cfg.PingPrivileged)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
}

func applyFlags(cfg *Config, fs *pflag.FlagSet, v *flagValues) {
	if fs.Changed("host") {
		cfg.Host = v.host
	}
	if fs.Changed("port") {
		cfg.Port = v.port
	}
	if fs.Changed("history-size") {
		cfg.HistorySize = v.historySize
	}
	if fs.Changed("update-interval") {
		cfg.UpdateIntervalMS = v.updateInterval
	}
	if fs.Changed("top") {
		cfg.TopProcesses = v.top
	}
	if fs.Changed("disk") {
		cfg.DiskPaths = v.disks
	}
	if fs.Changed("accelerator") {
		cfg.Accelerator = strings.ToLower(v.accelerator)
	}
	if fs.Changed("containers") {
		cfg.Containers = v.containers
	}
	if fs.Changed("ping-target") {
		cfg.PingTarget = v.pingTarget
	}
	if fs.Changed("ping-privileged") {
		cfg.PingPrivileged = v.pingPrivileged
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(v.logLevel)
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(v.logFormat)
	}
}

// getEnv returns the variable, or fallback when it is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt keeps fallback when the variable is unset or not a number.
func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
