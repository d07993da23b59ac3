package collector

import (
	"context"
	"errors"
	"fmt"

	"neurodash-agent/models"
)

// Accelerator backend selectors.
const (
	AcceleratorAuto = "auto"
	AcceleratorNVML = "nvml"
	AcceleratorNone = "none"
)

// DetectCapabilities chooses the optional sources once and caches the
// result for the process lifetime. Later calls return the cached set.
func (p *HardwareProbe) DetectCapabilities(ctx context.Context) models.CapabilitySet {
	p.capsOnce.Do(func() {
		p.accel = p.detectAccelerator()
		p.containers = p.detectContainers(ctx)
		p.pinger = p.detectPinger()

		names := p.accel.Devices()
		caps := models.CapabilitySet{
			Accelerator:        len(names) > 0,
			AcceleratorBackend: p.accel.Name(),
			AcceleratorCount:   len(names),
			AcceleratorNames:   append([]string{}, names...),
			DriverVersion:      p.accel.DriverVersion(),
			Containers:         p.containers != nil,
			Latency:            p.pinger != nil,
		}
		if p.pinger != nil {
			caps.LatencyTarget = p.pinger.Target()
		}
		p.caps = caps

		p.logCap("Accelerator", caps.Accelerator, fmt.Sprintf("backend=%s devices=%d", caps.AcceleratorBackend, caps.AcceleratorCount))
		p.logCap("Containers", caps.Containers, "docker")
		p.logCap("Latency", caps.Latency, caps.LatencyTarget)
	})
	return p.caps
}

func (p *HardwareProbe) logCap(name string, available bool, detail string) {
	status := "unavailable"
	if available {
		status = "enabled"
	}
	p.logger.Info("Capability", "name", name, "status", status, "detail", detail)
}

func (p *HardwareProbe) detectAccelerator() AcceleratorBackend {
	if p.opts.Accelerators != nil {
		return p.opts.Accelerators
	}

	switch p.opts.Accelerator {
	case AcceleratorNone:
		return NullBackend{}
	case AcceleratorNVML, AcceleratorAuto, "":
	default:
		p.logger.Info("Unknown accelerator backend, accelerator telemetry disabled", "backend", p.opts.Accelerator)
		return NullBackend{}
	}

	backend, err := newNVMLBackend(p.logger.WithName("nvml"))
	if err != nil {
		if errors.Is(err, ErrProbeUnavailable) && p.opts.Accelerator != AcceleratorNVML {
			p.logger.Info("No accelerator telemetry, running in CPU-only mode", "reason", err.Error())
		} else {
			p.logger.Error(err, "Accelerator backend requested but not usable")
		}
		return NullBackend{}
	}
	return backend
}

func (p *HardwareProbe) detectContainers(ctx context.Context) ContainerSource {
	if p.opts.ContainerSource != nil {
		return p.opts.ContainerSource
	}
	if !p.opts.Containers {
		return nil
	}
	src, err := newDockerSource(ctx)
	if err != nil {
		p.logger.Info("Container telemetry disabled", "reason", err.Error())
		return nil
	}
	return src
}

func (p *HardwareProbe) detectPinger() Pinger {
	if p.opts.Pinger != nil {
		return p.opts.Pinger
	}
	if p.opts.PingTarget == "" {
		return nil
	}
	pinger, err := newICMPPinger(p.opts.PingTarget, p.opts.PingPrivileged, p.opts.PingTimeout)
	if err != nil {
		p.logger.Info("Latency probe disabled", "reason", err.Error())
		return nil
	}
	return pinger
}
