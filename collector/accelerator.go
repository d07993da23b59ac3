package collector

import (
	"context"

	"neurodash-agent/models"
)

// AcceleratorBackend is the GPU telemetry capability. It is chosen once
// at startup: either a vendor backend with at least one device, or
// NullBackend.
type AcceleratorBackend interface {
	Name() string
	// Devices returns device names ordered by index.
	Devices() []string
	DriverVersion() string
	// Sample reads every device. A failed device yields a result with
	// Err set; the other devices are unaffected.
	Sample(ctx context.Context) []DeviceResult
	// ProcessMemory maps PID to accelerator memory in bytes.
	ProcessMemory(ctx context.Context) map[int32]uint64
	Close() error
}

// DeviceResult is the outcome of reading one accelerator.
type DeviceResult struct {
	Index  int
	Sample models.AcceleratorSample
	Err    error
}

// NullBackend is the backend for machines without accelerator telemetry.
type NullBackend struct{}

func (NullBackend) Name() string { return "none" }

func (NullBackend) Devices() []string { return nil }

func (NullBackend) DriverVersion() string { return "" }

func (NullBackend) Sample(context.Context) []DeviceResult { return nil }

func (NullBackend) ProcessMemory(context.Context) map[int32]uint64 { return nil }

func (NullBackend) Close() error { return nil }
