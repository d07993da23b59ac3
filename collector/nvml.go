package collector

import (
	"context"
	"fmt"

	"neurodash-agent/models"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/go-logr/logr"
)

// gpuDevice is the part of nvml.Device the backend reads each tick.
type gpuDevice interface {
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetFanSpeed() (uint32, nvml.Return)
	GetPcieThroughput(nvml.PcieUtilCounter) (uint32, nvml.Return)
	GetComputeRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
}

type nvmlUnit struct {
	index       int
	name        string
	powerLimitW float64
	dev         gpuDevice
}

// nvmlBackend reads NVIDIA GPUs through NVML (libnvidia-ml).
type nvmlBackend struct {
	logger   logr.Logger
	units    []nvmlUnit
	driver   string
	shutdown func() nvml.Return
}

// newNVMLBackend initializes NVML and opens every device. Any failure
// to load the library or find a device is ErrProbeUnavailable.
func newNVMLBackend(logger logr.Logger) (backend *nvmlBackend, err error) {
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("nvml: %v: %w", r, ErrProbeUnavailable)
		}
	}()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s: %w", nvml.ErrorString(ret), ErrProbeUnavailable)
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS || count == 0 {
		nvml.Shutdown()
		return nil, fmt.Errorf("nvml: no devices (%s): %w", nvml.ErrorString(ret), ErrProbeUnavailable)
	}

	b := &nvmlBackend{logger: logger, shutdown: nvml.Shutdown}
	if driver, ret := nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		b.driver = driver
	}

	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			logger.Info("Skipping GPU", "index", i, "reason", nvml.ErrorString(ret))
			continue
		}
		unit := nvmlUnit{index: len(b.units), name: fmt.Sprintf("GPU %d", i), dev: dev}
		if name, ret := dev.GetName(); ret == nvml.SUCCESS {
			unit.name = name
		}
		if mw, ret := dev.GetEnforcedPowerLimit(); ret == nvml.SUCCESS {
			unit.powerLimitW = float64(mw) / 1000
		}
		b.units = append(b.units, unit)
	}

	if len(b.units) == 0 {
		nvml.Shutdown()
		return nil, fmt.Errorf("nvml: no device handle could be opened: %w", ErrProbeUnavailable)
	}
	return b, nil
}

func (b *nvmlBackend) Name() string { return "nvml" }

func (b *nvmlBackend) Devices() []string {
	names := make([]string, len(b.units))
	for i, u := range b.units {
		names[i] = u.name
	}
	return names
}

func (b *nvmlBackend) DriverVersion() string { return b.driver }

func (b *nvmlBackend) Sample(ctx context.Context) []DeviceResult {
	results := make([]DeviceResult, 0, len(b.units))
	for _, u := range b.units {
		s, err := readUnit(u)
		results = append(results, DeviceResult{Index: u.index, Sample: s, Err: err})
	}
	return results
}

func (b *nvmlBackend) ProcessMemory(ctx context.Context) map[int32]uint64 {
	usage := make(map[int32]uint64)
	for _, u := range b.units {
		procs, ret := u.dev.GetComputeRunningProcesses()
		if ret != nvml.SUCCESS {
			continue
		}
		for _, p := range procs {
			usage[int32(p.Pid)] += p.UsedGpuMemory
		}
	}
	return usage
}

func (b *nvmlBackend) Close() error {
	if b.shutdown == nil {
		return nil
	}
	if ret := b.shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}

// readUnit fails only when utilization or memory can not be read.
// Thermals, power, fan and PCIe are optional and stay 0 when the device
// does not support them.
func readUnit(u nvmlUnit) (models.AcceleratorSample, error) {
	s := models.AcceleratorSample{
		Index:       u.index,
		Name:        u.name,
		PowerLimitW: u.powerLimitW,
	}

	util, ret := u.dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return s, fmt.Errorf("gpu %d utilization: %s", u.index, nvml.ErrorString(ret))
	}
	s.LoadPct = clampPct(float64(util.Gpu))

	memInfo, ret := u.dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return s, fmt.Errorf("gpu %d memory: %s", u.index, nvml.ErrorString(ret))
	}
	s.MemUsedBytes = memInfo.Used
	s.MemTotalBytes = memInfo.Total

	if temp, ret := u.dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		s.TemperatureC = float64(temp)
	}
	if mw, ret := u.dev.GetPowerUsage(); ret == nvml.SUCCESS {
		s.PowerDrawW = float64(mw) / 1000
	}
	if fan, ret := u.dev.GetFanSpeed(); ret == nvml.SUCCESS {
		s.FanPct = clampPct(float64(fan))
	}
	// NVML reports PCIe throughput in KB/s.
	if rx, ret := u.dev.GetPcieThroughput(nvml.PCIE_UTIL_RX_BYTES); ret == nvml.SUCCESS {
		s.PCIeRxBps = uint64(rx) * 1024
	}
	if tx, ret := u.dev.GetPcieThroughput(nvml.PCIE_UTIL_TX_BYTES); ret == nvml.SUCCESS {
		s.PCIeTxBps = uint64(tx) * 1024
	}
	return s, nil
}
