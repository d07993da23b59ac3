package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"neurodash-agent/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// SystemSource reads OS level metrics. Each method is one sub-read that
// may fail on its own without affecting the others.
type SystemSource interface {
	// Check verifies the OS metrics API is usable at all.
	Check(ctx context.Context) error
	HostInfo(ctx context.Context) (models.HostInfo, error)
	CPUPercent(ctx context.Context, perCore bool) ([]float64, error)
	VirtualMemory(ctx context.Context) (used, total uint64, err error)
	SwapMemory(ctx context.Context) (used, total uint64, err error)
	DiskUsage(ctx context.Context, path string) (used, total uint64, err error)
	Load(ctx context.Context) (models.LoadInfo, error)
	NetCounters(ctx context.Context) (sent, recv uint64, err error)
	Uptime(ctx context.Context) (uint64, error)
}

// gopsutilSource is the SystemSource used in production.
type gopsutilSource struct{}

func newGopsutilSource() *gopsutilSource {
	return &gopsutilSource{}
}

// Check reads memory and core count and primes the CPU percent baseline,
// so the first tick reports usage since startup instead of since boot.
func (s *gopsutilSource) Check(ctx context.Context) error {
	if _, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		return fmt.Errorf("virtual memory: %w", err)
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return fmt.Errorf("cpu counts: %w", err)
	}
	if n < 1 {
		return errors.New("cpu counts: no logical cores reported")
	}
	if _, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		return fmt.Errorf("cpu percent: %w", err)
	}
	_, _ = cpu.PercentWithContext(ctx, 0, true)
	return nil
}

func (s *gopsutilSource) HostInfo(ctx context.Context) (models.HostInfo, error) {
	info := models.HostInfo{Arch: runtime.GOARCH, OS: runtime.GOOS}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("host info: %w", err)
	}
	info.Hostname = hostInfo.Hostname
	info.OS = hostInfo.OS + " " + hostInfo.Platform + " " + hostInfo.PlatformVersion
	info.Kernel = hostInfo.KernelVersion
	if hostInfo.KernelArch != "" {
		info.Arch = hostInfo.KernelArch
	}

	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cleanCPUModel(cpuInfo[0].ModelName)
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.PhysicalCores = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCores = n
	}
	return info, nil
}

// CPUPercent uses interval 0, i.e. usage since the previous call.
func (s *gopsutilSource) CPUPercent(ctx context.Context, perCore bool) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, perCore)
}

func (s *gopsutilSource) VirtualMemory(ctx context.Context) (uint64, uint64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return v.Used, v.Total, nil
}

func (s *gopsutilSource) SwapMemory(ctx context.Context) (uint64, uint64, error) {
	v, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return v.Used, v.Total, nil
}

func (s *gopsutilSource) DiskUsage(ctx context.Context, path string) (uint64, uint64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	return u.Used, u.Total, nil
}

// Load returns zeros on Windows, which has no load average.
func (s *gopsutilSource) Load(ctx context.Context) (models.LoadInfo, error) {
	if runtime.GOOS == "windows" {
		return models.LoadInfo{}, nil
	}
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return models.LoadInfo{}, err
	}
	return models.LoadInfo{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

// NetCounters returns byte counters aggregated over all interfaces.
func (s *gopsutilSource) NetCounters(ctx context.Context) (uint64, uint64, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(counters) == 0 {
		return 0, 0, errors.New("no network counters")
	}
	return counters[0].BytesSent, counters[0].BytesRecv, nil
}

func (s *gopsutilSource) Uptime(ctx context.Context) (uint64, error) {
	return host.UptimeWithContext(ctx)
}

// DefaultDiskPath is the volume watched when none is configured.
func DefaultDiskPath() string {
	if runtime.GOOS == "windows" {
		return "C:\\"
	}
	return "/"
}
