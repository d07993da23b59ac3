// Package collector reads host telemetry: CPU, memory, swap, disks,
// load, network, processes, and the optional GPU, Docker and ICMP
// sources. Failed sub-reads never abort a tick; the last good value is
// carried forward and counted as a miss.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"neurodash-agent/clock"
	"neurodash-agent/models"

	"github.com/go-logr/logr"
)

// Sub-metric names used for miss counters.
const (
	MetricCPUTotal   = "cpu_total"
	MetricCPUPerCore = "cpu_per_core"
	MetricMemory     = "memory"
	MetricSwap       = "swap"
	MetricLoad       = "load"
	MetricNetwork    = "network"
	MetricUptime     = "uptime"
	MetricPing       = "ping"
	MetricProcesses  = "processes"
	MetricContainers = "containers"
)

// MetricDisk is the miss counter name for one volume.
func MetricDisk(path string) string { return "disk:" + path }

// MetricAccelerator is the miss counter name for one GPU.
func MetricAccelerator(index int) string { return fmt.Sprintf("accel%d", index) }

// Options configures a HardwareProbe. The source fields override the
// production implementations and are meant for tests.
type Options struct {
	DiskPaths      []string
	Accelerator    string
	Containers     bool
	PingTarget     string
	PingPrivileged bool
	PingTimeout    time.Duration

	System          SystemSource
	Processes       ProcessSource
	Accelerators    AcceleratorBackend
	ContainerSource ContainerSource
	Pinger          Pinger
	Clock           clock.Clock
	LogicalCores    int
}

// HardwareProbe produces the raw inputs of one Sample per call. Only the
// sampler goroutine calls the Sample methods; Misses may be called from
// anywhere.
type HardwareProbe struct {
	logger logr.Logger
	opts   Options
	system SystemSource
	procs  ProcessSource
	clock  clock.Clock
	cores  int

	capsOnce   sync.Once
	caps       models.CapabilitySet
	accel      AcceleratorBackend
	containers ContainerSource
	pinger     Pinger

	mu            sync.Mutex
	last          models.SystemMetrics
	lastProcs     []models.ProcessInfo
	lastContainer []models.ContainerInfo
	rates         rateCounter
	misses        map[string]uint64
}

// NewHardwareProbe checks that the OS metrics API works. When it does
// not, the error is a *FatalInitError and the process should exit.
func NewHardwareProbe(ctx context.Context, logger logr.Logger, opts Options) (*HardwareProbe, error) {
	if len(opts.DiskPaths) == 0 {
		opts.DiskPaths = []string{DefaultDiskPath()}
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 500 * time.Millisecond
	}
	if opts.System == nil {
		opts.System = newGopsutilSource()
	}
	if opts.Processes == nil {
		opts.Processes = newGopsutilProcesses()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.LogicalCores <= 0 {
		opts.LogicalCores = runtime.NumCPU()
	}

	if err := opts.System.Check(ctx); err != nil {
		return nil, &FatalInitError{Err: err}
	}

	disks := make([]models.DiskUsage, len(opts.DiskPaths))
	for i, path := range opts.DiskPaths {
		disks[i].Path = path
	}

	return &HardwareProbe{
		logger: logger.WithName("collector"),
		opts:   opts,
		system: opts.System,
		procs:  opts.Processes,
		clock:  opts.Clock,
		cores:  opts.LogicalCores,
		accel:  NullBackend{},
		last: models.SystemMetrics{
			CPU:   models.CPUInfo{PerCorePct: []float64{}},
			Disks: disks,
		},
		lastProcs:     []models.ProcessInfo{},
		lastContainer: []models.ContainerInfo{},
		misses:        make(map[string]uint64),
	}, nil
}

// Host returns static host details. Failures fall back to what the Go
// runtime knows.
func (p *HardwareProbe) Host(ctx context.Context) models.HostInfo {
	info, err := p.system.HostInfo(ctx)
	if err != nil {
		p.logger.Info("Host info incomplete", "error", err.Error())
		if info.Hostname == "" {
			info.Hostname, _ = os.Hostname()
		}
		if info.OS == "" {
			info.OS = runtime.GOOS
		}
		if info.Arch == "" {
			info.Arch = runtime.GOARCH
		}
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = p.cores
	}
	return info
}

// DiskPaths returns the watched volumes in sample order.
func (p *HardwareProbe) DiskPaths() []string {
	return append([]string{}, p.opts.DiskPaths...)
}

// miss records a failed sub-read. Callers hold p.mu.
func (p *HardwareProbe) miss(metric string, err error) {
	p.misses[metric]++
	p.logger.V(1).Info("Sub-read failed, carrying previous value forward",
		"error", (&TransientProbeError{Metric: metric, Err: err}).Error(),
		"misses", p.misses[metric])
}

// Misses returns a copy of the per sub-metric miss counters.
func (p *HardwareProbe) Misses() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uint64, len(p.misses))
	for k, v := range p.misses {
		out[k] = v
	}
	return out
}

// SampleSystem reads every OS sub-metric. A failed read keeps the
// previous tick's value. The error is non-nil only for a
// *FatalProbeError from the source or a cancelled context.
func (p *HardwareProbe) SampleSystem(ctx context.Context) (models.SystemMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.last
	var fatal error
	read := func(metric string, fn func() error) {
		if fatal != nil {
			return
		}
		err := fn()
		if err == nil {
			return
		}
		var fe *FatalProbeError
		if errors.As(err, &fe) {
			fatal = err
			return
		}
		// The tick is discarded on cancellation, so it is not a miss.
		if ctx.Err() != nil {
			return
		}
		p.miss(metric, err)
	}

	read(MetricCPUTotal, func() error {
		pct, err := p.system.CPUPercent(ctx, false)
		if err != nil {
			return err
		}
		if len(pct) == 0 {
			return errors.New("empty cpu reading")
		}
		m.CPU.TotalPct = clampPct(pct[0])
		return nil
	})

	read(MetricCPUPerCore, func() error {
		pct, err := p.system.CPUPercent(ctx, true)
		if err != nil {
			return err
		}
		cores := make([]float64, len(pct))
		for i, v := range pct {
			cores[i] = clampPct(v)
		}
		m.CPU.PerCorePct = cores
		return nil
	})

	read(MetricMemory, func() error {
		used, total, err := p.system.VirtualMemory(ctx)
		if err != nil {
			return err
		}
		m.Memory.UsedBytes, m.Memory.TotalBytes = used, total
		m.Memory.UsedPct = usedPct(used, total)
		return nil
	})

	read(MetricSwap, func() error {
		used, total, err := p.system.SwapMemory(ctx)
		if err != nil {
			return err
		}
		m.Memory.SwapUsedBytes, m.Memory.SwapTotalBytes = used, total
		m.Memory.SwapUsedPct = usedPct(used, total)
		return nil
	})

	disks := make([]models.DiskUsage, len(p.last.Disks))
	copy(disks, p.last.Disks)
	for i := range disks {
		d := &disks[i]
		read(MetricDisk(d.Path), func() error {
			used, total, err := p.system.DiskUsage(ctx, d.Path)
			if err != nil {
				return err
			}
			d.UsedBytes, d.TotalBytes = used, total
			d.UsedPct = usedPct(used, total)
			return nil
		})
	}
	m.Disks = disks

	read(MetricLoad, func() error {
		avg, err := p.system.Load(ctx)
		if err != nil {
			return err
		}
		m.Load = avg
		return nil
	})

	read(MetricNetwork, func() error {
		sent, recv, err := p.system.NetCounters(ctx)
		if err != nil {
			return err
		}
		m.Network.TxBps, m.Network.RxBps = p.rates.update(sent, recv, p.clock.Now())
		return nil
	})

	read(MetricUptime, func() error {
		up, err := p.system.Uptime(ctx)
		if err != nil {
			return err
		}
		m.UptimeSeconds = up
		return nil
	})

	if p.pinger != nil {
		read(MetricPing, func() error {
			rtt, err := p.pinger.Ping(ctx)
			if err != nil {
				return err
			}
			m.Network.PingRTTMs = float64(rtt) / float64(time.Millisecond)
			return nil
		})
	}

	if fatal != nil {
		return models.SystemMetrics{}, fatal
	}
	if err := ctx.Err(); err != nil {
		return models.SystemMetrics{}, err
	}

	p.last = m
	return m, nil
}

// SampleAccelerators returns one entry per device that could be read.
// It is empty, never nil, when the capability is absent.
func (p *HardwareProbe) SampleAccelerators(ctx context.Context) []models.AcceleratorSample {
	results := p.accel.Sample(ctx)
	out := make([]models.AcceleratorSample, 0, len(results))

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range results {
		if r.Err != nil {
			p.miss(MetricAccelerator(r.Index), r.Err)
			continue
		}
		out = append(out, r.Sample)
	}
	return out
}

// SampleProcesses returns the top k processes by score. On a failed
// listing the previous ranking is reused.
func (p *HardwareProbe) SampleProcesses(ctx context.Context, k int) []models.ProcessInfo {
	procList, err := p.procs.Processes(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.miss(MetricProcesses, err)
		return truncateProcs(p.lastProcs, k)
	}

	if accelMem := p.accel.ProcessMemory(ctx); len(accelMem) > 0 {
		for i := range procList {
			procList[i].AccelMemBytes = accelMem[procList[i].PID]
		}
	}

	ranked := RankProcesses(procList, p.cores, k)
	p.lastProcs = ranked
	return ranked
}

func truncateProcs(procs []models.ProcessInfo, k int) []models.ProcessInfo {
	if k < 0 {
		k = 0
	}
	out := make([]models.ProcessInfo, min(len(procs), k))
	copy(out, procs)
	return out
}

// SampleContainers returns the running containers, or an empty list when
// Docker is not available.
func (p *HardwareProbe) SampleContainers(ctx context.Context) []models.ContainerInfo {
	if p.containers == nil {
		return []models.ContainerInfo{}
	}
	list, err := p.containers.Containers(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.miss(MetricContainers, err)
		list = p.lastContainer
	} else {
		p.lastContainer = list
	}
	out := make([]models.ContainerInfo, len(list))
	copy(out, list)
	return out
}

// Close releases the accelerator and Docker handles.
func (p *HardwareProbe) Close() error {
	var errs []error
	if p.accel != nil {
		if err := p.accel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.containers != nil {
		if err := p.containers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
