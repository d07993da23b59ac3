// Package sampler drives the fixed-interval telemetry loop: probe the
// host, record every history channel, publish a fresh snapshot.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"neurodash-agent/clock"
	"neurodash-agent/collector"
	"neurodash-agent/history"
	"neurodash-agent/models"
	"neurodash-agent/snapshot"

	"github.com/go-logr/logr"
)

// History channel names.
const (
	ChannelCPUTotal  = "cpu_total_pct"
	ChannelMemUsed   = "mem_used_bytes"
	ChannelMemPct    = "mem_used_pct"
	ChannelSwapPct   = "swap_used_pct"
	ChannelLoad1     = "load1"
	ChannelNetRx     = "net_rx_bps"
	ChannelNetTx     = "net_tx_bps"
	ChannelPingRTTMs = "ping_rtt_ms"
)

// DiskChannel names the usage channel of one volume.
func DiskChannel(path string) string { return "disk_used_pct:" + path }

// AcceleratorChannels names the four channels of accelerator i.
func AcceleratorChannels(i int) (load, memPct, temp, power string) {
	prefix := fmt.Sprintf("accel%d_", i)
	return prefix + "load_pct", prefix + "mem_used_pct", prefix + "temperature_c", prefix + "power_draw_w"
}

// Probe is what the sampler needs from the hardware layer.
type Probe interface {
	SampleSystem(ctx context.Context) (models.SystemMetrics, error)
	SampleAccelerators(ctx context.Context) []models.AcceleratorSample
	SampleProcesses(ctx context.Context, k int) []models.ProcessInfo
	SampleContainers(ctx context.Context) []models.ContainerInfo
	Misses() map[string]uint64
}

// State reports what the loop is doing.
type State int32

const (
	Idle State = iota
	Ticking
	Publishing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ticking:
		return "ticking"
	case Publishing:
		return "publishing"
	}
	return "unknown"
}

// Config fixes the loop parameters and the channel set.
type Config struct {
	Interval     time.Duration
	TopProcesses int
	Capabilities models.CapabilitySet
	Host         models.HostInfo
	DiskPaths    []string
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

// Sampler is the only writer of the history store and the publisher.
type Sampler struct {
	logger    logr.Logger
	probe     Probe
	store     *history.Store
	publisher *snapshot.Publisher
	cfg       Config
	clock     clock.Clock

	channels  []string
	lastAccel map[string]float64
	seq       uint64
	state     atomic.Int32
}

// New registers every channel the configuration implies on store.
func New(logger logr.Logger, probe Probe, store *history.Store, publisher *snapshot.Publisher, cfg Config, opts ...Option) (*Sampler, error) {
	if probe == nil || store == nil || publisher == nil {
		return nil, errors.New("sampler: probe, store and publisher are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sampler: interval must be positive, got %v", cfg.Interval)
	}
	if cfg.TopProcesses < 0 {
		return nil, fmt.Errorf("sampler: top processes must not be negative, got %d", cfg.TopProcesses)
	}

	s := &Sampler{
		logger:    logger.WithName("sampler"),
		probe:     probe,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock.Real(),
		lastAccel: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.channels = []string{ChannelCPUTotal, ChannelMemUsed, ChannelMemPct, ChannelSwapPct}
	for _, path := range cfg.DiskPaths {
		s.channels = append(s.channels, DiskChannel(path))
	}
	s.channels = append(s.channels, ChannelLoad1, ChannelNetRx, ChannelNetTx)
	if cfg.Capabilities.Latency {
		s.channels = append(s.channels, ChannelPingRTTMs)
	}
	for i := 0; i < cfg.Capabilities.AcceleratorCount; i++ {
		load, mem, temp, power := AcceleratorChannels(i)
		s.channels = append(s.channels, load, mem, temp, power)
	}

	for _, ch := range s.channels {
		if err := store.Register(ch); err != nil {
			return nil, fmt.Errorf("register channel %q: %w", ch, err)
		}
	}
	return s, nil
}

// Channels returns the registered channel names in registration order.
func (s *Sampler) Channels() []string {
	return append([]string{}, s.channels...)
}

// State is safe to call from any goroutine.
func (s *Sampler) State() State {
	return State(s.state.Load())
}

// Run ticks once immediately and then on every ticker delivery until ctx
// is done. It returns nil on cancellation and the probe error when the
// probe reports a fatal failure.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Sampler started", "interval", s.cfg.Interval, "channels", len(s.channels))
	defer func() { s.logger.Info("Sampler stopped", "seq", s.seq) }()

	for {
		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sampler) tick(ctx context.Context) error {
	s.state.Store(int32(Ticking))
	defer s.state.Store(int32(Idle))

	started := s.clock.Now()

	sys, err := s.probe.SampleSystem(ctx)
	if err != nil {
		var fatal *collector.FatalProbeError
		if errors.As(err, &fatal) {
			s.logger.Error(err, "Fatal probe failure")
		}
		return err
	}
	accels := s.probe.SampleAccelerators(ctx)
	procs := s.probe.SampleProcesses(ctx, s.cfg.TopProcesses)
	containers := s.probe.SampleContainers(ctx)

	// Cancelled mid-probe: the readings may be partial.
	if err := ctx.Err(); err != nil {
		return err
	}

	sample := &models.Sample{
		Seq:          s.seq + 1,
		Timestamp:    started,
		System:       sys,
		Accelerators: nonNil(accels),
		TopProcesses: nonNil(procs),
		Containers:   nonNil(containers),
	}

	if err := s.store.Append(sample.Timestamp, s.decompose(sample)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	s.state.Store(int32(Publishing))
	snap := &models.Snapshot{
		Sample:       sample,
		History:      s.store.Snapshot(),
		Host:         s.cfg.Host,
		Capabilities: s.cfg.Capabilities,
		Misses:       s.probe.Misses(),
	}
	if err := s.publisher.Publish(snap); err != nil {
		return fmt.Errorf("publish seq %d: %w", sample.Seq, err)
	}
	s.seq = sample.Seq

	s.logger.V(1).Info("Tick published", "seq", sample.Seq, "took", s.clock.Now().Sub(started))
	return nil
}

// decompose maps a sample onto the channel set. An accelerator missing
// from the sample repeats its previous values.
func (s *Sampler) decompose(sample *models.Sample) map[string]float64 {
	sys := sample.System
	values := map[string]float64{
		ChannelCPUTotal: sys.CPU.TotalPct,
		ChannelMemUsed:  float64(sys.Memory.UsedBytes),
		ChannelMemPct:   sys.Memory.UsedPct,
		ChannelSwapPct:  sys.Memory.SwapUsedPct,
		ChannelLoad1:    sys.Load.Load1,
		ChannelNetRx:    sys.Network.RxBps,
		ChannelNetTx:    sys.Network.TxBps,
	}
	for _, path := range s.cfg.DiskPaths {
		values[DiskChannel(path)] = 0
	}
	for _, d := range sys.Disks {
		if _, ok := values[DiskChannel(d.Path)]; ok {
			values[DiskChannel(d.Path)] = d.UsedPct
		}
	}
	if s.cfg.Capabilities.Latency {
		values[ChannelPingRTTMs] = sys.Network.PingRTTMs
	}

	for _, a := range sample.Accelerators {
		if a.Index < 0 || a.Index >= s.cfg.Capabilities.AcceleratorCount {
			continue
		}
		load, mem, temp, power := AcceleratorChannels(a.Index)
		s.lastAccel[load] = a.LoadPct
		s.lastAccel[mem] = a.MemUsedPct()
		s.lastAccel[temp] = a.TemperatureC
		s.lastAccel[power] = a.PowerDrawW
	}
	for i := 0; i < s.cfg.Capabilities.AcceleratorCount; i++ {
		load, mem, temp, power := AcceleratorChannels(i)
		for _, ch := range []string{load, mem, temp, power} {
			values[ch] = s.lastAccel[ch]
		}
	}
	return values
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
