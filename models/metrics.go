package models

import "time"

// CPUInfo holds CPU stats for one tick
type CPUInfo struct {
	TotalPct   float64   `json:"total_pct"`
	PerCorePct []float64 `json:"per_core_pct"`
}

// MemoryInfo holds RAM and Swap stats
type MemoryInfo struct {
	UsedBytes      uint64  `json:"used_bytes"`
	TotalBytes     uint64  `json:"total_bytes"`
	UsedPct        float64 `json:"used_pct"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
	SwapTotalBytes uint64  `json:"swap_total_bytes"`
	SwapUsedPct    float64 `json:"swap_used_pct"`
}

// DiskUsage holds usage of one mounted volume
type DiskUsage struct {
	Path       string  `json:"path"`
	UsedBytes  uint64  `json:"used_bytes"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

// LoadInfo holds Load Average stats (zero on Windows)
type LoadInfo struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// SystemMetrics is the OS part of a tick: everything the system source
// reports, after carry-forward has been applied.
type SystemMetrics struct {
	CPU           CPUInfo     `json:"cpu"`
	Memory        MemoryInfo  `json:"mem"`
	Disks         []DiskUsage `json:"disks"`
	Load          LoadInfo    `json:"load"`
	Network       NetworkInfo `json:"network"`
	UptimeSeconds uint64      `json:"uptime_seconds"`
}

// AcceleratorSample holds one GPU's telemetry for one tick
type AcceleratorSample struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	LoadPct       float64 `json:"load_pct"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	TemperatureC  float64 `json:"temperature_c"`
	PowerDrawW    float64 `json:"power_draw_w"`
	PowerLimitW   float64 `json:"power_limit_w"`
	FanPct        float64 `json:"fan_pct"`
	PCIeRxBps     uint64  `json:"pcie_rx_bps"`
	PCIeTxBps     uint64  `json:"pcie_tx_bps"`
}

// MemUsedPct returns VRAM usage in percent, 0 when the total is unknown.
func (a AcceleratorSample) MemUsedPct() float64 {
	if a.MemTotalBytes == 0 {
		return 0
	}
	return float64(a.MemUsedBytes) / float64(a.MemTotalBytes) * 100
}

// Sample is the immutable record produced by one tick
type Sample struct {
	Seq          uint64              `json:"seq"`
	Timestamp    time.Time           `json:"timestamp"`
	System       SystemMetrics       `json:"system"`
	Accelerators []AcceleratorSample `json:"accelerators"`
	TopProcesses []ProcessInfo       `json:"processes"`
	Containers   []ContainerInfo     `json:"containers"`
}

// Point is one entry of a history series
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Snapshot is the externally visible state: the latest Sample plus the
// history read-outs taken right after that Sample was absorbed.
// Published snapshots must be treated as read-only.
type Snapshot struct {
	Sample       *Sample            `json:"sample"`
	History      map[string][]Point `json:"history"`
	Host         HostInfo           `json:"host"`
	Capabilities CapabilitySet      `json:"capabilities"`
	Misses       map[string]uint64  `json:"misses"`
}

// Seq returns the tick number of the held sample, 0 when empty.
func (s *Snapshot) Seq() uint64 {
	if s == nil || s.Sample == nil {
		return 0
	}
	return s.Sample.Seq
}
