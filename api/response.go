package api

import (
	"sort"
	"time"

	"neurodash-agent/models"
)

// primaryChannel supplies history_timestamps; every channel shares the
// same timestamps.
const primaryChannel = "cpu_total_pct"

type usageResponse struct {
	UsedBytes  uint64  `json:"used_bytes"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

// SnapshotResponse is the JSON body of /api/snapshot and the stream.
// Lists are always arrays, never null.
type SnapshotResponse struct {
	Seq               uint64                     `json:"seq"`
	Timestamp         time.Time                  `json:"timestamp"`
	Host              models.HostInfo            `json:"host"`
	Capabilities      models.CapabilitySet       `json:"capabilities"`
	CPU               models.CPUInfo             `json:"cpu"`
	Mem               usageResponse              `json:"mem"`
	Swap              usageResponse              `json:"swap"`
	Disks             []models.DiskUsage         `json:"disks"`
	Load              models.LoadInfo            `json:"load"`
	Network           models.NetworkInfo         `json:"network"`
	UptimeSeconds     uint64                     `json:"uptime_seconds"`
	Accelerators      []models.AcceleratorSample `json:"accelerators"`
	Processes         []models.ProcessInfo       `json:"processes"`
	Containers        []models.ContainerInfo     `json:"containers"`
	History           map[string][]float64       `json:"history"`
	HistoryTimestamps []time.Time                `json:"history_timestamps"`
	Misses            map[string]uint64          `json:"misses"`
}

// HistoryResponse is the JSON body of /api/history.
type HistoryResponse struct {
	Channel string         `json:"channel"`
	Points  []models.Point `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Seq     uint64 `json:"seq"`
}

// toResponse flattens a published snapshot. snap must hold a sample.
func toResponse(snap *models.Snapshot) SnapshotResponse {
	s := snap.Sample
	sys := s.System

	resp := SnapshotResponse{
		Seq:          s.Seq,
		Timestamp:    s.Timestamp,
		Host:         snap.Host,
		Capabilities: snap.Capabilities,
		CPU:          sys.CPU,
		Mem: usageResponse{
			UsedBytes:  sys.Memory.UsedBytes,
			TotalBytes: sys.Memory.TotalBytes,
			UsedPct:    sys.Memory.UsedPct,
		},
		Swap: usageResponse{
			UsedBytes:  sys.Memory.SwapUsedBytes,
			TotalBytes: sys.Memory.SwapTotalBytes,
			UsedPct:    sys.Memory.SwapUsedPct,
		},
		Disks:             orEmpty(sys.Disks),
		Load:              sys.Load,
		Network:           sys.Network,
		UptimeSeconds:     sys.UptimeSeconds,
		Accelerators:      orEmpty(s.Accelerators),
		Processes:         orEmpty(s.TopProcesses),
		Containers:        orEmpty(s.Containers),
		History:           make(map[string][]float64, len(snap.History)),
		HistoryTimestamps: []time.Time{},
		Misses:            snap.Misses,
	}
	resp.CPU.PerCorePct = orEmpty(resp.CPU.PerCorePct)
	resp.Capabilities.AcceleratorNames = orEmpty(resp.Capabilities.AcceleratorNames)
	if resp.Misses == nil {
		resp.Misses = map[string]uint64{}
	}

	for ch, points := range snap.History {
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		resp.History[ch] = values
	}

	if points := timestampSource(snap.History); len(points) > 0 {
		resp.HistoryTimestamps = make([]time.Time, len(points))
		for i, p := range points {
			resp.HistoryTimestamps[i] = p.Timestamp
		}
	}
	return resp
}

func timestampSource(history map[string][]models.Point) []models.Point {
	if points, ok := history[primaryChannel]; ok {
		return points
	}
	names := make([]string, 0, len(history))
	for ch := range history {
		names = append(names, ch)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return history[names[0]]
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
