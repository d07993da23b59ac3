package collector

import (
	"context"
	"sort"
	"sync"

	"neurodash-agent/models"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSource lists the visible processes with their current CPU and
// memory usage. Order and length are unconstrained; ranking happens in
// RankProcesses.
type ProcessSource interface {
	Processes(ctx context.Context) ([]models.ProcessInfo, error)
}

// gopsutilProcesses keeps process handles between ticks: gopsutil
// computes CPU percent with interval 0 as a delta against the previous
// call on the same handle.
type gopsutilProcesses struct {
	mu    sync.Mutex
	cache map[int32]*process.Process
}

func newGopsutilProcesses() *gopsutilProcesses {
	return &gopsutilProcesses{cache: make(map[int32]*process.Process)}
}

func (s *gopsutilProcesses) Processes(ctx context.Context) ([]models.ProcessInfo, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int32]*process.Process, len(pids))
	procList := make([]models.ProcessInfo, 0, len(pids))

	for _, pid := range pids {
		p, ok := s.cache[pid]
		if !ok {
			p, err = process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}

		cpuPct, err := p.PercentWithContext(ctx, 0)
		if err != nil {
			cpuPct = 0
		}

		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			memPct = 0
		}

		seen[pid] = p
		procList = append(procList, models.ProcessInfo{
			PID:    pid,
			Name:   name,
			CPUPct: cpuPct,
			MemPct: float64(memPct),
		})
	}

	// Exited processes drop out of the cache here.
	s.cache = seen
	return procList, nil
}

// processScore normalizes CPU percent (per-core scale) by the number of
// logical cores and returns the larger of it and memory percent.
func processScore(p models.ProcessInfo, logicalCores int) float64 {
	cpuPct := p.CPUPct
	if logicalCores > 0 {
		cpuPct /= float64(logicalCores)
	}
	return max(clampPct(cpuPct), clampPct(p.MemPct))
}

// RankProcesses sets Score on every entry, sorts by descending score
// with ties broken by ascending PID, and returns at most k entries.
// The input slice is not modified.
func RankProcesses(procs []models.ProcessInfo, logicalCores, k int) []models.ProcessInfo {
	if k <= 0 {
		return []models.ProcessInfo{}
	}

	ranked := make([]models.ProcessInfo, len(procs))
	copy(ranked, procs)
	for i := range ranked {
		ranked[i].Score = processScore(ranked[i], logicalCores)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].PID < ranked[j].PID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
