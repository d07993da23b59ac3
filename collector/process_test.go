package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurodash-agent/models"
)

func pids(procs []models.ProcessInfo) []int32 {
	out := make([]int32, len(procs))
	for i, p := range procs {
		out[i] = p.PID
	}
	return out
}

func TestRankProcesses(t *testing.T) {
	procs := []models.ProcessInfo{
		{PID: 5, CPUPct: 400, MemPct: 1},
		{PID: 3, CPUPct: 0, MemPct: 30},
		{PID: 9, CPUPct: 0, MemPct: 30},
		{PID: 1, CPUPct: 10, MemPct: 2},
	}

	tests := []struct {
		name  string
		cores int
		k     int
		want  []int32
	}{
		{"cpu normalized by cores", 4, 4, []int32{5, 3, 9, 1}},
		{"ties by ascending pid", 8, 4, []int32{5, 3, 9, 1}},
		{"truncated to k", 4, 2, []int32{5, 3}},
		{"k larger than list", 4, 10, []int32{5, 3, 9, 1}},
		{"many cores shrink cpu share", 40, 4, []int32{3, 9, 5, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pids(RankProcesses(procs, tt.cores, tt.k)))
		})
	}
}

func TestRankProcessesScores(t *testing.T) {
	ranked := RankProcesses([]models.ProcessInfo{
		{PID: 1, CPUPct: 800, MemPct: 10},
		{PID: 2, CPUPct: 50, MemPct: 60},
	}, 4, 5)

	require.Len(t, ranked, 2)
	assert.Equal(t, 100.0, ranked[0].Score)
	assert.Equal(t, 60.0, ranked[1].Score)
}

func TestRankProcessesEdgeCases(t *testing.T) {
	assert.Equal(t, []models.ProcessInfo{}, RankProcesses([]models.ProcessInfo{{PID: 1}}, 4, 0))
	assert.Equal(t, []models.ProcessInfo{}, RankProcesses(nil, 4, -1))

	got := RankProcesses(nil, 4, 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRankProcessesDoesNotModifyInput(t *testing.T) {
	procs := []models.ProcessInfo{{PID: 2, MemPct: 1}, {PID: 1, MemPct: 50}}
	RankProcesses(procs, 1, 1)

	assert.Equal(t, int32(2), procs[0].PID)
	assert.Zero(t, procs[0].Score)
}
