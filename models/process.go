package models

// ProcessInfo is one entry of the top process list
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPct        float64 `json:"cpu_pct"`
	MemPct        float64 `json:"mem_pct"`
	AccelMemBytes uint64  `json:"accel_mem_bytes"`
	Score         float64 `json:"score"`
}
