package models

// NetworkInfo holds Network I/O rates and optional ICMP latency
type NetworkInfo struct {
	RxBps     float64 `json:"rx_bps"`
	TxBps     float64 `json:"tx_bps"`
	PingRTTMs float64 `json:"ping_rtt_ms"`
}
