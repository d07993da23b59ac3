package models

// HostInfo holds static OS details captured once at startup
type HostInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Kernel        string `json:"kernel"`
	Arch          string `json:"arch"`
	CPUModel      string `json:"cpu_model"`
	PhysicalCores int    `json:"physical_cores"`
	LogicalCores  int    `json:"logical_cores"`
}

// CapabilitySet is the set of optional telemetry sources that were
// found at startup. It never changes afterwards.
type CapabilitySet struct {
	Accelerator        bool     `json:"accelerator"`
	AcceleratorBackend string   `json:"accelerator_backend"`
	AcceleratorCount   int      `json:"accelerator_count"`
	AcceleratorNames   []string `json:"accelerator_names"`
	DriverVersion      string   `json:"driver_version,omitempty"`
	Containers         bool     `json:"containers"`
	Latency            bool     `json:"latency"`
	LatencyTarget      string   `json:"latency_target,omitempty"`
}
