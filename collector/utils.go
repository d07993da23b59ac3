package collector

import (
	"os"
	"strings"
)

// cleanCPUModel strips vendor marks from a CPU model string, e.g.
// "Intel(R) Core(TM) i7-9700K CPU @ 3.60GHz" -> "Intel Core i7-9700K @ 3.60GHz".
func cleanCPUModel(model string) string {
	r := strings.NewReplacer("(R)", "", "(TM)", "", " CPU", "")
	return strings.Join(strings.Fields(r.Replace(model)), " ")
}

// usedPct returns used/total in percent, 0 when total is 0.
func usedPct(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return clampPct(float64(used) / float64(total) * 100)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
