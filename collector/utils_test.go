package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCPUModel(t *testing.T) {
	tests := map[string]string{
		"Intel(R) Core(TM) i7-9700K CPU @ 3.60GHz": "Intel Core i7-9700K @ 3.60GHz",
		"AMD Ryzen 9 7950X 16-Core Processor":      "AMD Ryzen 9 7950X 16-Core Processor",
		"  Apple   M2 ":                            "Apple M2",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanCPUModel(in))
	}
}

func TestUsedPct(t *testing.T) {
	assert.Equal(t, 25.0, usedPct(25, 100))
	assert.Zero(t, usedPct(10, 0))
	assert.Equal(t, 100.0, usedPct(200, 100))
}

func TestClampPct(t *testing.T) {
	assert.Zero(t, clampPct(-3))
	assert.Equal(t, 100.0, clampPct(250))
	assert.Equal(t, 42.5, clampPct(42.5))
}
