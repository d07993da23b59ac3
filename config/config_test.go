package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "HOST", "PORT", "HISTORY_SIZE", "UPDATE_INTERVAL", "TOP_PROCESSES",
	"DISK_PATHS", "ACCELERATOR", "CONTAINERS", "PING_TARGET", "PING_PRIVILEGED",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 60, cfg.HistorySize)
	assert.Equal(t, time.Second, cfg.UpdateInterval())
	assert.Equal(t, 10, cfg.TopProcesses)
	assert.Equal(t, "auto", cfg.Accelerator)
	assert.True(t, cfg.Containers)
	assert.Empty(t, cfg.PingTarget)
	assert.Equal(t, "0.0.0.0:9999", cfg.Addr())
	assert.Len(t, cfg.DiskPaths, 1)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("HISTORY_SIZE", "120")
	t.Setenv("UPDATE_INTERVAL", "250")
	t.Setenv("DISK_PATHS", "/, /data ,")
	t.Setenv("ACCELERATOR", "NONE")
	t.Setenv("CONTAINERS", "false")
	t.Setenv("PING_TARGET", "1.1.1.1")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 120, cfg.HistorySize)
	assert.Equal(t, 250*time.Millisecond, cfg.UpdateInterval())
	assert.Equal(t, []string{"/", "/data"}, cfg.DiskPaths)
	assert.Equal(t, "none", cfg.Accelerator)
	assert.False(t, cfg.Containers)
	assert.Equal(t, "1.1.1.1", cfg.PingTarget)
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	t.Setenv("HISTORY_SIZE", "lots")
	t.Setenv("CONTAINERS", "maybe")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 60, cfg.HistorySize)
	assert.True(t, cfg.Containers)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "port: 7000\nhistory_size: 30\ntop_processes: 3\nlog_format: console\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HISTORY_SIZE", "40")

	cfg, err := Load([]string{"--top", "5"})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 40, cfg.HistorySize)
	assert.Equal(t, 5, cfg.TopProcesses)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 1000, cfg.UpdateIntervalMS)
}

func TestLoadConfigFlagWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "port: 7000\n"))
	other := writeFile(t, "port: 7001\n")

	cfg, err := Load([]string{"--config", other})
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestLoadFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")

	cfg, err := Load([]string{
		"--port", "9000", "--disk", "/", "--disk", "/scratch",
		"--accelerator", "nvml", "--containers=false", "--log-level", "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"/", "/scratch"}, cfg.DiskPaths)
	assert.Equal(t, "nvml", cfg.Accelerator)
	assert.False(t, cfg.Containers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "zero history", args: []string{"--history-size", "0"}},
		{name: "interval too short", env: map[string]string{"UPDATE_INTERVAL": "1"}},
		{name: "bad accelerator", args: []string{"--accelerator", "rocm"}},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "unknown flag", args: []string{"--nope"}},
		{name: "positional argument", args: []string{"extra"}},
		{name: "missing config file", env: map[string]string{"CONFIG_FILE": "/nonexistent/agent.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "port: [not a number\n"))

	_, err := Load(nil)
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoadHelp(t *testing.T) {
	clearEnv(t)
	_, err := Load([]string{"--help"})
	assert.True(t, errors.Is(err, ErrHelp))
	assert.Contains(t, Usage(), "--update-interval")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.TopProcesses = -1
	cfg.DiskPaths = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "top processes")
	assert.Contains(t, err.Error(), "disk path")
}
