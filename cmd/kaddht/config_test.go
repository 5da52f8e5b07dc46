package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultKaddhtConfigProducesValidOptions(t *testing.T) {
	cfg := defaultKaddhtConfig()
	opts, err := cfg.Node.toOptions()
	require.NoError(t, err)
	require.NotEmpty(t, opts)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kaddht.toml")
	contents := `
[Node]
BucketSize = 32
Concurrency = 5
Resiliency = 2
QueryTimeout = "10s"
NetworkTimeout = "5s"
RefreshInterval = "1m"
AutoRefresh = false
FilterLocalhostInResponses = false

[Demo]
NodeCount = 7
MetricsAddr = "127.0.0.1:9999"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg := defaultKaddhtConfig()
	require.NoError(t, loadConfig(path, &cfg))

	require.Equal(t, 32, cfg.Node.BucketSize)
	require.Equal(t, 7, cfg.Demo.NodeCount)
	require.Equal(t, "127.0.0.1:9999", cfg.Demo.MetricsAddr)
}

func TestLoadConfigFailsForMissingFile(t *testing.T) {
	cfg := defaultKaddhtConfig()
	err := loadConfig("/nonexistent/kaddht.toml", &cfg)
	require.Error(t, err)
}

func TestToOptionsRejectsInvalidDuration(t *testing.T) {
	cfg := defaultKaddhtConfig()
	cfg.Node.QueryTimeout = "not-a-duration"
	_, err := cfg.Node.toOptions()
	require.Error(t, err)
}
