package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMetricsSeq atomic.Int64

func writeTestConfig(t *testing.T) string {
	t.Helper()
	ns := fmt.Sprintf("gridcachectl_test_%d", testMetricsSeq.Add(1))
	contents := fmt.Sprintf(`
profile: lite
engine:
  node_order: 1
  partitions: 4
external_store:
  enabled: false
wal:
  enabled: false
metrics:
  enabled: true
  namespace: %s
`, ns)
	path := filepath.Join(t.TempDir(), "gridcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	c := NewCLI()
	root := c.GetRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPutThenGet_RoundTripsThroughCLI(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCLI(t, cfgPath, "put", "k1", "v1")
	require.NoError(t, err)

	out, err := runCLI(t, cfgPath, "get", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
}

func TestGet_MissingKeyReportsNotFound(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "get", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "not found")
}

func TestRemove_ReportsWhetherKeyWasPresent(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCLI(t, cfgPath, "put", "k1", "v1")
	require.NoError(t, err)

	out, err := runCLI(t, cfgPath, "remove", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, "removed=true")

	out, err = runCLI(t, cfgPath, "remove", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, "removed=false")
}

func TestStats_ReportsPartitionCount(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "partitions=4")
}

func TestWalCompact_FailsWhenWALDisabled(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCLI(t, cfgPath, "wal-compact")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wal.enabled")
}
