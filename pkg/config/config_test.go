package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "openr.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
node_id = "node1"

[[areas]]
area_id = "area1"
interface_regexes = ["eth.*"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node1", cfg.NodeID)
	assert.NotZero(t, cfg.LinkMon.AdvertiseThrottle)
	assert.NotZero(t, cfg.Fib.ResyncInterval)
	assert.Equal(t, ":20100", cfg.Metrics.ListenAddr)
}

func TestLoadRejectsMissingNodeID(t *testing.T) {
	path := writeTempConfig(t, `
[[areas]]
area_id = "area1"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildAreaTableCompilesRedistributeRegexes(t *testing.T) {
	path := writeTempConfig(t, `
node_id = "node1"

[[areas]]
area_id = "area1"
interface_regexes = ["eth.*"]
redistribute_regexes = ["lo.*"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	areas, err := cfg.BuildAreaTable()
	require.NoError(t, err)

	area1, ok := areas.Get("area1")
	require.True(t, ok)
	assert.True(t, area1.InterfaceEligible("eth0"))
	assert.False(t, area1.InterfaceEligible("lo"))
	assert.True(t, area1.RedistributeEligible("lo"))
	assert.False(t, area1.RedistributeEligible("eth0"))
}

func TestLoadRejectsDuplicateAreaID(t *testing.T) {
	path := writeTempConfig(t, `
node_id = "node1"

[[areas]]
area_id = "area1"

[[areas]]
area_id = "area1"
`)
	_, err := Load(path)
	assert.Error(t, err)
}
