package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default("/srv/axon")

	assert.Equal(t, "/srv/axon/data/manifest.json", cfg.ManifestPath)
	assert.Equal(t, 2, cfg.Runner.Slots)
	assert.Equal(t, 300*time.Second, cfg.Runner.MaxCPU.Std())
	assert.Equal(t, 600*time.Second, cfg.Runner.MaxWall.Std())
	assert.Equal(t, int64(2<<30), cfg.Runner.MaxMem)
	assert.Equal(t, int64(100<<20), cfg.Runner.MaxOut)
	assert.Equal(t, 24*time.Hour, cfg.Runner.Retention.Std())
	assert.Equal(t, "process", cfg.Runner.Sandbox)
	assert.Equal(t, "/srv/axon/state", cfg.StateDir())
	assert.Equal(t, "/srv/axon/work", cfg.WorkDir())
	assert.Equal(t, "/srv/axon/state/audit.log", cfg.AuditLogPath())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "/srv/axon")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Runner.Slots)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
runner:
  slots: 4
  max_wall: 2s
  sandbox: oci
  oci_runtime: crun
approval:
  pending_ttl: 72h
`), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Runner.Slots)
	assert.Equal(t, 2*time.Second, cfg.Runner.MaxWall.Std())
	assert.Equal(t, "oci", cfg.Runner.Sandbox)
	assert.Equal(t, 72*time.Hour, cfg.Approval.PendingTTL.Std())
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(100<<20), cfg.Runner.MaxOut)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.RootDir = "" }},
		{"zero slots", func(c *Config) { c.Runner.Slots = 0 }},
		{"negative max_out", func(c *Config) { c.Runner.MaxOut = -1 }},
		{"bad sandbox", func(c *Config) { c.Runner.Sandbox = "jail" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/srv/axon")
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
