package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8341", cfg.Run.Listen)
	assert.Equal(t, 300*time.Second, cfg.Run.LockTTL)
	assert.EqualValues(t, 10<<20, cfg.Asset.MaxSize)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikora.toml")
	body := `
[global]
data_dir = "/srv/wiki"
log_level = "debug"

[run]
listen = "0.0.0.0:9000"
lock_ttl = "120s"

[asset]
max_size = 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/wiki", cfg.Global.DataDir)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.Run.Listen)
	assert.Equal(t, 120*time.Second, cfg.Run.LockTTL)
	assert.EqualValues(t, 1<<20, cfg.Asset.MaxSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Run.ReaperInterval)
	assert.Equal(t, filepath.Join("/srv/wiki", "wikora.db"), cfg.DBPath())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Run.Listen = "127.0.0.1:1234"
	require.NoError(t, cfg.Write(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", got.Run.Listen)
}
