package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServer(t *testing.T) {
	cfg := DefaultServer()
	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, 2323, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 50, cfg.MaxNameLen)
	assert.Equal(t, 0, cfg.IdleQueueTimeoutSeconds)
	assert.Equal(t, 5, cfg.ShutdownGraceSeconds)
}

func TestLoadServer_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServer(), cfg)
}

func TestLoadServer_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := "bind_address: 127.0.0.1\nport: 9999\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.BindAddress)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.MaxNameLen) // untouched field keeps its default
}

func TestLoadServer_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bind_address: [this is not valid"), 0o644))

	_, err := LoadServer(path)
	assert.Error(t, err)
}
