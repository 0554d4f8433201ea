package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Default(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, StoreFile, cfg.Sessions.Store)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "toolbake.yaml", `
tools: tools
log_level: debug
runtime:
  deadline: 2s
  remote: true
  processes: procs.yaml
sessions:
  store: redis
  ttl: 1h
  redact: ["password"]
redis:
  addr: redis:6379
  lock: true
server:
  port: 9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "tools"), cfg.Tools)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Runtime.Deadline)
	assert.True(t, cfg.Runtime.Remote)
	assert.Equal(t, filepath.Join(dir, "procs.yaml"), cfg.Runtime.Processes)
	assert.Equal(t, StoreRedis, cfg.Sessions.Store)
	assert.Equal(t, time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, []string{"password"}, cfg.Sessions.RedactPatterns)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Lock)
	assert.Equal(t, 9000, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "stdio", cfg.MCP.Transport)
	assert.Equal(t, 200, cfg.Runtime.LogCapacity)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "toolbake.toml", `
log_level = "warn"

[runtime]
deadline = "500ms"

[mcp]
transport = "sse"
port = 9100
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.Deadline)
	assert.Equal(t, "sse", cfg.MCP.Transport)
	assert.Equal(t, 9100, cfg.MCP.Port)
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "toolbake.json", `{"sessions": {"store": "memory"}, "server": {"port": 7000}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Sessions.Store)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(write(t, dir, "toolbake.ini", "x=1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(write(t, dir, "unknown.yaml", "nope: 1"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(write(t, dir, "broken.yaml", "runtime: ["))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, Find(dir))

	write(t, dir, "toolbake.toml", "")
	assert.Equal(t, filepath.Join(dir, "toolbake.toml"), Find(dir))

	write(t, dir, "toolbake.yaml", "")
	assert.Equal(t, filepath.Join(dir, "toolbake.yaml"), Find(dir), "yaml wins")
}
