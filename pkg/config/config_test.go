package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matchcore.yaml")
	yaml := `
server:
  host: 0.0.0.0
  port: 7000
  max_frame_bytes: 8192
  shutdown_timeout: 10s
  accept_backlog: 256
  conn_admission_rps: 100
admin:
  enabled: true
  addr: 127.0.0.1:9191
logging:
  level: debug
  format: console
matching:
  order_book_depth: 10
  publisher_pool_size: 32
  snapshot_cache_ttl_sec: 2
auth:
  mode: allow-all
rate_limit:
  session_messages_per_sec: 200
  session_burst: 400
events:
  publisher: noop
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 32, cfg.Matching.PublisherPoolSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matchcore.yaml")
	yaml := `
server:
  host: 0.0.0.0
  port: 0
admin:
  enabled: false
logging:
  level: info
  format: json
matching:
  order_book_depth: 5
  publisher_pool_size: 1
  snapshot_cache_ttl_sec: 1
auth:
  mode: allow-all
rate_limit:
  session_messages_per_sec: 1
  session_burst: 1
events:
  publisher: noop
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	assert.Error(t, err, "port=0 fails the gt=0 validation tag")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/matchcore.yaml")
	assert.Error(t, err)
}
