package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
	"github.com/omeyang/multikeylock/pkg/util/xkeylock"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultFileConfig(), cfg)
	assert.Equal(t, xkeylock.RegistrySharded, cfg.Lock.Registry)
	assert.Equal(t, xlog.LevelInfo, cfg.Log.Level)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "lock.yaml", `
lock:
  registry: xsync
  timeout: 250ms
  initial_backoff: 2ms
  max_backoff: 40ms
  max_attempts: 7
  jitter: 0.2
log:
  level: debug
  format: json
  rotation:
    filename: /tmp/xkeylockctl.log
    max_backups: 3
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, xkeylock.RegistryXsync, cfg.Lock.Registry)
	assert.Equal(t, 250*time.Millisecond, cfg.Lock.Timeout)
	assert.Equal(t, 2*time.Millisecond, cfg.Lock.InitialBackoff)
	assert.Equal(t, 40*time.Millisecond, cfg.Lock.MaxBackoff)
	assert.Equal(t, 7, cfg.Lock.MaxAttempts)
	assert.InDelta(t, 0.2, cfg.Lock.Jitter, 1e-9)
	assert.Equal(t, xkeylock.DefaultBackoffMultiplier, cfg.Lock.BackoffMultiplier, "unset keys keep defaults")

	assert.Equal(t, xlog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, xlog.FormatJSON, cfg.Log.Format)
	assert.Equal(t, "/tmp/xkeylockctl.log", cfg.Log.Rotation.Filename)
	assert.Equal(t, 3, cfg.Log.Rotation.MaxBackups)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "lock.json", `{"lock": {"shard_count": 64, "timeout": "1s"}}`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Lock.ShardCount)
	assert.Equal(t, time.Second, cfg.Lock.Timeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{"unsupported_ext", func(t *testing.T) string { return writeFile(t, "lock.toml", "") }, errUnsupportedFormat},
		{"missing_file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }, errLoadConfig},
		{"malformed_yaml", func(t *testing.T) string { return writeFile(t, "bad.yaml", "lock: [unclosed") }, errLoadConfig},
		{"bad_level", func(t *testing.T) string { return writeFile(t, "lvl.yaml", "log:\n  level: loud\n") }, errLoadConfig},
		{"invalid_lock", func(t *testing.T) string {
			return writeFile(t, "inv.yaml", "lock:\n  shard_count: 3\n")
		}, xkeylock.ErrInvalidConfig},
		{"unknown_registry", func(t *testing.T) string {
			return writeFile(t, "reg.yaml", "lock:\n  registry: btree\n")
		}, xkeylock.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.path(t))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestApplyLogFlags(t *testing.T) {
	cfg := defaultFileConfig()
	require.NoError(t, cfg.applyLogFlags("", "", ""))
	assert.Equal(t, defaultFileConfig(), cfg, "empty flags leave the config untouched")

	require.NoError(t, cfg.applyLogFlags("warn", "json", "/tmp/x.log"))
	assert.Equal(t, xlog.LevelWarn, cfg.Log.Level)
	assert.Equal(t, xlog.FormatJSON, cfg.Log.Format)
	assert.Equal(t, "/tmp/x.log", cfg.Log.Rotation.Filename)

	assert.Error(t, cfg.applyLogFlags("verbose", "", ""))
}

func TestBuildLogger(t *testing.T) {
	cfg := defaultFileConfig()
	var buf bytes.Buffer
	logger, cleanup, err := cfg.buildLogger(&buf)
	require.NoError(t, err)
	defer func() { assert.NoError(t, cleanup()) }()

	logger.Info(t.Context(), "hello")
	assert.Contains(t, buf.String(), "msg=hello")

	cfg.Log.Format = "xml"
	_, _, err = cfg.buildLogger(&buf)
	assert.Error(t, err)
}

func TestBuildLogger_Rotation(t *testing.T) {
	cfg := defaultFileConfig()
	cfg.Log.Rotation.Filename = filepath.Join(t.TempDir(), "out.log")

	var stderr bytes.Buffer
	logger, cleanup, err := cfg.buildLogger(&stderr)
	require.NoError(t, err)

	logger.Info(t.Context(), "to file")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(cfg.Log.Rotation.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Empty(t, stderr.String())
}

func TestConfigView(t *testing.T) {
	cfg := defaultFileConfig()
	v := cfg.view()
	assert.Equal(t, "none", v.Lock.Timeout)
	assert.Equal(t, "10ms", v.Lock.InitialBackoff)
	assert.Equal(t, "1s", v.Lock.MaxBackoff)

	cfg.Lock.Timeout = 1500 * time.Millisecond
	assert.Equal(t, "1.5s", cfg.view().Lock.Timeout)
}
