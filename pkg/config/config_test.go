package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30, cfg.Collection.CacheDurationDays)
	assert.Contains(t, cfg.Collection.Denylist, "lost+found")
	assert.Equal(t, 10*time.Second, cfg.Storage.LockTimeout)
	assert.Equal(t, 60*time.Second, cfg.Storage.LockStaleAfter)
	assert.Equal(t, 3, cfg.Migration.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Migration.LockWait)
	assert.Equal(t, 50, cfg.History.Keep)
	assert.NotNil(t, cfg.Remote.S3)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging:    LoggingConfig{Level: "debug"},
		Collection: CollectionConfig{CacheDurationDays: 7, Denylist: []string{}},
		Migration:  MigrationConfig{MaxRetries: 1},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Collection.CacheDurationDays)
	assert.Empty(t, cfg.Collection.Denylist)
	assert.Equal(t, 1, cfg.Migration.MaxRetries)
}

func TestCacheTTL(t *testing.T) {
	cfg := CollectionConfig{CacheDurationDays: 2}
	assert.Equal(t, 48*time.Hour, cfg.CacheTTL())
}

func TestValidateRejectsBadLevel(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Collection.MusicRootPath = "/srv/music"
	cfg.Logging.Level = "LOUD"

	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidateRequiresMusicRoot(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestValidateRemoteRules(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Collection.MusicRootPath = "/srv/music"
	cfg.Remote.Enabled = true

	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket")

	cfg.Remote.S3["bucket"] = "vault"
	err = Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.region")

	cfg.Remote.S3["region"] = "eu-west-1"
	assert.NoError(t, Validate(&cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
collection:
  music_root_path: /srv/music
  cache_duration_days: 7
storage:
  lock_timeout: 5s
history:
  enabled: true
  keep: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "/srv/music", cfg.Collection.MusicRootPath)
	assert.Equal(t, 7, cfg.Collection.CacheDurationDays)
	assert.Equal(t, 5*time.Second, cfg.Storage.LockTimeout)
	// Unset sections fall back to defaults.
	assert.Equal(t, 60*time.Second, cfg.Storage.LockStaleAfter)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 10, cfg.History.Keep)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: SHOUTING\ncollection:\n  music_root_path: /srv/music\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	written, err := InitConfigToPath(path, false)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "music_root_path")
	assert.Contains(t, string(data), "BANDVAULT_")

	// The generated file must load cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/music", cfg.Collection.MusicRootPath)

	// Refuse to clobber without force.
	_, err = InitConfigToPath(path, false)
	assert.Error(t, err)

	_, err = InitConfigToPath(path, true)
	assert.NoError(t, err)
}

func TestCreateStoreHonoursConfig(t *testing.T) {
	cfg := StorageConfig{LockTimeout: time.Second, LockStaleAfter: time.Minute, DisableWriteBackup: true}
	store := CreateStore(&cfg)
	assert.NotNil(t, store)
}

func TestCreateHistoryStoreDisabled(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Collection.MusicRootPath = t.TempDir()

	store, err := CreateHistoryStore(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestCreateMirrorDisabled(t *testing.T) {
	var cfg RemoteConfig
	mirror, err := CreateMirror(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Nil(t, mirror)
}
