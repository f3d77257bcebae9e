package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configHeader is prepended to generated configuration files.
const configHeader = `# bandvault configuration file
#
# Every value below can also be set through environment variables with the
# BANDVAULT_ prefix, e.g. BANDVAULT_COLLECTION_MUSIC_ROOT_PATH=/srv/music.
# Environment variables take precedence over this file.

`

// InitConfig writes a default configuration file at the default location.
//
// Returns the path of the written file. An existing file is not overwritten
// unless force is set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file at path.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Collection.MusicRootPath = "/srv/music"

	// yaml.v3 renders the mapstructure field names via the yaml tags the
	// encoder derives from the lowercased field names, so marshal a plain
	// map keyed like the mapstructure tags instead.
	data, err := yaml.Marshal(defaultConfigTree(&cfg))
	if err != nil {
		return "", fmt.Errorf("failed to encode default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// defaultConfigTree lays the config out with the same keys viper reads.
func defaultConfigTree(cfg *Config) map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"output": cfg.Logging.Output,
		},
		"collection": map[string]any{
			"music_root_path":     cfg.Collection.MusicRootPath,
			"cache_duration_days": cfg.Collection.CacheDurationDays,
			"denylist":            cfg.Collection.Denylist,
		},
		"storage": map[string]any{
			"lock_timeout":     cfg.Storage.LockTimeout.String(),
			"lock_stale_after": cfg.Storage.LockStaleAfter.String(),
		},
		"migration": map[string]any{
			"max_retries": cfg.Migration.MaxRetries,
			"lock_wait":   cfg.Migration.LockWait.String(),
		},
		"history": map[string]any{
			"enabled": cfg.History.Enabled,
			"keep":    cfg.History.Keep,
		},
		"remote": map[string]any{
			"enabled": cfg.Remote.Enabled,
			"s3": map[string]any{
				"region":     "",
				"bucket":     "",
				"key_prefix": "bandvault-backups",
			},
		},
	}
}
