// Package config loads, defaults and validates the bandvault
// configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (BANDVAULT_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete bandvault configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Collection locates the music root and tunes the cache layer
	Collection CollectionConfig `mapstructure:"collection"`

	// Storage tunes the atomic document store
	Storage StorageConfig `mapstructure:"storage"`

	// Migration tunes failure recovery during folder migrations
	Migration MigrationConfig `mapstructure:"migration"`

	// History configures the scan-history database
	History HistoryConfig `mapstructure:"history"`

	// Remote configures the optional backup mirror
	Remote RemoteConfig `mapstructure:"remote"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// CollectionConfig locates and tunes the music collection.
type CollectionConfig struct {
	// MusicRootPath is the directory holding the band folders
	MusicRootPath string `mapstructure:"music_root_path" validate:"required"`

	// CacheDurationDays is the band-document freshness window
	CacheDurationDays int `mapstructure:"cache_duration_days" validate:"gte=0"`

	// Denylist names first-level directories never treated as bands
	Denylist []string `mapstructure:"denylist"`
}

// CacheTTL returns the cache duration as a time.Duration.
func (c *CollectionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheDurationDays) * 24 * time.Hour
}

// StorageConfig tunes the atomic document store.
type StorageConfig struct {
	// LockTimeout bounds how long a writer waits for a contended document
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`

	// LockStaleAfter is the age past which an abandoned lock is broken
	LockStaleAfter time.Duration `mapstructure:"lock_stale_after" validate:"gt=0"`

	// DisableWriteBackup turns off the pre-write .backup snapshot
	DisableWriteBackup bool `mapstructure:"disable_write_backup"`
}

// MigrationConfig tunes migration failure recovery.
type MigrationConfig struct {
	// MaxRetries bounds automatic retries of one failed operation
	MaxRetries int `mapstructure:"max_retries" validate:"gt=0"`

	// LockWait bounds the wait for a locked file before retrying
	LockWait time.Duration `mapstructure:"lock_wait" validate:"gt=0"`
}

// HistoryConfig configures the scan-history database.
type HistoryConfig struct {
	// Enabled turns scan-history recording on
	Enabled bool `mapstructure:"enabled"`

	// Keep is how many scan reports Prune retains
	Keep int `mapstructure:"keep" validate:"gte=0"`
}

// RemoteConfig configures the optional S3 backup mirror.
//
// Only the S3 section is read, and only when Enabled is true.
type RemoteConfig struct {
	// Enabled turns backup mirroring on
	Enabled bool `mapstructure:"enabled"`

	// S3 contains S3-specific settings (region, bucket, credentials, ...)
	S3 map[string]any `mapstructure:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: BANDVAULT_COLLECTION_MUSIC_ROOT_PATH=/srv/music
	v.SetEnvPrefix("BANDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "bandvault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bandvault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
