package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved. Booleans default to false, so every toggle is named for its
// non-default state.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCollectionDefaults(&cfg.Collection)
	applyStorageDefaults(&cfg.Storage)
	applyMigrationDefaults(&cfg.Migration)
	applyHistoryDefaults(&cfg.History)
	applyRemoteDefaults(&cfg.Remote)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyCollectionDefaults(cfg *CollectionConfig) {
	if cfg.CacheDurationDays == 0 {
		cfg.CacheDurationDays = 30
	}
	if cfg.Denylist == nil {
		cfg.Denylist = []string{"lost+found", "@eaDir", "System Volume Information", "$RECYCLE.BIN"}
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.LockStaleAfter == 0 {
		cfg.LockStaleAfter = 60 * time.Second
	}
}

func applyMigrationDefaults(cfg *MigrationConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.LockWait == 0 {
		cfg.LockWait = 30 * time.Second
	}
}

func applyHistoryDefaults(cfg *HistoryConfig) {
	if cfg.Keep == 0 {
		cfg.Keep = 50
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}
