package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/config"
	"github.com/mpreviati/bandvault/pkg/facade"
	"github.com/mpreviati/bandvault/pkg/migration"
)

const usage = `bandvault - music collection metadata manager

Usage:
  bandvault init [-force]
  bandvault scan [-config path] [-root path]
  bandvault validate [-config path] [-root path]
  bandvault migrate -band name -type migration-type [-dry-run] [-no-backup] [-force] [-exclude a,b] [-config path] [-root path]
  bandvault history [-n count] [-config path] [-root path]

Migration types: default_to_enhanced, legacy_to_default, mixed_to_enhanced, enhanced_to_default
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	flags := flag.NewFlagSet(command, flag.ExitOnError)

	configPath := flags.String("config", "", "Path to configuration file")
	root := flags.String("root", "", "Music collection root (overrides configuration)")
	force := flags.Bool("force", false, "Continue past errors (migrate) or overwrite (init)")

	band := flags.String("band", "", "Band folder name to migrate")
	migrationType := flags.String("type", "", "Migration type")
	dryRun := flags.Bool("dry-run", false, "Plan the migration without touching disk")
	noBackup := flags.Bool("no-backup", false, "Skip the pre-migration backup")
	exclude := flags.String("exclude", "", "Comma-separated album names to skip")

	historyCount := flags.Int("n", 10, "Number of scan reports to show")

	_ = flags.Parse(os.Args[2:])

	if command == "init" {
		path, err := config.InitConfig(*force)
		if err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *root != "" {
		cfg.Collection.MusicRootPath = *root
	}
	if cfg.Collection.MusicRootPath == "" {
		log.Fatalf("No music root configured; pass -root or set collection.music_root_path")
	}

	logger.SetLevel(cfg.Logging.Level)
	if cfg.Logging.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	// Cancel in-flight work on SIGINT/SIGTERM so locks get released.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	library, err := facade.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := library.Close(); err != nil {
			logger.Warn("close failed: %v", err)
		}
	}()

	switch command {
	case "scan":
		report, err := library.Scan(ctx)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		printJSON(report)

	case "validate":
		report, err := library.Validate(ctx)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		printJSON(report)
		if !report.Clean() {
			os.Exit(1)
		}

	case "migrate":
		if *band == "" || *migrationType == "" {
			log.Fatalf("migrate requires -band and -type")
		}
		opts := migration.Options{
			DryRun:         *dryRun,
			BackupOriginal: !*noBackup,
			Force:          *force,
			Exclude:        splitList(*exclude),
			Progress: func(message string, percent float64) {
				logger.Info("[%3.0f%%] %s", percent, message)
			},
		}
		result, err := library.Migrate(ctx, *band, *migrationType, opts)
		if result != nil {
			printJSON(result)
		}
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		if result.Status != migration.StatusSuccess {
			os.Exit(1)
		}

	case "history":
		entries, err := library.RecentScans(ctx, *historyCount)
		if err != nil {
			log.Fatalf("Failed to read scan history: %v", err)
		}
		if entries == nil {
			fmt.Println("Scan history is disabled; enable history.enabled in configuration")
			return
		}
		printJSON(entries)

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
