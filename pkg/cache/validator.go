// Package cache implements per-document freshness checking and
// backward-compatible schema migration for band metadata documents.
//
// A document is consulted through the validator before any layer trusts it:
// the validator reports whether the cached copy is missing, stale, corrupt,
// or usable, and upgrades documents written by older releases in place.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// Status describes the cache state of one document.
type Status int

const (
	// StatusMissing means no document exists at the path.
	StatusMissing Status = iota

	// StatusValid means the document parses and is within its TTL.
	StatusValid

	// StatusExpired means the document's last-modified time exceeds the TTL.
	StatusExpired

	// StatusCorrupted means the document is within its TTL but does not parse.
	StatusCorrupted
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// DefaultTTL is the default document freshness window.
const DefaultTTL = 30 * 24 * time.Hour

// Validator checks document freshness and migrates legacy schemas.
type Validator struct {
	store *storage.Store
	ttl   time.Duration
}

// New creates a Validator over the given store. A non-positive ttl falls
// back to DefaultTTL.
func New(store *storage.Store, ttl time.Duration) *Validator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Validator{store: store, ttl: ttl}
}

// Status reports the cache state of the document at path.
//
// Expiry is judged before structural integrity: a stale document is reported
// StatusExpired whether or not it still parses, so callers refresh it instead
// of repairing it.
func (v *Validator) Status(ctx context.Context, path string) (Status, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusMissing, nil
		}
		return StatusMissing, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to stat document: %v", err), path, err)
	}

	if time.Since(info.ModTime()) > v.ttl {
		return StatusExpired, nil
	}

	var probe map[string]any
	if err := v.store.Load(ctx, path, &probe); err != nil {
		if collection.IsCode(err, collection.ErrCorrupt) {
			return StatusCorrupted, nil
		}
		return StatusMissing, err
	}
	return StatusValid, nil
}

// Migrate upgrades the document at path to the current schema version.
//
// The original file is copied to a dated backup before anything is written.
// Re-running on an already current document is a no-op: the document is
// returned unchanged and no backup is created.
func (v *Validator) Migrate(ctx context.Context, path string) (*collection.BandDocument, bool, error) {
	raw, err := v.store.LoadRaw(ctx, path)
	if err != nil {
		return nil, false, err
	}

	if !needsMigration(raw) {
		var doc collection.BandDocument
		if err := v.store.Load(ctx, path, &doc); err != nil {
			return nil, false, err
		}
		return &doc, false, nil
	}

	backupPath := fmt.Sprintf("%s%s_%s", path, storage.BackupSuffix, time.Now().Format("20060102T150405"))
	if err := copyFile(path, backupPath); err != nil {
		return nil, false, err
	}

	doc, err := upgradeDocument(raw)
	if err != nil {
		return nil, false, collection.WrapError(collection.ErrCorrupt,
			fmt.Sprintf("failed to upgrade legacy document: %v", err), path, err)
	}

	if err := v.store.Save(ctx, path, doc); err != nil {
		return nil, false, err
	}
	logger.Info("migrated %s to schema %s (backup at %s)", path, collection.MetadataVersion, backupPath)
	return doc, true, nil
}

// needsMigration reports whether raw carries an old schema version or any
// field only legacy writers produce.
func needsMigration(raw map[string]any) bool {
	if version, _ := raw["metadata_version"].(string); version != collection.MetadataVersion {
		return true
	}
	for _, listKey := range []string{"albums", "albums_missing"} {
		list, _ := raw[listKey].([]any)
		for _, item := range list {
			album, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, legacy := album["tracks_count"]; legacy {
				return true
			}
		}
	}
	return false
}

// legacyAlbum is the loose shape albums take in documents written by any
// past release. WeaklyTypedInput tolerates years stored as strings and
// counts stored as floats.
type legacyAlbum struct {
	Name        string   `mapstructure:"name"`
	Year        int      `mapstructure:"year"`
	Type        string   `mapstructure:"type"`
	Edition     string   `mapstructure:"edition"`
	TrackCount  *int     `mapstructure:"track_count"`
	TracksCount *int     `mapstructure:"tracks_count"`
	Duration    string   `mapstructure:"duration"`
	Genres      []string `mapstructure:"genres"`
	FolderPath  string   `mapstructure:"folder_path"`
}

// upgradeDocument rebuilds a current-schema BandDocument from a loose map.
// Fields introduced by newer schema versions are backfilled with zero
// values; the legacy tracks_count spelling is folded into track_count.
func upgradeDocument(raw map[string]any) (*collection.BandDocument, error) {
	type legacyDocument struct {
		BandName      string         `mapstructure:"band_name"`
		Formed        string         `mapstructure:"formed"`
		Genres        []string       `mapstructure:"genres"`
		Origin        string         `mapstructure:"origin"`
		Members       []string       `mapstructure:"members"`
		Description   string         `mapstructure:"description"`
		Albums          []legacyAlbum  `mapstructure:"albums"`
		AlbumsMissing   []legacyAlbum  `mapstructure:"albums_missing"`
		Analysis        map[string]any `mapstructure:"analysis"`
		FolderStructure map[string]any `mapstructure:"folder_structure"`
		LastUpdated     string         `mapstructure:"last_updated"`
		LastSaved       string         `mapstructure:"last_metadata_saved"`
	}

	var legacy legacyDocument
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &legacy,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	doc := &collection.BandDocument{
		BandName:        legacy.BandName,
		Formed:          legacy.Formed,
		Genres:          legacy.Genres,
		Origin:          legacy.Origin,
		Members:         legacy.Members,
		Description:     legacy.Description,
		Albums:          upgradeAlbums(legacy.Albums),
		AlbumsMissing:   upgradeAlbums(legacy.AlbumsMissing),
		Analysis:        legacy.Analysis,
		FolderStructure: upgradeFolderStructure(legacy.FolderStructure),
		MetadataVersion: collection.MetadataVersion,
		LastUpdated:     parseLegacyTime(legacy.LastUpdated),
		LastSaved:       parseLegacyTime(legacy.LastSaved),
	}
	doc.Normalize()
	return doc, nil
}

// upgradeFolderStructure rebuilds the structure block when the legacy
// document carried one. An undecodable block is dropped rather than failing
// the whole migration.
func upgradeFolderStructure(raw map[string]any) *collection.FolderStructure {
	if len(raw) == 0 {
		return nil
	}
	var legacy struct {
		StructureType string   `mapstructure:"structure_type"`
		TypeFolders   []string `mapstructure:"type_folders"`
		DetectedAt    string   `mapstructure:"detected_at"`
	}
	if err := mapstructure.WeakDecode(raw, &legacy); err != nil {
		return nil
	}
	return &collection.FolderStructure{
		StructureType: collection.StructureType(legacy.StructureType),
		TypeFolders:   legacy.TypeFolders,
		DetectedAt:    parseLegacyTime(legacy.DetectedAt),
	}
}

func upgradeAlbums(legacy []legacyAlbum) []collection.AlbumRecord {
	albums := make([]collection.AlbumRecord, 0, len(legacy))
	for _, la := range legacy {
		record := collection.AlbumRecord{
			Name:       la.Name,
			Year:       la.Year,
			Type:       collection.ParseAlbumType(la.Type),
			Edition:    la.Edition,
			Duration:   la.Duration,
			Genres:     la.Genres,
			FolderPath: la.FolderPath,
		}
		switch {
		case la.TrackCount != nil:
			record.TrackCount = *la.TrackCount
		case la.TracksCount != nil:
			record.TrackCount = *la.TracksCount
		}
		if record.TrackCount < 0 {
			record.TrackCount = 0
		}
		albums = append(albums, record)
	}
	return albums
}

// parseLegacyTime accepts the formats past releases used for timestamps.
func parseLegacyTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Report lists collection-wide consistency findings. Nothing is auto-fixed;
// mismatches are surfaced for the operator to resolve.
type Report struct {
	// FoldersWithoutEntry lists band folders on disk with no index entry.
	FoldersWithoutEntry []string

	// EntriesWithoutFolder lists indexed bands whose folder is gone.
	EntriesWithoutFolder []string

	// Errors lists per-folder problems hit while checking.
	Errors []string
}

// Clean reports whether the collection passed every cross-check.
func (r *Report) Clean() bool {
	return len(r.FoldersWithoutEntry) == 0 && len(r.EntriesWithoutFolder) == 0 && len(r.Errors) == 0
}

// ValidateCollection cross-checks the index against the folders under root
// in both directions. It mutates nothing.
func (v *Validator) ValidateCollection(ctx context.Context, root string, index *collection.Index) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, collection.WrapError(collection.ErrScanning,
			fmt.Sprintf("failed to read music root: %v", err), root, err)
	}

	onDisk := make(map[string]struct{})
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) == 0 || entry.Name()[0] == '.' {
			continue
		}
		onDisk[entry.Name()] = struct{}{}
		if index.Find(entry.Name()) == nil {
			report.FoldersWithoutEntry = append(report.FoldersWithoutEntry, entry.Name())
		}
	}

	for i := range index.Entries {
		if _, ok := onDisk[index.Entries[i].Name]; !ok {
			report.EntriesWithoutFolder = append(report.EntriesWithoutFolder, index.Entries[i].Name)
		}
	}

	return report, nil
}

// copyFile duplicates src to dst, used for dated migration backups.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to open document for backup: %v", err), src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create backup directory: %v", err), dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create backup: %v", err), dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to copy backup: %v", err), dst, err)
	}
	return nil
}
