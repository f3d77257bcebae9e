// Package facade wires the bandvault components together behind the
// operations the front end consumes.
//
// Construction is explicit: New builds every dependency from the passed
// configuration, so call sites (and tests) control the root path and TTLs
// instead of reaching into process-wide state. Every operation returns
// structured data; failures surface as *collection.StoreError, never as a
// raw error from a lower layer.
package facade

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/cache"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/config"
	"github.com/mpreviati/bandvault/pkg/history"
	"github.com/mpreviati/bandvault/pkg/migration"
	"github.com/mpreviati/bandvault/pkg/remote"
	"github.com/mpreviati/bandvault/pkg/scanner"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// Library is the facade over one music collection.
type Library struct {
	root      string
	store     *storage.Store
	validator *cache.Validator
	scan      *scanner.Scanner
	engine    *migration.Engine
	recovery  *migration.Manager

	// history and mirror are nil when disabled in configuration.
	history *history.Store
	mirror  *remote.Mirror

	docValidate *validator.Validate
}

// New builds a Library and all its dependencies from cfg.
func New(ctx context.Context, cfg *config.Config) (*Library, error) {
	store := config.CreateStore(&cfg.Storage)
	recovery := migration.NewManager(cfg.Migration.MaxRetries, cfg.Migration.LockWait)
	root := cfg.Collection.MusicRootPath

	hist, err := config.CreateHistoryStore(ctx, cfg)
	if err != nil {
		return nil, wrap(err)
	}
	mirror, err := config.CreateMirror(ctx, &cfg.Remote)
	if err != nil {
		if hist != nil {
			_ = hist.Close()
		}
		return nil, wrap(err)
	}

	return &Library{
		root:        root,
		store:       store,
		validator:   cache.New(store, cfg.Collection.CacheTTL()),
		scan:        scanner.New(store, root, scanner.WithDenylist(cfg.Collection.Denylist)),
		engine:      migration.New(store, recovery, root),
		recovery:    recovery,
		history:     hist,
		mirror:      mirror,
		docValidate: validator.New(),
	}, nil
}

// Close releases held resources. The Library is unusable afterwards.
func (l *Library) Close() error {
	if l.history != nil {
		return l.history.Close()
	}
	return nil
}

// Scan reconciles the music root with stored metadata and refreshes the
// collection index. When history recording is on, the report is appended
// to the scan-history database.
func (l *Library) Scan(ctx context.Context) (*scanner.Report, error) {
	report, err := l.scan.Scan(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	if l.history != nil {
		if err := l.history.Append(ctx, report); err != nil {
			// History is advisory; the scan itself succeeded.
			logger.Warn("failed to record scan history: %v", err)
			report.ScanErrors = append(report.ScanErrors, err.Error())
		}
	}
	return report, nil
}

// SaveDocument persists a band document and refreshes its index entry.
// The document is normalized first, so the album identity invariant holds
// and timestamps reflect this write.
func (l *Library) SaveDocument(ctx context.Context, band string, doc *collection.BandDocument) error {
	if band == "" || doc == nil {
		return collection.NewStoreError(collection.ErrValidation, "band name and document are required", "")
	}
	if doc.BandName == "" {
		doc.BandName = band
	}
	if err := l.docValidate.Struct(doc); err != nil {
		return collection.WrapError(collection.ErrValidation,
			fmt.Sprintf("invalid document: %v", err), "", err)
	}

	doc.Normalize()
	doc.MetadataVersion = collection.MetadataVersion
	now := time.Now().UTC()
	doc.LastUpdated = now
	doc.LastSaved = now

	bandDir := filepath.Join(l.root, band)
	if err := l.store.Save(ctx, collection.MetadataPath(bandDir), doc); err != nil {
		return wrap(err)
	}

	index, err := l.loadOrNewIndex(ctx)
	if err != nil {
		return wrap(err)
	}
	index.Upsert(collection.EntryForDocument(doc, bandDir))
	index.RecomputeStats()
	return wrap(l.store.Save(ctx, collection.IndexPath(l.root), index))
}

// LoadDocument returns the band document, or nil when none exists.
//
// Freshness is checked before the document is trusted: a corrupted file is
// an error with recovery hints, an expired one is returned with a warning
// logged, and a legacy-schema one is migrated in place first.
func (l *Library) LoadDocument(ctx context.Context, band string) (*collection.BandDocument, error) {
	if band == "" {
		return nil, collection.NewStoreError(collection.ErrValidation, "band name is required", "")
	}
	path := collection.MetadataPath(filepath.Join(l.root, band))

	status, err := l.validator.Status(ctx, path)
	if err != nil {
		return nil, wrap(err)
	}
	switch status {
	case cache.StatusMissing:
		return nil, nil
	case cache.StatusCorrupted:
		return nil, collection.NewStoreError(collection.ErrCorrupt,
			"band metadata is corrupt; restore it from its .backup sibling or re-scan", path)
	case cache.StatusExpired:
		logger.Warn("metadata for %s is older than the cache TTL; consider re-scanning", band)
	}

	doc, migrated, err := l.validator.Migrate(ctx, path)
	if err != nil {
		return nil, wrap(err)
	}
	if migrated {
		logger.Info("upgraded metadata schema for %s", band)
	}
	return doc, nil
}

// LoadIndex returns the collection index, or nil when none exists yet.
func (l *Library) LoadIndex(ctx context.Context) (*collection.Index, error) {
	var index collection.Index
	err := l.store.Load(ctx, collection.IndexPath(l.root), &index)
	if collection.IsCode(err, collection.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &index, nil
}

// UpdateIndex persists the index after recomputing its statistics, so a
// caller can never store hand-edited stats.
func (l *Library) UpdateIndex(ctx context.Context, index *collection.Index) error {
	if index == nil {
		return collection.NewStoreError(collection.ErrValidation, "index is required", "")
	}
	index.RecomputeStats()
	index.MetadataVersion = collection.MetadataVersion
	return wrap(l.store.Save(ctx, collection.IndexPath(l.root), index))
}

// Migrate converts one band's folder layout. When the backup mirror is
// configured and a backup was created, the backup tree is uploaded after
// the migration finishes; upload failures are recorded in the result but
// never undo local work.
func (l *Library) Migrate(ctx context.Context, band, migrationType string, opts migration.Options) (*migration.Result, error) {
	mtype, err := migration.ParseType(migrationType)
	if err != nil {
		return nil, wrap(err)
	}

	result, err := l.engine.Migrate(ctx, band, mtype, opts)
	if err != nil {
		return result, wrap(err)
	}

	if l.mirror != nil && result.Backup != nil && !result.DryRun {
		remoteBase := band + "/" + filepath.Base(result.Backup.BackupFolderPath)
		if _, err := l.mirror.UploadTree(ctx, result.Backup.BackupFolderPath, remoteBase); err != nil {
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("backup mirror upload failed: %v", err))
		}
	}
	return result, nil
}

// RecoveryLog returns the migration recovery log accumulated so far.
func (l *Library) RecoveryLog() []migration.LogEntry {
	return l.recovery.Log()
}

// Validate cross-checks the index against the band folders in both
// directions without fixing anything.
func (l *Library) Validate(ctx context.Context) (*cache.Report, error) {
	index, err := l.loadOrNewIndex(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	report, err := l.validator.ValidateCollection(ctx, l.root, index)
	return report, wrap(err)
}

// RecentScans returns up to n recorded scans, newest first, or nil when
// history recording is off.
func (l *Library) RecentScans(ctx context.Context, n int) ([]history.Entry, error) {
	if l.history == nil {
		return nil, nil
	}
	entries, err := l.history.Recent(ctx, n)
	return entries, wrap(err)
}

func (l *Library) loadOrNewIndex(ctx context.Context) (*collection.Index, error) {
	var index collection.Index
	err := l.store.Load(ctx, collection.IndexPath(l.root), &index)
	switch {
	case err == nil:
		return &index, nil
	case collection.IsCode(err, collection.ErrNotFound), collection.IsCode(err, collection.ErrCorrupt):
		return collection.NewIndex(), nil
	default:
		return nil, err
	}
}

// wrap guarantees a StoreError crosses the facade boundary.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := collection.CodeOf(err); ok {
		return err
	}
	return collection.WrapError(collection.ErrIO, err.Error(), "", err)
}
