// Package migration implements the transactional folder-structure
// migration engine: per-album move/rename between layout conventions, with
// dry-run planning, progress reporting, pre-migration backups, staged error
// classification and recovery, and whole-migration rollback.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/scanner"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// Status is the terminal state of one migration.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
	StatusRolledBack     Status = "rolled_back"
)

// Operation is one planned or executed album move/rename.
type Operation struct {
	AlbumName     string               `json:"album_name"`
	SourcePath    string               `json:"source_path"`
	TargetPath    string               `json:"target_path"`
	AlbumType     collection.AlbumType `json:"album_type"`
	OperationType string               `json:"operation_type"`
	Completed     bool                 `json:"completed"`
	ErrorMessage  string               `json:"error_message,omitempty"`
}

// Result is the outcome of one Migrate call.
type Result struct {
	Status               Status      `json:"status"`
	BandName             string      `json:"band_name"`
	MigrationType        Type        `json:"migration_type"`
	DryRun               bool        `json:"dry_run"`
	Operations           []Operation `json:"operations"`
	AlbumsMigrated       int         `json:"albums_migrated"`
	AlbumsFailed         int         `json:"albums_failed"`
	MigrationTimeSeconds float64     `json:"migration_time_seconds"`
	Backup               *BackupInfo `json:"backup_info,omitempty"`
	RollbackAvailable    bool        `json:"rollback_available"`
	ErrorMessages        []string    `json:"error_messages,omitempty"`
}

// ProgressFunc receives a message and a completion percentage after each
// executed operation.
type ProgressFunc func(message string, percent float64)

// Options tune one Migrate call.
type Options struct {
	// DryRun computes and returns the operation plan without touching disk.
	DryRun bool

	// BackupOriginal snapshots the band folder before mutating it.
	BackupOriginal bool

	// Force continues past unrecoverable per-album failures, recording them
	// instead of rolling the migration back.
	Force bool

	// Exclude lists album names (case-insensitive) left untouched.
	Exclude []string

	// Overrides maps an album name to an explicit target folder path,
	// relative to the band folder, replacing the computed one.
	Overrides map[string]string

	// Progress, when set, is invoked after each executed operation.
	Progress ProgressFunc
}

// Engine orchestrates folder-structure migrations for one music root.
//
// Dependencies are explicit: the engine is handed its store and recovery
// manager at construction instead of reaching into process-wide state.
type Engine struct {
	store    *storage.Store
	recovery *Manager
	root     string
}

// New creates an Engine for the given music root.
func New(store *storage.Store, recovery *Manager, root string) *Engine {
	if recovery == nil {
		recovery = NewManager(0, 0)
	}
	return &Engine{store: store, recovery: recovery, root: root}
}

// Migrate converts one band's folder layout.
//
// Algorithm:
//  1. Load the band document and the on-disk album folders; compute the
//     target path for every eligible album.
//  2. Dry run: return the plan, nothing touched.
//  3. Snapshot the band folder and metadata when backups are on.
//  4. Execute operations in folder-name order, classifying and recovering
//     each failure; an unrecoverable failure without force aborts the rest
//     and restores the pre-migration snapshot.
//  5. Persist the updated document and the owning index entry.
func (e *Engine) Migrate(ctx context.Context, band string, mtype Type, opts Options) (*Result, error) {
	started := time.Now()

	if strings.TrimSpace(band) == "" {
		return nil, collection.NewStoreError(collection.ErrValidation, "band name is required", "")
	}
	if _, err := ParseType(string(mtype)); err != nil {
		return nil, err
	}

	bandDir := filepath.Join(e.root, band)
	if info, err := os.Stat(bandDir); err != nil || !info.IsDir() {
		return nil, collection.NewStoreError(collection.ErrNotFound, "band folder not found", bandDir)
	}

	result := &Result{
		Status:        StatusSuccess,
		BandName:      band,
		MigrationType: mtype,
		DryRun:        opts.DryRun,
	}

	doc, structure, err := e.loadBand(ctx, band, bandDir, result)
	if err != nil {
		return nil, err
	}

	result.Operations = planOperations(mtype, doc.Albums, opts)
	if opts.DryRun {
		result.MigrationTimeSeconds = time.Since(started).Seconds()
		return result, nil
	}

	if opts.BackupOriginal {
		backup, err := snapshotBand(bandDir, structure)
		if err != nil {
			return nil, err
		}
		result.Backup = backup
		result.RollbackAvailable = true
	}

	if err := e.execute(ctx, bandDir, doc, result, opts); err != nil {
		result.MigrationTimeSeconds = time.Since(started).Seconds()
		return result, err
	}

	if result.Status != StatusRolledBack {
		e.cleanupEmptyTypeFolders(bandDir, mtype)
		if err := e.persist(ctx, bandDir, doc, result, mtype); err != nil {
			result.ErrorMessages = append(result.ErrorMessages, err.Error())
			result.Status = StatusPartialSuccess
		}
	}

	result.MigrationTimeSeconds = time.Since(started).Seconds()
	logger.Info("migration %s of %s finished: %s (%d migrated, %d failed)",
		mtype, band, result.Status, result.AlbumsMigrated, result.AlbumsFailed)
	return result, nil
}

// loadBand loads the band document, rebuilding it from disk when absent or
// corrupt, and refreshes album folder paths from what is actually on disk.
func (e *Engine) loadBand(ctx context.Context, band, bandDir string, result *Result) (*collection.BandDocument, collection.StructureType, error) {
	records, structure, scanErrs := scanner.DiscoverBand(bandDir)
	result.ErrorMessages = append(result.ErrorMessages, scanErrs...)

	var doc collection.BandDocument
	err := e.store.Load(ctx, collection.MetadataPath(bandDir), &doc)
	switch {
	case err == nil:
	case collection.IsCode(err, collection.ErrNotFound), collection.IsCode(err, collection.ErrCorrupt):
		doc = collection.BandDocument{BandName: band}
	default:
		return nil, structure.StructureType, err
	}
	if doc.BandName == "" {
		doc.BandName = band
	}

	// The document may be stale; the disk view decides what gets moved.
	// Stored records matching a disk folder keep their captured fields. A
	// name+type fallback covers legacy folders whose names carry no year,
	// so legacy_to_default can prefix them from the stored year.
	merged := make([]collection.AlbumRecord, 0, len(records))
	matched := make([]bool, len(doc.Albums))
	for _, rec := range records {
		idx, ok := indexByKey(doc.Albums, matched, rec.Key())
		if !ok {
			idx, ok = indexByNameAndType(doc.Albums, matched, rec)
		}
		if ok {
			keep := doc.Albums[idx]
			keep.FolderPath = rec.FolderPath
			keep.TrackCount = rec.TrackCount
			matched[idx] = true
			merged = append(merged, keep)
			continue
		}
		merged = append(merged, rec)
	}

	// Stored albums with no folder left on disk move to the missing
	// partition instead of being dropped.
	for i := range doc.Albums {
		if matched[i] {
			continue
		}
		gone := doc.Albums[i]
		gone.FolderPath = ""
		doc.AlbumsMissing = append(doc.AlbumsMissing, gone)
	}
	doc.Albums = merged
	doc.Normalize()

	return &doc, structure.StructureType, nil
}

func indexByKey(albums []collection.AlbumRecord, matched []bool, key collection.AlbumKey) (int, bool) {
	for i := range albums {
		if !matched[i] && albums[i].Key() == key {
			return i, true
		}
	}
	return 0, false
}

// indexByNameAndType returns the unique unmatched stored album sharing a
// name and type with the disk record, ignoring year and edition. Ambiguity
// means no match.
func indexByNameAndType(albums []collection.AlbumRecord, matched []bool, rec collection.AlbumRecord) (int, bool) {
	key := rec.Key()
	found := -1
	for i := range albums {
		if matched[i] {
			continue
		}
		k := albums[i].Key()
		if k.Name == key.Name && k.Type == key.Type {
			if found >= 0 {
				return 0, false
			}
			found = i
		}
	}
	if found < 0 {
		return 0, false
	}
	return found, true
}

// planOperations computes the eligible operations in folder-name order.
func planOperations(mtype Type, albums []collection.AlbumRecord, opts Options) []Operation {
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[strings.ToLower(name)] = struct{}{}
	}

	var ops []Operation
	for _, album := range albums {
		if _, skip := excluded[strings.ToLower(album.Name)]; skip {
			continue
		}

		target, eligible := targetPath(mtype, album)
		if override, ok := opts.Overrides[album.Name]; ok && override != "" {
			target, eligible = override, true
		}
		if !eligible || target == album.FolderPath {
			continue
		}

		ops = append(ops, Operation{
			AlbumName:     album.Name,
			SourcePath:    album.FolderPath,
			TargetPath:    target,
			AlbumType:     album.Type,
			OperationType: operationType(album.FolderPath, target),
		})
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].SourcePath < ops[j].SourcePath })
	return ops
}

// execute runs the planned operations, delegating failures to the analyzer
// and recovery manager. A non-nil error is returned only for rollback
// failure, which is terminal and requires manual intervention.
func (e *Engine) execute(ctx context.Context, bandDir string, doc *collection.BandDocument, result *Result, opts Options) error {
	total := len(result.Operations)
	for i := range result.Operations {
		op := &result.Operations[i]
		src := filepath.Join(bandDir, filepath.FromSlash(op.SourcePath))
		dst := filepath.Join(bandDir, filepath.FromSlash(op.TargetPath))

		err := moveAlbum(src, dst)
		if err != nil {
			c := Classify(err, op.SourcePath)
			outcome := e.recovery.Recover(ctx, op.AlbumName, src, c, func() error {
				return moveAlbum(src, dst)
			})

			switch outcome.State {
			case StateResolved:
				err = nil
			case StateSkipped:
				op.ErrorMessage = outcome.Message
				result.AlbumsFailed++
				result.ErrorMessages = append(result.ErrorMessages,
					fmt.Sprintf("%s: %s", op.AlbumName, outcome.Message))
				e.report(opts, fmt.Sprintf("skipped %s", op.AlbumName), i+1, total)
				continue
			default:
				op.ErrorMessage = outcome.Message
				result.AlbumsFailed++
				result.ErrorMessages = append(result.ErrorMessages,
					fmt.Sprintf("%s: %s", op.AlbumName, outcome.Message))
				if !opts.Force {
					return e.rollback(bandDir, result)
				}
				e.report(opts, fmt.Sprintf("failed %s (forced continue)", op.AlbumName), i+1, total)
				continue
			}
		}

		op.Completed = true
		result.AlbumsMigrated++
		updateAlbumPath(doc, op)
		e.report(opts, fmt.Sprintf("migrated %s to %s", op.AlbumName, op.TargetPath), i+1, total)
	}

	if result.AlbumsFailed > 0 {
		if result.AlbumsMigrated > 0 {
			result.Status = StatusPartialSuccess
		} else {
			result.Status = StatusFailed
		}
	}
	return nil
}

// rollback restores the band folder from the pre-migration snapshot.
// A failed restore is the one non-recoverable outcome: it is reported as
// ErrRollback and never retried automatically.
func (e *Engine) rollback(bandDir string, result *Result) error {
	if result.Backup == nil {
		result.Status = StatusFailed
		result.ErrorMessages = append(result.ErrorMessages,
			"migration aborted with no backup to roll back to; run a scan to reconcile metadata")
		return nil
	}

	if err := restoreBand(bandDir, result.Backup); err != nil {
		result.Status = StatusFailed
		result.ErrorMessages = append(result.ErrorMessages, err.Error())
		return err
	}

	result.Status = StatusRolledBack
	for i := range result.Operations {
		result.Operations[i].Completed = false
	}
	result.AlbumsMigrated = 0
	return nil
}

// persist saves the updated document and recomputes the owning index entry.
func (e *Engine) persist(ctx context.Context, bandDir string, doc *collection.BandDocument, result *Result, mtype Type) error {
	target := mtype.TargetStructure()
	if result.AlbumsFailed > 0 {
		target = collection.StructureMixed
	}
	doc.FolderStructure = &collection.FolderStructure{
		StructureType: target,
		DetectedAt:    time.Now().UTC(),
	}
	doc.LastUpdated = time.Now().UTC()
	doc.MetadataVersion = collection.MetadataVersion

	if err := e.store.Save(ctx, collection.MetadataPath(bandDir), doc); err != nil {
		return err
	}

	var index collection.Index
	err := e.store.Load(ctx, collection.IndexPath(e.root), &index)
	switch {
	case err == nil:
	case collection.IsCode(err, collection.ErrNotFound), collection.IsCode(err, collection.ErrCorrupt):
		index = *collection.NewIndex()
	default:
		return err
	}
	index.Upsert(collection.EntryForDocument(doc, bandDir))
	return e.store.Save(ctx, collection.IndexPath(e.root), &index)
}

func (e *Engine) report(opts Options, message string, done, total int) {
	if opts.Progress == nil || total == 0 {
		return
	}
	opts.Progress(message, float64(done)/float64(total)*100)
}

// cleanupEmptyTypeFolders removes type buckets emptied by a flatten.
func (e *Engine) cleanupEmptyTypeFolders(bandDir string, mtype Type) {
	if mtype != EnhancedToDefault {
		return
	}
	for _, t := range collection.AlbumTypes {
		dir := filepath.Join(bandDir, string(t))
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			logger.Warn("failed to remove empty type folder %s: %v", dir, err)
		}
	}
}

// moveAlbum renames src to dst, refusing to clobber an existing target.
func moveAlbum(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("target already exists: %w", os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// updateAlbumPath refreshes the migrated album's folder path and type in
// the document.
func updateAlbumPath(doc *collection.BandDocument, op *Operation) {
	for i := range doc.Albums {
		if doc.Albums[i].FolderPath == op.SourcePath {
			doc.Albums[i].FolderPath = op.TargetPath
			if bucket := filepath.Dir(filepath.FromSlash(op.TargetPath)); bucket != "." {
				name := filepath.Base(bucket)
				for _, t := range collection.AlbumTypes {
					if strings.EqualFold(name, string(t)) {
						doc.Albums[i].Type = t
						break
					}
				}
			}
			return
		}
	}
}
