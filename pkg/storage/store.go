// Package storage implements the atomic JSON document store under every
// other layer of bandvault.
//
// A document write acquires an exclusive sidecar lock, optionally snapshots
// the current file to a .backup sibling, writes the full new content to a
// temporary file in the same directory, then renames it over the original.
// The single rename is the commit point: a concurrent reader observes either
// the old document or the new one, never a partial write.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
)

// BackupSuffix is appended to a document path for its pre-write snapshot.
const BackupSuffix = ".backup"

// Store is an atomic read/modify/write store for JSON documents.
//
// Thread safety: Store itself is stateless; concurrent Save calls on the
// same path serialize through the sidecar lock, which also serializes
// writers in other processes. Load never takes the lock because the rename
// commit makes reads atomic on their own.
type Store struct {
	lockTimeout time.Duration
	staleAfter  time.Duration
	backup      bool
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long Save waits for a contended lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithStaleAfter sets the age past which abandoned lock files are broken.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) { s.staleAfter = d }
}

// WithBackup toggles the pre-write .backup snapshot (default on).
func WithBackup(enabled bool) Option {
	return func(s *Store) { s.backup = enabled }
}

// New creates a Store with the given options applied over defaults.
func New(opts ...Option) *Store {
	s := &Store{
		lockTimeout: DefaultLockTimeout,
		staleAfter:  DefaultStaleAfter,
		backup:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save atomically writes doc as pretty-printed JSON to path.
//
// Steps, in order:
//  1. Acquire the sidecar lock (bounded wait, fails closed).
//  2. Copy the current file to path+".backup" when one exists.
//  3. Write the new content to a temporary sibling file.
//  4. Rename the temporary file over the original.
//
// On any failure before the rename the temporary file is removed and the
// original is untouched. Parent directories are created as needed.
func (s *Store) Save(ctx context.Context, path string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := marshalDocument(doc)
	if err != nil {
		return collection.WrapError(collection.ErrValidation,
			fmt.Sprintf("failed to encode document: %v", err), path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create parent directory: %v", err), path, err)
	}

	lock, err := acquireLock(ctx, path, s.lockTimeout, s.staleAfter)
	if err != nil {
		return err
	}
	defer lock.release()

	if s.backup {
		if err := snapshotExisting(path); err != nil {
			return err
		}
	}

	return replaceAtomically(path, data)
}

// Load reads and parses the JSON document at path into out.
//
// Returns ErrNotFound when the file is absent and ErrCorrupt when it exists
// but cannot be parsed. No lock is taken: rename-commit makes single reads
// consistent.
func (s *Store) Load(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return collection.NewStoreError(collection.ErrNotFound, "document not found", path)
		}
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to read document: %v", err), path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return collection.WrapError(collection.ErrCorrupt,
			fmt.Sprintf("document is not valid JSON: %v", err), path, err)
	}
	return nil
}

// LoadRaw reads the document at path as a loose map, preserving unknown
// fields. Schema migration works on this form before decoding strictly.
func (s *Store) LoadRaw(ctx context.Context, path string) (map[string]any, error) {
	var raw map[string]any
	if err := s.Load(ctx, path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// marshalDocument encodes doc as pretty-printed UTF-8 JSON with a trailing
// newline. HTML escaping is off so band names survive verbatim.
func marshalDocument(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// snapshotExisting copies the current file to its .backup sibling.
// A missing original is fine (first write); any other failure aborts the
// save so the previous document is always recoverable.
func snapshotExisting(path string) error {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to open document for backup: %v", err), path, err)
	}
	defer func() { _ = src.Close() }()

	backupPath := path + BackupSuffix
	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create backup: %v", err), backupPath, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to write backup: %v", err), backupPath, err)
	}
	return nil
}

// replaceAtomically writes data to a temp sibling and renames it over path.
func replaceAtomically(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create temp file: %v", err), dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove temp file %s: %v", tmpPath, err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to write temp file: %v", err), tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to sync temp file: %v", err), tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to close temp file: %v", err), tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to replace document: %v", err), path, err)
	}
	return nil
}
