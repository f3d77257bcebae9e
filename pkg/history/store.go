// Package history persists scan reports in an embedded BadgerDB under the
// music root, so operators can see what changed across past scans without
// keeping their terminal scrollback.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/scanner"
)

// keyPrefix namespaces scan entries. Keys sort chronologically because the
// timestamp is RFC3339 in UTC.
const keyPrefix = "scan/"

// Entry is one stored scan with its key timestamp.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Report    scanner.Report `json:"report"`
}

// Store is an append-only scan history.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the history database at dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Scan reports are small JSON blobs; compression and big caches only
	// add overhead at this size.
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to open scan history: %v", err), dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. The store is unusable afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a scan report under the current timestamp.
func (s *Store) Append(ctx context.Context, report *scanner.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := time.Now().UTC()
	entry := Entry{Timestamp: ts, Report: *report}
	value, err := json.Marshal(&entry)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to encode scan entry: %v", err), "", err)
	}

	key := []byte(keyPrefix + ts.Format(time.RFC3339Nano))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to store scan entry: %v", err), "", err)
	}
	logger.Debug("recorded scan history entry %s", key)
	return nil
}

// Recent returns up to n stored scans, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past every prefixed entry.
		for it.Seek([]byte(keyPrefix + "\xff")); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if n > 0 && len(entries) >= n {
				break
			}
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to read scan history: %v", err), "", err)
	}
	return entries, nil
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek([]byte(keyPrefix + "\xff")); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			seen++
			if seen <= keep {
				continue
			}
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to list scan history: %v", err), "", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to prune scan history: %v", err), "", err)
	}
	return len(stale), nil
}
