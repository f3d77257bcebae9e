package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
)

// LockSuffix is appended to a document path to form its sidecar lock path.
const LockSuffix = ".lock"

// DefaultLockTimeout bounds how long Save waits for a contended lock.
const DefaultLockTimeout = 10 * time.Second

// DefaultStaleAfter is the age past which an abandoned lock file is broken.
// A crashed writer leaves its lock behind; breaking it after a generous
// multiple of any sane write duration keeps the store usable.
const DefaultStaleAfter = 60 * time.Second

// fileLock is an exclusive sidecar lock for one document path.
//
// The lock is a separate file created with O_EXCL: creation succeeding means
// the lock is held. This is a cross-process lock, so correctness holds for
// multiple processes acting on the same music root, not just goroutines.
type fileLock struct {
	path string
}

// acquireLock polls for the sidecar lock with exponential backoff, bounded
// by timeout. It fails closed: on timeout the caller gets ErrLockTimeout and
// no write happens.
func acquireLock(ctx context.Context, docPath string, timeout, staleAfter time.Duration) (*fileLock, error) {
	lockPath := docPath + LockSuffix
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			// Record the owner pid for debugging stuck locks.
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = f.Close()
			return &fileLock{path: lockPath}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, collection.WrapError(collection.ErrIO,
				fmt.Sprintf("failed to create lock file: %v", err), lockPath, err)
		}

		// Break locks left behind by a crashed writer.
		if info, statErr := os.Stat(lockPath); statErr == nil {
			if staleAfter > 0 && time.Since(info.ModTime()) > staleAfter {
				logger.Warn("breaking stale lock %s (age %s)", lockPath, time.Since(info.ModTime()))
				_ = os.Remove(lockPath)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, collection.NewStoreError(collection.ErrLockTimeout,
				fmt.Sprintf("timed out after %s waiting for lock", timeout), lockPath)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

// release removes the lock file. Safe to call once per acquisition.
func (l *fileLock) release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove lock file %s: %v", l.path, err)
	}
}

// IsLocked reports whether a sidecar lock currently exists for docPath.
// Used by migration recovery to poll a contended file before retrying.
func IsLocked(docPath string) bool {
	_, err := os.Stat(docPath + LockSuffix)
	return err == nil
}
