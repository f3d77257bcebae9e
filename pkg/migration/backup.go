package migration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
)

// BackupInfo describes the pre-migration snapshot of one band folder.
type BackupInfo struct {
	Timestamp             time.Time                `json:"timestamp"`
	BackupFolderPath      string                   `json:"backup_folder_path"`
	OriginalStructureType collection.StructureType `json:"original_structure_type"`
	MetadataBackupPath    string                   `json:"metadata_backup_path,omitempty"`
}

// snapshotBand copies the whole band folder into
// <band>/.migration_backup_<timestamp>/ before any mutation.
//
// Dot-prefixed entries are skipped except the metadata document, so earlier
// backups are never copied into new ones. The metadata file is snapshotted
// alongside the album folders.
func snapshotBand(bandDir string, structure collection.StructureType) (*BackupInfo, error) {
	now := time.Now()
	backupDir := filepath.Join(bandDir, collection.MigrationBackupPrefix+now.Format("20060102T150405"))

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create backup folder: %v", err), backupDir, err)
	}

	entries, err := os.ReadDir(bandDir)
	if err != nil {
		return nil, collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to read band folder: %v", err), bandDir, err)
	}

	info := &BackupInfo{
		Timestamp:             now.UTC(),
		BackupFolderPath:      backupDir,
		OriginalStructureType: structure,
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && name != collection.MetadataFileName {
			continue
		}
		src := filepath.Join(bandDir, name)
		dst := filepath.Join(backupDir, name)
		if err := copyTree(src, dst); err != nil {
			// A half-written backup must not be trusted later.
			_ = os.RemoveAll(backupDir)
			return nil, err
		}
		if name == collection.MetadataFileName {
			info.MetadataBackupPath = dst
		}
	}

	logger.Info("created migration backup at %s", backupDir)
	return info, nil
}

// restoreBand restores a band folder from its pre-migration backup.
//
// Every non-dot entry is removed and replaced by the backup contents, so a
// partially migrated layout is fully rewound. The backup folder itself is
// kept after a successful restore.
func restoreBand(bandDir string, info *BackupInfo) error {
	if info == nil {
		return collection.NewStoreError(collection.ErrRollback,
			"no backup available for rollback", bandDir)
	}

	entries, err := os.ReadDir(bandDir)
	if err != nil {
		return collection.WrapError(collection.ErrRollback,
			fmt.Sprintf("failed to read band folder for rollback: %v", err), bandDir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && name != collection.MetadataFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(bandDir, name)); err != nil {
			return collection.WrapError(collection.ErrRollback,
				fmt.Sprintf("failed to clear %s during rollback: %v", name, err), bandDir, err)
		}
	}

	backupEntries, err := os.ReadDir(info.BackupFolderPath)
	if err != nil {
		return collection.WrapError(collection.ErrRollback,
			fmt.Sprintf("failed to read backup folder: %v", err), info.BackupFolderPath, err)
	}
	for _, entry := range backupEntries {
		src := filepath.Join(info.BackupFolderPath, entry.Name())
		dst := filepath.Join(bandDir, entry.Name())
		if err := copyTree(src, dst); err != nil {
			return collection.WrapError(collection.ErrRollback,
				fmt.Sprintf("failed to restore %s: %v", entry.Name(), err), dst, err)
		}
	}

	logger.Info("restored %s from %s", bandDir, info.BackupFolderPath)
	return nil
}

// copyTree recursively copies a file or directory.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to stat %s: %v", src, err), src, err)
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create %s: %v", dst, err), dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to read %s: %v", src, err), src, err)
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to open %s: %v", src, err), src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to create %s: %v", dst, err), dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return collection.WrapError(collection.ErrIO,
			fmt.Sprintf("failed to copy %s: %v", src, err), src, err)
	}
	return nil
}
