package collection

import "path/filepath"

// On-disk layout of a music root. All bandvault files are dot-prefixed so
// scanners and players ignore them.
const (
	// IndexFileName is the collection index at the music root.
	IndexFileName = ".collection_index.json"

	// MetadataFileName is the band document inside each band folder.
	MetadataFileName = ".band_metadata.json"

	// ScanHistoryDirName holds the badger scan-history database.
	ScanHistoryDirName = ".scan_history"

	// MigrationBackupPrefix prefixes pre-migration snapshot folders.
	// The full name is MigrationBackupPrefix + a timestamp.
	MigrationBackupPrefix = ".migration_backup_"
)

// IndexPath returns the collection index path for a music root.
func IndexPath(root string) string {
	return filepath.Join(root, IndexFileName)
}

// MetadataPath returns the band document path for a band folder.
func MetadataPath(bandDir string) string {
	return filepath.Join(bandDir, MetadataFileName)
}
