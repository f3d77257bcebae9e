package migration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/storage"
)

func newEngine(t *testing.T) (*Engine, *storage.Store, string) {
	t.Helper()
	root := t.TempDir()
	store := storage.New()
	return New(store, NewManager(1, 50*time.Millisecond), root), store, root
}

// addAlbumFolder creates an album folder with two fake music files.
func addAlbumFolder(t *testing.T, bandDir string, parts ...string) {
	t.Helper()
	dir := filepath.Join(append([]string{bandDir}, parts...)...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02.mp3"), []byte("x"), 0o644))
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func TestMigrateUnknownBand(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.Migrate(context.Background(), "Nobody", DefaultToEnhanced, Options{})
	assert.True(t, collection.IsCode(err, collection.ErrNotFound))
}

func TestMigrateRejectsBlankBand(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.Migrate(context.Background(), "  ", DefaultToEnhanced, Options{})
	assert.True(t, collection.IsCode(err, collection.ErrValidation))
}

func TestMigrateDryRunPlansWithoutTouchingDisk(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Black Sabbath")
	addAlbumFolder(t, bandDir, "1970 - Paranoid")
	addAlbumFolder(t, bandDir, "1971 - Master of Reality")

	result, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.True(t, result.DryRun)
	require.Len(t, result.Operations, 2)
	assert.Equal(t, "1970 - Paranoid", result.Operations[0].SourcePath)
	assert.Equal(t, "Album/1970 - Paranoid", result.Operations[0].TargetPath)
	assert.Equal(t, "move", result.Operations[0].OperationType)
	assert.False(t, result.Operations[0].Completed)
	assert.Zero(t, result.AlbumsMigrated)
	assert.Nil(t, result.Backup)

	// Nothing moved and no backup folder appeared.
	assert.True(t, dirExists(filepath.Join(bandDir, "1970 - Paranoid")))
	assert.False(t, dirExists(filepath.Join(bandDir, "Album")))
	entries, err := os.ReadDir(bandDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), collection.MigrationBackupPrefix))
	}

	// A dry run is repeatable: the second plan is identical.
	again, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, result.Operations, again.Operations)
}

func TestMigrateDefaultToEnhanced(t *testing.T) {
	engine, store, root := newEngine(t)
	bandDir := filepath.Join(root, "Black Sabbath")
	addAlbumFolder(t, bandDir, "1970 - Paranoid")
	addAlbumFolder(t, bandDir, "1971 - Master of Reality")

	var progress []string
	result, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{
		BackupOriginal: true,
		Progress:       func(message string, percent float64) { progress = append(progress, message) },
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.AlbumsMigrated)
	assert.Zero(t, result.AlbumsFailed)
	assert.True(t, result.RollbackAvailable)
	require.NotNil(t, result.Backup)
	assert.Len(t, progress, 2)

	assert.True(t, dirExists(filepath.Join(bandDir, "Album", "1970 - Paranoid")))
	assert.True(t, dirExists(filepath.Join(bandDir, "Album", "1971 - Master of Reality")))
	assert.False(t, dirExists(filepath.Join(bandDir, "1970 - Paranoid")))

	// The snapshot holds the pre-migration layout.
	assert.True(t, dirExists(filepath.Join(result.Backup.BackupFolderPath, "1970 - Paranoid")))

	var doc collection.BandDocument
	require.NoError(t, store.Load(context.Background(), collection.MetadataPath(bandDir), &doc))
	require.NotNil(t, doc.FolderStructure)
	assert.Equal(t, collection.StructureEnhanced, doc.FolderStructure.StructureType)
	for _, album := range doc.Albums {
		assert.True(t, strings.HasPrefix(album.FolderPath, "Album"), "album %s not nested: %s", album.Name, album.FolderPath)
	}

	var index collection.Index
	require.NoError(t, store.Load(context.Background(), collection.IndexPath(root), &index))
	entry := index.Find("Black Sabbath")
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.LocalAlbumsCount)
}

func TestMigrateRollsBackOnConflict(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Black Sabbath")
	addAlbumFolder(t, bandDir, "1970 - Paranoid")
	addAlbumFolder(t, bandDir, "1971 - Master of Reality")
	// A conflicting target makes the first operation fail.
	require.NoError(t, os.MkdirAll(filepath.Join(bandDir, "Album", "1970 - Paranoid"), 0o755))

	result, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{BackupOriginal: true})
	require.NoError(t, err)

	assert.Equal(t, StatusRolledBack, result.Status)
	assert.True(t, result.RollbackAvailable)
	assert.Zero(t, result.AlbumsMigrated)
	for _, op := range result.Operations {
		assert.False(t, op.Completed)
	}
	assert.NotEmpty(t, result.ErrorMessages)

	// The original layout is back in place.
	assert.True(t, dirExists(filepath.Join(bandDir, "1970 - Paranoid")))
	assert.True(t, dirExists(filepath.Join(bandDir, "1971 - Master of Reality")))
}

func TestMigrateForceContinuesPastConflict(t *testing.T) {
	engine, store, root := newEngine(t)
	bandDir := filepath.Join(root, "Black Sabbath")
	addAlbumFolder(t, bandDir, "1970 - Paranoid")
	addAlbumFolder(t, bandDir, "1971 - Master of Reality")
	require.NoError(t, os.MkdirAll(filepath.Join(bandDir, "Album", "1970 - Paranoid"), 0o755))

	result, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, StatusPartialSuccess, result.Status)
	assert.Equal(t, 1, result.AlbumsMigrated)
	assert.Equal(t, 1, result.AlbumsFailed)

	// The unconflicted album still moved.
	assert.True(t, dirExists(filepath.Join(bandDir, "Album", "1971 - Master of Reality")))
	// The conflicted one stayed put.
	assert.True(t, dirExists(filepath.Join(bandDir, "1970 - Paranoid")))

	// A half-migrated band is recorded as mixed.
	var doc collection.BandDocument
	require.NoError(t, store.Load(context.Background(), collection.MetadataPath(bandDir), &doc))
	require.NotNil(t, doc.FolderStructure)
	assert.Equal(t, collection.StructureMixed, doc.FolderStructure.StructureType)
}

func TestMigrateAbortWithoutBackupFails(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Black Sabbath")
	addAlbumFolder(t, bandDir, "1970 - Paranoid")
	require.NoError(t, os.MkdirAll(filepath.Join(bandDir, "Album", "1970 - Paranoid"), 0o755))

	result, err := engine.Migrate(context.Background(), "Black Sabbath", DefaultToEnhanced, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.RollbackAvailable)
	var noted bool
	for _, msg := range result.ErrorMessages {
		if strings.Contains(msg, "no backup") {
			noted = true
		}
	}
	assert.True(t, noted)
}

func TestMigrateLegacyToDefaultUsesStoredYear(t *testing.T) {
	engine, store, root := newEngine(t)
	bandDir := filepath.Join(root, "Saint Vitus")
	addAlbumFolder(t, bandDir, "Born Too Late")

	stored := &collection.BandDocument{
		BandName: "Saint Vitus",
		Albums: []collection.AlbumRecord{
			{Name: "Born Too Late", Year: 1986, Type: collection.TypeAlbum, FolderPath: "Born Too Late"},
		},
	}
	require.NoError(t, store.Save(context.Background(), collection.MetadataPath(bandDir), stored))

	result, err := engine.Migrate(context.Background(), "Saint Vitus", LegacyToDefault, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Operations, 1)
	assert.Equal(t, "1986 - Born Too Late", result.Operations[0].TargetPath)
	assert.Equal(t, "rename", result.Operations[0].OperationType)
	assert.True(t, dirExists(filepath.Join(bandDir, "1986 - Born Too Late")))
	assert.False(t, dirExists(filepath.Join(bandDir, "Born Too Late")))
}

func TestMigrateKeepsVanishedAlbumsAsMissing(t *testing.T) {
	engine, store, root := newEngine(t)
	bandDir := filepath.Join(root, "Trouble")
	addAlbumFolder(t, bandDir, "1984 - Psalm 9")

	stored := &collection.BandDocument{
		BandName: "Trouble",
		Albums: []collection.AlbumRecord{
			{Name: "Psalm 9", Year: 1984, Type: collection.TypeAlbum, FolderPath: "1984 - Psalm 9"},
			{Name: "The Skull", Year: 1985, Type: collection.TypeAlbum, FolderPath: "1985 - The Skull",
				Genres: []string{"Doom Metal"}},
		},
	}
	require.NoError(t, store.Save(context.Background(), collection.MetadataPath(bandDir), stored))

	result, err := engine.Migrate(context.Background(), "Trouble", DefaultToEnhanced, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	// The album whose folder is gone moves to the missing partition with
	// its captured fields intact instead of being dropped.
	var doc collection.BandDocument
	require.NoError(t, store.Load(context.Background(), collection.MetadataPath(bandDir), &doc))
	require.Len(t, doc.Albums, 1)
	assert.Equal(t, "Psalm 9", doc.Albums[0].Name)
	require.Len(t, doc.AlbumsMissing, 1)
	assert.Equal(t, "The Skull", doc.AlbumsMissing[0].Name)
	assert.Equal(t, 1985, doc.AlbumsMissing[0].Year)
	assert.Equal(t, []string{"Doom Metal"}, doc.AlbumsMissing[0].Genres)
	assert.Empty(t, doc.AlbumsMissing[0].FolderPath)
}

func TestMigrateEnhancedToDefaultFlattens(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Cathedral")
	addAlbumFolder(t, bandDir, "Album", "1991 - Forest of Equilibrium")
	addAlbumFolder(t, bandDir, "EP", "1992 - Soul Sacrifice")

	result, err := engine.Migrate(context.Background(), "Cathedral", EnhancedToDefault, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.AlbumsMigrated)
	assert.True(t, dirExists(filepath.Join(bandDir, "1991 - Forest of Equilibrium")))
	assert.True(t, dirExists(filepath.Join(bandDir, "1992 - Soul Sacrifice")))
	// Emptied type buckets are removed.
	assert.False(t, dirExists(filepath.Join(bandDir, "Album")))
	assert.False(t, dirExists(filepath.Join(bandDir, "EP")))
}

func TestMigrateExcludeAndOverride(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Pentagram")
	addAlbumFolder(t, bandDir, "1985 - Relentless")
	addAlbumFolder(t, bandDir, "1987 - Day of Reckoning")

	result, err := engine.Migrate(context.Background(), "Pentagram", DefaultToEnhanced, Options{
		Exclude:   []string{"relentless"},
		Overrides: map[string]string{"Day of Reckoning": "Classics/1987 - Day of Reckoning"},
	})
	require.NoError(t, err)

	require.Len(t, result.Operations, 1)
	assert.Equal(t, "Classics/1987 - Day of Reckoning", result.Operations[0].TargetPath)
	assert.True(t, dirExists(filepath.Join(bandDir, "Classics", "1987 - Day of Reckoning")))
	// The excluded album never moved.
	assert.True(t, dirExists(filepath.Join(bandDir, "1985 - Relentless")))
}

func TestMigrateConformingLayoutIsNoOp(t *testing.T) {
	engine, _, root := newEngine(t)
	bandDir := filepath.Join(root, "Cathedral")
	addAlbumFolder(t, bandDir, "Album", "1991 - Forest of Equilibrium")

	result, err := engine.Migrate(context.Background(), "Cathedral", DefaultToEnhanced, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, result.Operations)
	assert.Zero(t, result.AlbumsMigrated)
}

func TestSnapshotAndRestoreBand(t *testing.T) {
	root := t.TempDir()
	bandDir := filepath.Join(root, "Trouble")
	addAlbumFolder(t, bandDir, "1984 - Psalm 9")
	require.NoError(t, os.WriteFile(filepath.Join(bandDir, collection.MetadataFileName), []byte(`{"band_name":"Trouble"}`), 0o644))

	info, err := snapshotBand(bandDir, collection.StructureDefault)
	require.NoError(t, err)
	assert.Equal(t, collection.StructureDefault, info.OriginalStructureType)
	assert.NotEmpty(t, info.MetadataBackupPath)
	assert.True(t, dirExists(filepath.Join(info.BackupFolderPath, "1984 - Psalm 9")))

	// Wreck the band folder, then restore.
	require.NoError(t, os.RemoveAll(filepath.Join(bandDir, "1984 - Psalm 9")))
	require.NoError(t, os.WriteFile(filepath.Join(bandDir, collection.MetadataFileName), []byte("{corrupt"), 0o644))

	require.NoError(t, restoreBand(bandDir, info))
	assert.True(t, dirExists(filepath.Join(bandDir, "1984 - Psalm 9")))
	data, err := os.ReadFile(filepath.Join(bandDir, collection.MetadataFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"band_name":"Trouble"}`, string(data))

	// A second snapshot must not swallow the first backup folder.
	second, err := snapshotBand(bandDir, collection.StructureDefault)
	require.NoError(t, err)
	assert.False(t, dirExists(filepath.Join(second.BackupFolderPath, filepath.Base(info.BackupFolderPath))))
}

func TestRestoreBandWithoutBackup(t *testing.T) {
	err := restoreBand(t.TempDir(), nil)
	assert.True(t, collection.IsCode(err, collection.ErrRollback))
}
