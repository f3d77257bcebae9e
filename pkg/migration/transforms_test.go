package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpreviati/bandvault/pkg/collection"
)

func TestParseType(t *testing.T) {
	for _, valid := range []string{"default_to_enhanced", "legacy_to_default", "mixed_to_enhanced", "enhanced_to_default"} {
		parsed, err := ParseType(valid)
		require.NoError(t, err)
		assert.Equal(t, Type(valid), parsed)
	}

	_, err := ParseType("sideways_to_diagonal")
	assert.True(t, collection.IsCode(err, collection.ErrValidation))
}

func TestTargetStructure(t *testing.T) {
	assert.Equal(t, collection.StructureEnhanced, DefaultToEnhanced.TargetStructure())
	assert.Equal(t, collection.StructureEnhanced, MixedToEnhanced.TargetStructure())
	assert.Equal(t, collection.StructureDefault, LegacyToDefault.TargetStructure())
	assert.Equal(t, collection.StructureDefault, EnhancedToDefault.TargetStructure())
}

func TestTargetPath(t *testing.T) {
	cases := []struct {
		name     string
		mtype    Type
		album    collection.AlbumRecord
		want     string
		eligible bool
	}{
		{
			name:     "default to enhanced moves into type bucket",
			mtype:    DefaultToEnhanced,
			album:    collection.AlbumRecord{Name: "Paranoid", Year: 1970, Type: collection.TypeAlbum, FolderPath: "1970 - Paranoid"},
			want:     "Album/1970 - Paranoid",
			eligible: true,
		},
		{
			name:     "default to enhanced uses album type for bucket",
			mtype:    DefaultToEnhanced,
			album:    collection.AlbumRecord{Name: "Soul Sacrifice", Year: 1992, Type: collection.TypeEP, FolderPath: "1992 - Soul Sacrifice"},
			want:     "EP/1992 - Soul Sacrifice",
			eligible: true,
		},
		{
			name:  "default to enhanced skips already nested album",
			mtype: DefaultToEnhanced,
			album: collection.AlbumRecord{Name: "Paranoid", Type: collection.TypeAlbum, FolderPath: "Album/1970 - Paranoid"},
		},
		{
			name:     "mixed to enhanced nests loose albums",
			mtype:    MixedToEnhanced,
			album:    collection.AlbumRecord{Name: "Relentless", Year: 1985, Type: collection.TypeAlbum, FolderPath: "1985 - Relentless"},
			want:     "Album/1985 - Relentless",
			eligible: true,
		},
		{
			name:     "enhanced to default flattens",
			mtype:    EnhancedToDefault,
			album:    collection.AlbumRecord{Name: "Paranoid", Type: collection.TypeAlbum, FolderPath: "Album/1970 - Paranoid"},
			want:     "1970 - Paranoid",
			eligible: true,
		},
		{
			name:  "enhanced to default skips loose album",
			mtype: EnhancedToDefault,
			album: collection.AlbumRecord{Name: "Paranoid", Type: collection.TypeAlbum, FolderPath: "1970 - Paranoid"},
		},
		{
			name:     "legacy to default adds year prefix",
			mtype:    LegacyToDefault,
			album:    collection.AlbumRecord{Name: "Paranoid", Year: 1970, Type: collection.TypeAlbum, FolderPath: "Paranoid"},
			want:     "1970 - Paranoid",
			eligible: true,
		},
		{
			name:  "legacy to default skips unknown year",
			mtype: LegacyToDefault,
			album: collection.AlbumRecord{Name: "Paranoid", Type: collection.TypeAlbum, FolderPath: "Paranoid"},
		},
		{
			name:  "legacy to default skips already prefixed",
			mtype: LegacyToDefault,
			album: collection.AlbumRecord{Name: "Paranoid", Year: 1970, Type: collection.TypeAlbum, FolderPath: "1970 - Paranoid"},
		},
		{
			name:  "missing folder path never eligible",
			mtype: DefaultToEnhanced,
			album: collection.AlbumRecord{Name: "Paranoid", Type: collection.TypeAlbum},
		},
		{
			name:     "empty type defaults to Album bucket",
			mtype:    DefaultToEnhanced,
			album:    collection.AlbumRecord{Name: "Paranoid", FolderPath: "1970 - Paranoid"},
			want:     "Album/1970 - Paranoid",
			eligible: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, eligible := targetPath(tc.mtype, tc.album)
			assert.Equal(t, tc.eligible, eligible)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOperationType(t *testing.T) {
	assert.Equal(t, "move", operationType("1970 - Paranoid", "Album/1970 - Paranoid"))
	assert.Equal(t, "move", operationType("Album/1970 - Paranoid", "1970 - Paranoid"))
	assert.Equal(t, "rename", operationType("Paranoid", "1970 - Paranoid"))
}
