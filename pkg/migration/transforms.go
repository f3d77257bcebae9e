package migration

import (
	"fmt"
	"path"
	"strings"

	"github.com/mpreviati/bandvault/pkg/collection"
)

// Type names a supported folder-layout migration.
type Type string

const (
	// DefaultToEnhanced moves each album into a type-named subfolder.
	DefaultToEnhanced Type = "default_to_enhanced"

	// LegacyToDefault prefixes album folder names with the 4-digit year
	// where the prefix is absent and the year is known.
	LegacyToDefault Type = "legacy_to_default"

	// MixedToEnhanced normalizes an inconsistent layout into a fully
	// type-foldered one.
	MixedToEnhanced Type = "mixed_to_enhanced"

	// EnhancedToDefault flattens type subfolders back to the band folder.
	EnhancedToDefault Type = "enhanced_to_default"
)

// ParseType validates a migration type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case DefaultToEnhanced, LegacyToDefault, MixedToEnhanced, EnhancedToDefault:
		return Type(s), nil
	default:
		return "", collection.NewStoreError(collection.ErrValidation,
			fmt.Sprintf("unknown migration type %q", s), "")
	}
}

// TargetStructure returns the layout the migration converges on.
func (t Type) TargetStructure() collection.StructureType {
	switch t {
	case DefaultToEnhanced, MixedToEnhanced:
		return collection.StructureEnhanced
	default:
		return collection.StructureDefault
	}
}

// targetPath computes the post-migration folder path for one album,
// relative to the band folder. The second return is false when the album
// already conforms to the target layout and needs no operation.
func targetPath(t Type, album collection.AlbumRecord) (string, bool) {
	source := album.FolderPath
	if source == "" {
		return "", false
	}
	base := path.Base(source)
	inTypeFolder := path.Dir(source) != "."

	typ := album.Type
	if typ == "" {
		typ = collection.TypeAlbum
	}

	switch t {
	case DefaultToEnhanced, MixedToEnhanced:
		if inTypeFolder {
			return "", false
		}
		return path.Join(string(typ), base), true

	case EnhancedToDefault:
		if !inTypeFolder {
			return "", false
		}
		return base, true

	case LegacyToDefault:
		if inTypeFolder || album.Year == 0 {
			return "", false
		}
		if strings.HasPrefix(base, fmt.Sprintf("%04d", album.Year)) {
			return "", false
		}
		return fmt.Sprintf("%04d - %s", album.Year, base), true

	default:
		return "", false
	}
}

// operationType labels an operation for reporting: a move crosses
// directories, a rename stays in place.
func operationType(source, target string) string {
	if path.Dir(source) == path.Dir(target) {
		return "rename"
	}
	return "move"
}
