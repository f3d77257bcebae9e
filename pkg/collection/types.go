// Package collection defines the persisted data model for a music collection:
// per-band JSON documents, the collection-wide index, and the tagged error
// model shared by every layer above.
//
// Documents are plain structs with JSON tags matching the on-disk format.
// Derived values (album counts, collection statistics) are always recomputed
// from the underlying slices rather than trusted from disk.
package collection

import (
	"fmt"
	"strings"
	"time"
)

// MetadataVersion is the current schema version written to new documents.
// CacheValidator migrates older documents up to this version.
const MetadataVersion = "1.1"

// AlbumType categorizes a release.
type AlbumType string

const (
	TypeAlbum        AlbumType = "Album"
	TypeEP           AlbumType = "EP"
	TypeLive         AlbumType = "Live"
	TypeDemo         AlbumType = "Demo"
	TypeCompilation  AlbumType = "Compilation"
	TypeSingle       AlbumType = "Single"
	TypeInstrumental AlbumType = "Instrumental"
	TypeSplit        AlbumType = "Split"
)

// AlbumTypes lists every valid album type, in type-folder ordering.
var AlbumTypes = []AlbumType{
	TypeAlbum, TypeEP, TypeLive, TypeDemo,
	TypeCompilation, TypeSingle, TypeInstrumental, TypeSplit,
}

// ParseAlbumType normalizes a string into an AlbumType.
// Unrecognized values fall back to TypeAlbum.
func ParseAlbumType(s string) AlbumType {
	for _, t := range AlbumTypes {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return TypeAlbum
}

// AlbumRecord describes one release of a band.
//
// FolderPath is relative to the band folder and empty for missing albums.
type AlbumRecord struct {
	Name       string    `json:"name" validate:"required"`
	Year       int       `json:"year,omitempty"`
	Type       AlbumType `json:"type"`
	Edition    string    `json:"edition,omitempty"`
	TrackCount int       `json:"track_count" validate:"gte=0"`
	Duration   string    `json:"duration,omitempty"`
	Genres     []string  `json:"genres,omitempty"`
	FolderPath string    `json:"folder_path,omitempty"`
}

// AlbumKey is the identity of an album within a band.
//
// Two records describe the same album when their keys are equal. Name, type
// and edition are compared case-insensitively.
type AlbumKey struct {
	Name    string
	Year    int
	Type    string
	Edition string
}

// Key returns the identity key of the record.
func (a *AlbumRecord) Key() AlbumKey {
	typ := a.Type
	if typ == "" {
		typ = TypeAlbum
	}
	return AlbumKey{
		Name:    strings.ToLower(a.Name),
		Year:    a.Year,
		Type:    strings.ToLower(string(typ)),
		Edition: strings.ToLower(a.Edition),
	}
}

func (k AlbumKey) String() string {
	return fmt.Sprintf("%s|%d|%s|%s", k.Name, k.Year, k.Type, k.Edition)
}

// StructureType identifies a band folder layout convention.
type StructureType string

const (
	// StructureDefault keeps album folders directly under the band folder,
	// named "YYYY - Album Name".
	StructureDefault StructureType = "default"

	// StructureEnhanced nests album folders under type-named buckets
	// (Album/, EP/, Live/, ...).
	StructureEnhanced StructureType = "enhanced"

	// StructureMixed has some albums in type folders and some loose.
	StructureMixed StructureType = "mixed"

	// StructureLegacy keeps album folders loose without year prefixes.
	StructureLegacy StructureType = "legacy"
)

// FolderStructure records the detected layout of a band folder.
type FolderStructure struct {
	StructureType StructureType `json:"structure_type"`
	// TypeFolders lists the type buckets that exist on disk (enhanced/mixed).
	TypeFolders []string `json:"type_folders,omitempty"`
	DetectedAt  time.Time `json:"detected_at,omitempty"`
}

// BandDocument is the per-band metadata document persisted as
// <Band>/.band_metadata.json.
//
// Invariant: an album key appears in exactly one of Albums and AlbumsMissing.
// AlbumsCount() is always derived, never stored independently.
type BandDocument struct {
	BandName        string           `json:"band_name" validate:"required"`
	Formed          string           `json:"formed,omitempty"`
	Genres          []string         `json:"genres,omitempty"`
	Origin          string           `json:"origin,omitempty"`
	Members         []string         `json:"members,omitempty"`
	Description     string           `json:"description,omitempty"`
	Albums          []AlbumRecord    `json:"albums"`
	AlbumsMissing   []AlbumRecord    `json:"albums_missing"`
	Analysis        map[string]any   `json:"analysis,omitempty"`
	FolderStructure *FolderStructure `json:"folder_structure,omitempty"`
	MetadataVersion string           `json:"metadata_version,omitempty"`
	LastUpdated     time.Time        `json:"last_updated"`
	LastSaved       time.Time        `json:"last_metadata_saved,omitempty"`
}

// AlbumsCount returns the total number of known albums, local and missing.
func (d *BandDocument) AlbumsCount() int {
	return len(d.Albums) + len(d.AlbumsMissing)
}

// HasAnalysis reports whether the document carries analysis data.
func (d *BandDocument) HasAnalysis() bool {
	return len(d.Analysis) > 0
}

// FindAlbum returns the local album with the given key, or nil.
func (d *BandDocument) FindAlbum(key AlbumKey) *AlbumRecord {
	for i := range d.Albums {
		if d.Albums[i].Key() == key {
			return &d.Albums[i]
		}
	}
	return nil
}

// Normalize enforces the identity invariant: a key present in Albums is
// removed from AlbumsMissing. Local records win because they reflect disk.
func (d *BandDocument) Normalize() {
	if len(d.Albums) == 0 || len(d.AlbumsMissing) == 0 {
		return
	}
	local := make(map[AlbumKey]struct{}, len(d.Albums))
	for i := range d.Albums {
		local[d.Albums[i].Key()] = struct{}{}
	}
	kept := d.AlbumsMissing[:0]
	for i := range d.AlbumsMissing {
		if _, dup := local[d.AlbumsMissing[i].Key()]; !dup {
			kept = append(kept, d.AlbumsMissing[i])
		}
	}
	d.AlbumsMissing = kept
}

// IndexEntry summarizes one band for the collection index.
//
// Invariant: LocalAlbumsCount + MissingAlbumsCount == AlbumsCount.
// NewIndexEntry auto-corrects the total when callers disagree.
type IndexEntry struct {
	Name               string    `json:"name" validate:"required"`
	AlbumsCount        int       `json:"albums_count"`
	LocalAlbumsCount   int       `json:"local_albums_count"`
	MissingAlbumsCount int       `json:"missing_albums_count"`
	FolderPath         string    `json:"folder_path"`
	HasMetadata        bool      `json:"has_metadata"`
	HasAnalysis        bool      `json:"has_analysis"`
	LastUpdated        time.Time `json:"last_updated"`
}

// NewIndexEntry builds an entry, forcing the count invariant.
func NewIndexEntry(name, folderPath string, local, missing int) IndexEntry {
	return IndexEntry{
		Name:               name,
		AlbumsCount:        local + missing,
		LocalAlbumsCount:   local,
		MissingAlbumsCount: missing,
		FolderPath:         folderPath,
		LastUpdated:        time.Now().UTC(),
	}
}

// EntryForDocument derives an index entry from a band document.
func EntryForDocument(doc *BandDocument, folderPath string) IndexEntry {
	entry := NewIndexEntry(doc.BandName, folderPath, len(doc.Albums), len(doc.AlbumsMissing))
	entry.HasMetadata = true
	entry.HasAnalysis = doc.HasAnalysis()
	if !doc.LastUpdated.IsZero() {
		entry.LastUpdated = doc.LastUpdated
	}
	return entry
}

// Stats aggregates collection-wide statistics.
//
// Stats are always recomputed from the entries, never hand-edited; a stored
// stats block is overwritten on every RecomputeStats call.
type Stats struct {
	TotalBands         int     `json:"total_bands"`
	TotalAlbums        int     `json:"total_albums"`
	TotalLocalAlbums   int     `json:"total_local_albums"`
	TotalMissingAlbums int     `json:"total_missing_albums"`
	BandsWithMetadata  int     `json:"bands_with_metadata"`
	BandsWithAnalysis  int     `json:"bands_with_analysis"`
	CompletionPercent  float64 `json:"completion_percent"`
}

// Index is the collection-wide index persisted as .collection_index.json.
type Index struct {
	Stats           Stats        `json:"stats"`
	Entries         []IndexEntry `json:"entries"`
	LastScan        time.Time    `json:"last_scan"`
	MetadataVersion string       `json:"metadata_version"`
}

// NewIndex returns an empty index at the current schema version.
func NewIndex() *Index {
	return &Index{
		Entries:         []IndexEntry{},
		MetadataVersion: MetadataVersion,
	}
}

// Find returns the entry with the given band name, or nil.
func (ix *Index) Find(name string) *IndexEntry {
	for i := range ix.Entries {
		if ix.Entries[i].Name == name {
			return &ix.Entries[i]
		}
	}
	return nil
}

// Upsert inserts or replaces the entry for entry.Name and recomputes stats.
func (ix *Index) Upsert(entry IndexEntry) {
	for i := range ix.Entries {
		if ix.Entries[i].Name == entry.Name {
			ix.Entries[i] = entry
			ix.RecomputeStats()
			return
		}
	}
	ix.Entries = append(ix.Entries, entry)
	ix.RecomputeStats()
}

// Remove deletes the entry for the given band name if present and
// recomputes stats. It reports whether an entry was removed.
func (ix *Index) Remove(name string) bool {
	for i := range ix.Entries {
		if ix.Entries[i].Name == name {
			ix.Entries = append(ix.Entries[:i], ix.Entries[i+1:]...)
			ix.RecomputeStats()
			return true
		}
	}
	return false
}

// RecomputeStats rebuilds the Stats block from the entries. The per-entry
// count invariant is forced first, so a caller-built entry whose total
// disagrees with its partitions is corrected rather than persisted.
func (ix *Index) RecomputeStats() {
	var s Stats
	s.TotalBands = len(ix.Entries)
	for i := range ix.Entries {
		e := &ix.Entries[i]
		e.AlbumsCount = e.LocalAlbumsCount + e.MissingAlbumsCount
		s.TotalAlbums += e.AlbumsCount
		s.TotalLocalAlbums += e.LocalAlbumsCount
		s.TotalMissingAlbums += e.MissingAlbumsCount
		if e.HasMetadata {
			s.BandsWithMetadata++
		}
		if e.HasAnalysis {
			s.BandsWithAnalysis++
		}
	}
	if s.TotalAlbums > 0 {
		s.CompletionPercent = float64(s.TotalLocalAlbums) / float64(s.TotalAlbums) * 100
	}
	ix.Stats = s
}
