// Package scanner walks a music root, reconciles what it finds against
// stored band documents, and refreshes the collection index.
//
// The walk only trusts the filesystem for facts the filesystem knows:
// which album folders exist and how many music files they hold. Facts a
// previous scan or an explicit save captured (year, genres, duration) are
// preserved across rescans. Per-folder failures are collected into the
// report and never abort the rest of the scan.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mpreviati/bandvault/internal/logger"
	"github.com/mpreviati/bandvault/pkg/collection"
	"github.com/mpreviati/bandvault/pkg/storage"
)

// defaultDenylist names first-level directories never treated as bands.
var defaultDenylist = []string{"lost+found", "@eaDir", "System Volume Information", "$RECYCLE.BIN"}

// Scanner reconciles on-disk band folders with stored metadata.
type Scanner struct {
	store    *storage.Store
	root     string
	denylist map[string]struct{}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDenylist replaces the default denylist of ignored directory names.
func WithDenylist(names []string) Option {
	return func(s *Scanner) {
		s.denylist = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.denylist[n] = struct{}{}
		}
	}
}

// New creates a Scanner for the given music root.
func New(store *storage.Store, root string, opts ...Option) *Scanner {
	s := &Scanner{store: store, root: root}
	WithDenylist(defaultDenylist)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report is the outcome of one scan.
type Report struct {
	BandsDiscovered int `json:"bands_discovered"`

	// AlbumsDiscovered counts album folders with music files found on disk.
	AlbumsDiscovered int `json:"albums_discovered"`

	BandsAdded   []string `json:"bands_added,omitempty"`
	BandsRemoved []string `json:"bands_removed,omitempty"`
	BandsChanged []string `json:"bands_changed,omitempty"`

	// Changes holds human-readable diff entries against the previous index.
	Changes []string `json:"changes,omitempty"`

	// ScanErrors lists per-folder problems. The scan still succeeds overall.
	ScanErrors []string `json:"scan_errors,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// discoveredAlbum pairs a parsed album record with the directory facts
// needed for optional tag enrichment.
type discoveredAlbum struct {
	record     collection.AlbumRecord
	dir        string
	musicFiles []string
}

// Scan walks the music root, reconciles every band document, and persists
// the refreshed collection index.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{StartedAt: started.UTC()}

	prev, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, collection.WrapError(collection.ErrScanning,
			fmt.Sprintf("failed to read music root: %v", err), s.root, err)
	}

	index := collection.NewIndex()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || s.skip(entry.Name()) {
			continue
		}
		bandName := entry.Name()
		bandDir := filepath.Join(s.root, bandName)

		discovered, structure, bandErrs := discoverBand(bandDir)
		for _, e := range bandErrs {
			logger.Warn("scan: %s", e)
			report.ScanErrors = append(report.ScanErrors, e)
		}

		doc, loadErr := s.loadDocument(ctx, bandDir)
		if loadErr != "" {
			report.ScanErrors = append(report.ScanErrors, loadErr)
		}

		doc = reconcile(doc, bandName, discovered)
		doc.FolderStructure = &structure

		if err := s.store.Save(ctx, collection.MetadataPath(bandDir), doc); err != nil {
			report.ScanErrors = append(report.ScanErrors,
				fmt.Sprintf("%s: failed to save metadata: %v", bandName, err))
			continue
		}

		indexEntry := collection.EntryForDocument(doc, bandDir)
		index.Upsert(indexEntry)

		report.BandsDiscovered++
		report.AlbumsDiscovered += len(discovered)
	}

	diffIndexes(prev, index, report)

	index.LastScan = time.Now().UTC()
	if err := s.store.Save(ctx, collection.IndexPath(s.root), index); err != nil {
		return nil, err
	}

	report.DurationSeconds = time.Since(started).Seconds()
	logger.Info("scan finished: %d bands, %d albums, %d errors in %.2fs",
		report.BandsDiscovered, report.AlbumsDiscovered, len(report.ScanErrors), report.DurationSeconds)
	return report, nil
}

func (s *Scanner) skip(name string) bool {
	if name == "" || name[0] == '.' {
		return true
	}
	_, denied := s.denylist[name]
	return denied
}

// loadIndex returns the stored index or an empty one when none exists.
// A corrupt index is replaced; the scan rebuilds it from disk anyway.
func (s *Scanner) loadIndex(ctx context.Context) (*collection.Index, error) {
	var index collection.Index
	err := s.store.Load(ctx, collection.IndexPath(s.root), &index)
	switch {
	case err == nil:
		return &index, nil
	case collection.IsCode(err, collection.ErrNotFound), collection.IsCode(err, collection.ErrCorrupt):
		return collection.NewIndex(), nil
	default:
		return nil, err
	}
}

// loadDocument returns the stored band document, nil when absent, and a
// non-empty error string when the stored copy had to be discarded.
func (s *Scanner) loadDocument(ctx context.Context, bandDir string) (*collection.BandDocument, string) {
	var doc collection.BandDocument
	err := s.store.Load(ctx, collection.MetadataPath(bandDir), &doc)
	switch {
	case err == nil:
		return &doc, ""
	case collection.IsCode(err, collection.ErrNotFound):
		return nil, ""
	case collection.IsCode(err, collection.ErrCorrupt):
		return nil, fmt.Sprintf("%s: corrupt metadata discarded: %v", filepath.Base(bandDir), err)
	default:
		return nil, fmt.Sprintf("%s: failed to load metadata: %v", filepath.Base(bandDir), err)
	}
}

// DiscoverBand enumerates the album folders of one band folder without
// touching stored metadata. The migration engine plans from this view.
// Per-folder problems come back as strings alongside the partial result.
func DiscoverBand(bandDir string) ([]collection.AlbumRecord, collection.FolderStructure, []string) {
	discovered, structure, errs := discoverBand(bandDir)
	records := make([]collection.AlbumRecord, 0, len(discovered))
	for _, d := range discovered {
		records = append(records, d.record)
	}
	return records, structure, errs
}

// discoverBand enumerates the album folders of one band. Albums directly
// under the band folder carry their name-inferred type; albums nested in a
// type folder get that folder's type regardless of name. Folders with zero
// music files are skipped.
func discoverBand(bandDir string) ([]discoveredAlbum, collection.FolderStructure, []string) {
	var (
		albums []discoveredAlbum
		errs   []string
		typed  int
		loose  int
		withYr int
	)
	typeFolders := map[string]struct{}{}

	entries, err := os.ReadDir(bandDir)
	if err != nil {
		return nil, collection.FolderStructure{StructureType: collection.StructureDefault},
			[]string{fmt.Sprintf("%s: failed to read band folder: %v", filepath.Base(bandDir), err)}
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "" || entry.Name()[0] == '.' {
			continue
		}

		if typ, isBucket := typeFolderFor(entry.Name()); isBucket {
			bucketDir := filepath.Join(bandDir, entry.Name())
			subEntries, err := os.ReadDir(bucketDir)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s/%s: failed to read type folder: %v",
					filepath.Base(bandDir), entry.Name(), err))
				continue
			}
			typeFolders[entry.Name()] = struct{}{}
			for _, sub := range subEntries {
				if !sub.IsDir() || sub.Name() == "" || sub.Name()[0] == '.' {
					continue
				}
				album, ok, err := discoverAlbum(bucketDir, sub.Name(), filepath.Join(entry.Name(), sub.Name()), &typ)
				if err != nil {
					errs = append(errs, fmt.Sprintf("%s/%s/%s: %v",
						filepath.Base(bandDir), entry.Name(), sub.Name(), err))
					continue
				}
				if ok {
					albums = append(albums, album)
					typed++
				}
			}
			continue
		}

		album, ok, err := discoverAlbum(bandDir, entry.Name(), entry.Name(), nil)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s/%s: %v", filepath.Base(bandDir), entry.Name(), err))
			continue
		}
		if ok {
			albums = append(albums, album)
			loose++
			if album.record.Year != 0 && strings.HasPrefix(entry.Name(), fmt.Sprintf("%04d", album.record.Year)) {
				withYr++
			}
		}
	}

	structure := collection.FolderStructure{
		StructureType: detectStructure(typed, loose, withYr),
		DetectedAt:    time.Now().UTC(),
	}
	for name := range typeFolders {
		structure.TypeFolders = append(structure.TypeFolders, name)
	}
	sort.Strings(structure.TypeFolders)

	return albums, structure, errs
}

// discoverAlbum inspects one candidate album folder. The second return is
// false when the folder holds no music and should be skipped.
func discoverAlbum(parentDir, name, relPath string, bucketType *collection.AlbumType) (discoveredAlbum, bool, error) {
	dir := filepath.Join(parentDir, name)
	files, err := os.ReadDir(dir)
	if err != nil {
		return discoveredAlbum{}, false, fmt.Errorf("failed to read album folder: %w", err)
	}

	var musicFiles []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if isMusicFile(filepath.Join(dir, f.Name())) {
			musicFiles = append(musicFiles, f.Name())
		}
	}
	if len(musicFiles) == 0 {
		return discoveredAlbum{}, false, nil
	}

	parsed := ParseAlbumFolder(name)
	record := collection.AlbumRecord{
		Name:       parsed.Title,
		Year:       parsed.Year,
		Type:       parsed.Type,
		Edition:    parsed.Edition,
		TrackCount: len(musicFiles),
		FolderPath: relPath,
	}
	// Explicit type-folder membership wins over name inference.
	if bucketType != nil {
		record.Type = *bucketType
	}

	return discoveredAlbum{record: record, dir: dir, musicFiles: musicFiles}, true, nil
}

// detectStructure classifies a band folder layout from album placement.
func detectStructure(typed, loose, looseWithYear int) collection.StructureType {
	switch {
	case typed > 0 && loose > 0:
		return collection.StructureMixed
	case typed > 0:
		return collection.StructureEnhanced
	case loose > 0 && looseWithYear == 0:
		return collection.StructureLegacy
	default:
		return collection.StructureDefault
	}
}

// reconcile merges the discovered album set into the stored document.
//
// Matching is by identity key, with a name+type fallback so a legacy folder
// without a year prefix still matches the record that knows the year.
// Matched albums keep previously captured year, genres and duration while
// track_count and folder_path are refreshed from disk. Known albums no
// longer on disk move to albums_missing; brand-new locals are appended and
// enriched from their audio tags.
func reconcile(doc *collection.BandDocument, bandName string, discovered []discoveredAlbum) *collection.BandDocument {
	if doc == nil {
		doc = &collection.BandDocument{BandName: bandName}
	}
	if doc.BandName == "" {
		doc.BandName = bandName
	}

	known := append(append([]collection.AlbumRecord{}, doc.Albums...), doc.AlbumsMissing...)
	matched := make([]bool, len(known))

	byKey := make(map[collection.AlbumKey]int, len(known))
	for i := range known {
		byKey[known[i].Key()] = i
	}

	var locals []collection.AlbumRecord
	for _, d := range discovered {
		idx, ok := byKey[d.record.Key()]
		if !ok {
			idx, ok = fallbackMatch(known, matched, d.record)
		}

		if ok && !matched[idx] {
			merged := known[idx]
			merged.TrackCount = d.record.TrackCount
			merged.FolderPath = d.record.FolderPath
			if merged.Year == 0 {
				merged.Year = d.record.Year
			}
			matched[idx] = true
			locals = append(locals, merged)
			continue
		}

		record := d.record
		tags := readAlbumTags(d.dir, d.musicFiles)
		if len(record.Genres) == 0 && tags.Genre != "" {
			record.Genres = []string{tags.Genre}
		}
		if record.Year == 0 && tags.Year != 0 {
			record.Year = tags.Year
		}
		locals = append(locals, record)
	}

	var missing []collection.AlbumRecord
	for i := range known {
		if matched[i] {
			continue
		}
		gone := known[i]
		gone.FolderPath = ""
		missing = append(missing, gone)
	}

	sort.Slice(locals, func(i, j int) bool { return locals[i].Name < locals[j].Name })
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })

	doc.Albums = locals
	doc.AlbumsMissing = missing
	doc.Normalize()
	doc.MetadataVersion = collection.MetadataVersion
	doc.LastUpdated = time.Now().UTC()
	return doc
}

// fallbackMatch finds the unique unmatched known album sharing a name and
// type with the discovered record, ignoring year and edition.
func fallbackMatch(known []collection.AlbumRecord, matched []bool, record collection.AlbumRecord) (int, bool) {
	name := strings.ToLower(record.Name)
	typ := strings.ToLower(string(record.Type))
	found := -1
	for i := range known {
		if matched[i] {
			continue
		}
		k := known[i].Key()
		if k.Name == name && k.Type == typ {
			if found >= 0 {
				return 0, false // ambiguous, treat as new
			}
			found = i
		}
	}
	if found < 0 {
		return 0, false
	}
	return found, true
}

// diffIndexes appends human-readable diff entries comparing the previous
// index with the freshly built one.
func diffIndexes(prev, next *collection.Index, report *Report) {
	prevByName := make(map[string]*collection.IndexEntry, len(prev.Entries))
	for i := range prev.Entries {
		prevByName[prev.Entries[i].Name] = &prev.Entries[i]
	}

	for i := range next.Entries {
		e := &next.Entries[i]
		old, existed := prevByName[e.Name]
		if !existed {
			report.BandsAdded = append(report.BandsAdded, e.Name)
			report.Changes = append(report.Changes,
				fmt.Sprintf("band added: %s (%d albums, %d local)", e.Name, e.AlbumsCount, e.LocalAlbumsCount))
			continue
		}
		delete(prevByName, e.Name)
		if old.AlbumsCount != e.AlbumsCount || old.LocalAlbumsCount != e.LocalAlbumsCount {
			report.BandsChanged = append(report.BandsChanged, e.Name)
			report.Changes = append(report.Changes,
				fmt.Sprintf("band changed: %s (%d -> %d albums, %d -> %d local)",
					e.Name, old.AlbumsCount, e.AlbumsCount, old.LocalAlbumsCount, e.LocalAlbumsCount))
		}
	}

	removed := make([]string, 0, len(prevByName))
	for name := range prevByName {
		removed = append(removed, name)
	}
	sort.Strings(removed)
	for _, name := range removed {
		report.BandsRemoved = append(report.BandsRemoved, name)
		report.Changes = append(report.Changes, fmt.Sprintf("band removed: %s", name))
	}
}
