package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/h2non/filetype"
	"github.com/mpreviati/bandvault/internal/logger"
)

// musicExtensions is the fixed set of file extensions counted as music.
var musicExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".m4a":  {},
	".ogg":  {},
	".wav":  {},
	".wma":  {},
	".aac":  {},
	".opus": {},
}

// isMusicFile reports whether path holds audio. Known extensions are
// trusted; files without one are sniffed by magic bytes so renamed rips
// still count.
func isMusicFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := musicExtensions[ext]; ok {
		return true
	}
	if ext != "" {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil || n == 0 {
		return false
	}
	return filetype.IsAudio(head[:n])
}

// albumTags is the metadata read from an album's audio files.
type albumTags struct {
	Genre string
	Year  int
}

// readAlbumTags reads the embedded tags of the first taggable music file in
// dir. Enrichment is best effort: any failure returns empty tags and is
// logged at debug level only.
func readAlbumTags(dir string, files []string) albumTags {
	sort.Strings(files)
	for _, name := range files {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		meta, err := tag.ReadFrom(f)
		_ = f.Close()
		if err != nil {
			logger.Debug("no readable tags in %s: %v", path, err)
			continue
		}
		return albumTags{
			Genre: strings.TrimSpace(meta.Genre()),
			Year:  meta.Year(),
		}
	}
	return albumTags{}
}
