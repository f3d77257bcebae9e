package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mpreviati/bandvault/pkg/collection"
)

// ParsedFolder is the result of parsing one album folder name.
type ParsedFolder struct {
	// Title is the album name with year, edition and type markers stripped.
	Title string

	// Year is the 4-digit release year, 0 when the name carries none.
	Year int

	// Type is the release type inferred from the name. Explicit type-folder
	// membership takes precedence over this at scan time.
	Type collection.AlbumType

	// Edition is the edition marker text, e.g. "Deluxe Edition".
	Edition string
}

// yearPatterns extract a release year from a folder name, tried in order.
// The first match wins and the matched text is removed from the title.
var yearPatterns = []*regexp.Regexp{
	// "1969 - Abbey Road"
	regexp.MustCompile(`^(\d{4})\s*-\s*(.+)$`),
	// "Abbey Road (1969)"
	regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*(.*)$`),
	// "Abbey Road [1969]"
	regexp.MustCompile(`^(.*?)\s*\[(\d{4})\]\s*(.*)$`),
}

// editionPattern matches a parenthesised edition marker.
var editionPattern = regexp.MustCompile(`(?i)\s*\(([^)]*(?:edition|deluxe|remaster(?:ed)?|anniversary|limited|expanded|bonus|reissue)[^)]*)\)`)

// typePatterns map name markers to release types, tried in order. Earlier
// rows are more specific; the first match wins and parenthesised markers are
// stripped from the title.
var typePatterns = []struct {
	re  *regexp.Regexp
	typ collection.AlbumType
}{
	{regexp.MustCompile(`(?i)\s*\(live(?:\s+at[^)]*|\s+in[^)]*)?\)`), collection.TypeLive},
	{regexp.MustCompile(`(?i)\s*\(ep\)`), collection.TypeEP},
	{regexp.MustCompile(`(?i)\s*\(demo(?:s)?\)`), collection.TypeDemo},
	{regexp.MustCompile(`(?i)\s*\(compilation\)`), collection.TypeCompilation},
	{regexp.MustCompile(`(?i)\s*\(single\)`), collection.TypeSingle},
	{regexp.MustCompile(`(?i)\s*\(instrumental(?:s)?\)`), collection.TypeInstrumental},
	{regexp.MustCompile(`(?i)\s*\(split\)`), collection.TypeSplit},
	{regexp.MustCompile(`(?i)\bdemo(?:s)?$`), collection.TypeDemo},
	{regexp.MustCompile(`(?i)\bep$`), collection.TypeEP},
	{regexp.MustCompile(`(?i)\blive$`), collection.TypeLive},
}

// ParseAlbumFolder parses an album folder name into its parts using the
// ordered pattern tables above. Parsing never fails: a name with no
// recognizable markers becomes a TypeAlbum with the name as title.
func ParseAlbumFolder(name string) ParsedFolder {
	parsed := ParsedFolder{Type: collection.TypeAlbum}
	title := strings.TrimSpace(name)

	// Year first so "(1969)" is not mistaken for an edition marker.
	for _, re := range yearPatterns {
		m := re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		var rest []string
		for _, part := range m[1:] {
			if year, err := strconv.Atoi(part); err == nil && len(part) == 4 {
				parsed.Year = year
			} else if part != "" {
				rest = append(rest, part)
			}
		}
		if parsed.Year != 0 {
			title = strings.TrimSpace(strings.Join(rest, " "))
			break
		}
	}

	if m := editionPattern.FindStringSubmatch(title); m != nil {
		parsed.Edition = strings.TrimSpace(m[1])
		title = strings.TrimSpace(editionPattern.ReplaceAllString(title, ""))
	}

	for _, row := range typePatterns {
		if row.re.MatchString(title) {
			parsed.Type = row.typ
			if strings.Contains(row.re.String(), `\(`) {
				title = strings.TrimSpace(row.re.ReplaceAllString(title, ""))
			}
			break
		}
	}

	parsed.Title = title
	return parsed
}

// typeFolderFor returns the AlbumType for a directory that is a type bucket
// of the enhanced layout, and whether it is one.
func typeFolderFor(name string) (collection.AlbumType, bool) {
	for _, t := range collection.AlbumTypes {
		if strings.EqualFold(name, string(t)) {
			return t, true
		}
	}
	return "", false
}
