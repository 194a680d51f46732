package vectorstore

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength = 100

	defaultTitle       = "Untitled Document"
	defaultAuthor      = "Unknown"
	defaultPublisher   = "Unknown"
	defaultDate        = "Unknown"
	defaultLanguage    = "en"
	defaultContentType = "text"
	defaultSourceType  = "document"
)

// ChunkMetadata is the typed record stored next to every vector. Older
// collections were written with different field names for the same concept
// ("title" vs "subject" vs "name"), so the storage schema mirrors the title
// into every alias; Normalize fills the rest. Extra carries open fields such
// as the source page number.
type ChunkMetadata struct {
	DocumentID    int64
	Filename      string
	Title         string
	ChunkIndex    int
	TotalChunks   int
	ChunkID       string
	Collection    string
	ContentLength int
	FileSize      int64
	FileType      string
	Author        string
	Publisher     string
	Date          string
	Keywords      string
	Description   string
	Language      string
	ContentType   string
	SourceType    string
	ProcessedAt   string
	Extra         map[string]any
}

// Normalize fills defaults, derives the title from the filename when absent,
// and coerces numeric-looking extension fields into their typed homes. It is
// idempotent: Normalize(Normalize(m)) == Normalize(m).
func Normalize(m ChunkMetadata) ChunkMetadata {
	out := m

	if out.Title == "" {
		out.Title = titleFromFilename(out.Filename)
	}
	out.Title = truncateTitle(out.Title)

	if out.ChunkID == "" {
		out.ChunkID = strconv.FormatInt(out.DocumentID, 10) + "_" + strconv.Itoa(out.ChunkIndex)
	}
	if out.Author == "" {
		out.Author = stringExtra(out.Extra, "author", stringExtra(out.Extra, "creator", defaultAuthor))
	}
	if out.Publisher == "" {
		out.Publisher = stringExtra(out.Extra, "producer", defaultPublisher)
	}
	if out.Date == "" {
		out.Date = stringExtra(out.Extra, "creationdate", defaultDate)
	}
	if out.Description == "" {
		out.Description = out.Title
	}
	if out.Language == "" {
		out.Language = defaultLanguage
	}
	if out.ContentType == "" {
		out.ContentType = defaultContentType
	}
	if out.SourceType == "" {
		out.SourceType = defaultSourceType
	}

	out.Extra = coerceExtra(&out, m.Extra)
	return out
}

// coerceExtra moves numeric-looking well-known fields out of the extension
// map into their typed homes and copies the rest through unchanged.
func coerceExtra(m *ChunkMetadata, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}

	out := make(map[string]any, len(extra))
	for k, v := range extra {
		switch k {
		case "document_id":
			if m.DocumentID == 0 {
				m.DocumentID = asInt64(v)
			}
		case "chunk_index":
			if m.ChunkIndex == 0 {
				m.ChunkIndex = int(asInt64(v))
			}
		case "total_chunks":
			if m.TotalChunks == 0 {
				m.TotalChunks = int(asInt64(v))
			}
		default:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func stringExtra(extra map[string]any, key, fallback string) string {
	if s, ok := extra[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func titleFromFilename(filename string) string {
	if filename == "" {
		return defaultTitle
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// truncateTitle bounds the title to maxTitleLength characters. It counts and
// cuts on runes so multibyte titles never truncate into invalid UTF-8.
func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleLength-3]) + "..."
}
