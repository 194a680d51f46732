// Package splitter provides a text splitter that never severs LaTeX math
// expressions. Math spans are masked with placeholder tokens before
// windowing, window boundaries are forbidden inside a token, and the tokens
// are restored afterwards, so every expression survives chunking verbatim.
package splitter

import (
	"fmt"
	"regexp"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// How far a window boundary may drift from the ideal cut while looking
	// for a sentence terminator.
	boundarySlack = 100
)

// Ordered: display forms before inline forms, so $$...$$ is never half-eaten
// by the $...$ pattern.
var mathPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`\$\$[\s\S]*?\$\$`), "DISPLAY"},
	{regexp.MustCompile(`\\\[[\s\S]*?\\\]`), "DISPLAY_ALT"},
	{regexp.MustCompile(`\\begin\{equation\}[\s\S]*?\\end\{equation\}`), "EQUATION"},
	{regexp.MustCompile(`\\begin\{align\}[\s\S]*?\\end\{align\}`), "ALIGN"},
	{regexp.MustCompile(`\\begin\{gather\}[\s\S]*?\\end\{gather\}`), "GATHER"},
	{regexp.MustCompile(`\$[^$\n]+\$`), "INLINE"},
	{regexp.MustCompile(`\\\([\s\S]*?\\\)`), "INLINE_ALT"},
}

var placeholderRe = regexp.MustCompile(`__MATH_[A-Z_]+_\d+__`)

// MathAware splits text into chunks of roughly ChunkSize characters,
// preferring sentence or line boundaries and keeping math expressions whole.
// Overlap is measured on the masked text, so the restored overlap can exceed
// the nominal value when it brings a long math span back.
type MathAware struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ textsplitter.TextSplitter = MathAware{}

func NewMathAware(chunkSize, chunkOverlap int) MathAware {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return MathAware{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

func (s MathAware) SplitText(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}

	masked, originals := maskMath(text)
	spans := placeholderSpans(masked)

	var chunks []string
	start := 0
	n := len(masked)

	for start < n {
		end := start + s.ChunkSize
		if end >= n {
			chunks = append(chunks, restore(masked[start:], originals))
			break
		}

		split := s.findSplit(masked, spans, start, end)
		chunks = append(chunks, restore(masked[start:split], originals))

		next := split - s.ChunkOverlap
		if sp, inside := covering(spans, next); inside {
			// Overlap would begin mid-token; start past the token instead.
			// The overlap shrinks, but no chunk ever carries a severed token.
			next = sp[1]
		}
		if next <= start {
			next = split
		}
		start = next
	}

	return chunks, nil
}

// findSplit picks the cut position for a window starting at start with ideal
// end. It prefers a sentence terminator or newline within boundarySlack of
// the ideal end and never cuts inside a placeholder token.
func (s MathAware) findSplit(masked string, spans [][2]int, start, end int) int {
	n := len(masked)
	lo := end - boundarySlack
	if lo <= start {
		lo = start + 1
	}
	hi := end + boundarySlack
	if hi > n {
		hi = n
	}

	for i := lo; i < hi; i++ {
		c := masked[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		if c == '.' && masked[i-1] == '.' {
			continue
		}
		cut := i + 1
		if _, inside := covering(spans, cut); inside {
			continue
		}
		return cut
	}

	// No boundary found; cut at the ideal end, shifted past any token it
	// would sever. This shift is the hard invariant, not a heuristic.
	split := end
	if sp, inside := covering(spans, split); inside {
		split = sp[1]
	}
	if split > n {
		split = n
	}
	return split
}

func maskMath(text string) (string, map[string]string) {
	originals := make(map[string]string)
	counter := 0
	masked := text

	for _, p := range mathPatterns {
		masked = p.re.ReplaceAllStringFunc(masked, func(match string) string {
			token := fmt.Sprintf("__MATH_%s_%d__", p.kind, counter)
			originals[token] = match
			counter++
			return token
		})
	}

	return masked, originals
}

func placeholderSpans(masked string) [][2]int {
	idx := placeholderRe.FindAllStringIndex(masked, -1)
	spans := make([][2]int, 0, len(idx))
	for _, pair := range idx {
		spans = append(spans, [2]int{pair[0], pair[1]})
	}
	return spans
}

// covering reports the span strictly containing pos. Cutting exactly at a
// span edge is allowed.
func covering(spans [][2]int, pos int) ([2]int, bool) {
	for _, sp := range spans {
		if sp[0] < pos && pos < sp[1] {
			return sp, true
		}
	}
	return [2]int{}, false
}

func restore(chunk string, originals map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(chunk, func(token string) string {
		if original, ok := originals[token]; ok {
			return original
		}
		return token
	})
}
