package splitter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filler produces deterministic prose of exactly n characters, made of
// 50-character sentences so boundary search always finds a terminator.
func filler(n int, seed int) string {
	var b strings.Builder
	i := seed
	for b.Len() < n {
		s := fmt.Sprintf("Sentence number %04d fills this line with words", i)
		for len(s) < 49 {
			s += "x"
		}
		b.WriteString(s[:49] + ".")
		i++
	}
	return b.String()[:n]
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewMathAware(100, 20)
	chunks, err := s.SplitText("")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	s := NewMathAware(1000, 200)
	text := "A short paragraph with inline math $x^2 + y^2 = z^2$ in it."
	chunks, err := s.SplitText(text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestMathSpansSurviveVerbatim(t *testing.T) {
	spans := []string{
		"$$\\int_0^1 x^2 \\, dx = \\frac{1}{3}$$",
		"\\begin{equation}e^{i\\pi} + 1 = 0\\end{equation}",
		"\\[\\sum_{n=1}^{\\infty} \\frac{1}{n^2} = \\frac{\\pi^2}{6}\\]",
		"$a \\ne b$",
		"\\begin{align}f(x) &= x \\\\ g(x) &= x^2\\end{align}",
	}

	var b strings.Builder
	for i, span := range spans {
		b.WriteString(filler(400, i*10))
		b.WriteString(span)
	}
	b.WriteString(filler(400, 99))
	text := b.String()

	// Overlap shorter than a placeholder token keeps whole spans out of
	// overlap regions, so each one must land in exactly one chunk.
	s := NewMathAware(300, 10)
	chunks, err := s.SplitText(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, span := range spans {
		hits := 0
		for _, chunk := range chunks {
			hits += strings.Count(chunk, span)
		}
		assert.Equal(t, 1, hits, "span %q must appear verbatim exactly once", span)
	}

	for _, chunk := range chunks {
		assert.NotContains(t, chunk, "__MATH_", "no placeholder may leak into output")
	}
}

func TestChunkLengthBound(t *testing.T) {
	span := "$$" + strings.Repeat("x+", 60) + "1$$"
	text := filler(700, 0) + span + filler(700, 50)

	size := 500
	s := NewMathAware(size, 50)
	chunks, err := s.SplitText(text)
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	// Every non-final chunk is bounded by chunk_size + boundary slack, plus
	// at most one restored span that straddled the ideal boundary.
	for i, chunk := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, len(chunk), size+boundarySlack+len(span),
			"chunk %d exceeds the documented bound", i)
	}
}

func TestDisplayBlockAcrossIdealBoundary(t *testing.T) {
	// 2,500 characters with a 150-character $$...$$ block spanning
	// characters 900-1050, split at size 1000 / overlap 200.
	block := "$$" + strings.Repeat("a", 146) + "$$"
	require.Len(t, block, 150)

	text := filler(900, 0) + block + filler(1450, 40)
	require.Len(t, text, 2500)

	s := NewMathAware(1000, 200)
	chunks, err := s.SplitText(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// The first chunk carries the whole block, so it ends at or after
	// character 1050.
	assert.Contains(t, chunks[0], block)

	// The second chunk starts between characters 750 and 900.
	prefix := strings.Replace(chunks[1], block, "", 1)[:40]
	start := strings.Index(text, prefix)
	require.GreaterOrEqual(t, start, 0)
	assert.GreaterOrEqual(t, start, 750)
	assert.LessOrEqual(t, start, 900)
}

func TestReconstructionWithoutOverlap(t *testing.T) {
	text := filler(1200, 0) + "$$E = mc^2$$" + filler(1200, 30)

	s := NewMathAware(400, 0)
	chunks, err := s.SplitText(text)
	require.NoError(t, err)

	// With zero overlap, concatenation reproduces the input byte for byte.
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitterIsPure(t *testing.T) {
	text := filler(800, 0) + "$x=1$" + filler(800, 20)
	s := NewMathAware(300, 60)

	first, err := s.SplitText(text)
	require.NoError(t, err)
	second, err := s.SplitText(text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
