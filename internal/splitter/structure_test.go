package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStructureEmpty(t *testing.T) {
	assert.Nil(t, SplitStructure("", 1000, 200))
}

func TestSplitStructureSectionsByHeading(t *testing.T) {
	text := "intro paragraph\n\n# First\n\nalpha\n\nbeta\n\nSection Two\n\ngamma"

	chunks := SplitStructure(text, 1000, 0)
	require.Len(t, chunks, 3)

	assert.Equal(t, Meta{"section_index": 0, "chunk_index": 0}, chunks[0].Meta)
	assert.Equal(t, "intro paragraph", chunks[0].Text)

	assert.Equal(t, Meta{"section_index": 1, "chunk_index": 0}, chunks[1].Meta)
	assert.Contains(t, chunks[1].Text, "alpha")
	assert.Contains(t, chunks[1].Text, "beta")

	assert.Equal(t, Meta{"section_index": 2, "chunk_index": 0}, chunks[2].Meta)
	assert.Contains(t, chunks[2].Text, "gamma")
}

func TestSplitStructureHeadingCaseInsensitive(t *testing.T) {
	text := "one\n\nCHAPTER 2\n\ntwo"
	chunks := SplitStructure(text, 1000, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[1].Meta["section_index"])
}

func TestSplitStructureOverlapSeedsNextChunk(t *testing.T) {
	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	p3 := strings.Repeat("c", 60)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := SplitStructure(text, 100, 20)
	require.True(t, len(chunks) >= 2)

	// every chunk after the first starts with the tail of its predecessor
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		tail := string(prev[len(prev)-20:])
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
			"chunk %d does not start with predecessor tail", i)
	}
}

func TestSplitStructureChunkSizeBound(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat("x", 80))
	}
	text := strings.Join(paras, "\n\n")

	maxChars, overlap, paraLen := 200, 40, 80
	chunks := SplitStructure(text, maxChars, overlap)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		// bounded by the budget plus the paragraph that triggered overflow
		// plus the overlap seed and joiners
		assert.LessOrEqual(t, len([]rune(c.Text)), maxChars+paraLen+overlap+4)
	}
}

func TestSplitStructureZeroParagraphSection(t *testing.T) {
	// a heading followed immediately by another heading produces a
	// section whose only content is its heading line; a fully blank
	// section yields no chunks
	text := "# A\ncontent under a\n\n# B\n\n# C\ncontent under c"
	chunks := SplitStructure(text, 1000, 0)

	sections := map[int]bool{}
	for _, c := range chunks {
		sections[c.Meta["section_index"]] = true
	}
	assert.True(t, sections[0])
	assert.True(t, sections[2])
}

func TestSplitStructureIdempotent(t *testing.T) {
	text := "# T\n\n" + strings.Repeat("para text here ", 40)
	first := SplitStructure(text, 120, 30)
	second := SplitStructure(text, 120, 30)
	assert.Equal(t, first, second)
}
