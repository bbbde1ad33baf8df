package textsplitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakita/querybridge/config"
)

func TestRecursiveSplitter_RespectsChunkSize(t *testing.T) {
	ts, err := NewTextSplitter(&config.SplitterConfig{Provider: "recursive", ChunkSize: 40})
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the dog. ", 10)
	chunks, err := ts.SplitText(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 40)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestRecursiveSplitter_ShortTextSingleChunk(t *testing.T) {
	ts, err := NewTextSplitter(&config.SplitterConfig{ChunkSize: 500})
	require.NoError(t, err)

	chunks, err := ts.SplitText("short note")
	require.NoError(t, err)
	assert.Equal(t, []string{"short note"}, chunks)
}

func TestRecursiveSplitter_PrefersParagraphBoundaries(t *testing.T) {
	ts := &RecursiveCharacterSplitter{
		ChunkSize:  30,
		Separators: []string{"\n\n", "\n", " ", ""},
	}
	chunks, err := ts.SplitText("first paragraph here\n\nsecond paragraph here")
	require.NoError(t, err)
	assert.Equal(t, []string{"first paragraph here", "second paragraph here"}, chunks)
}

func TestSplitWithHeadings(t *testing.T) {
	ts, err := NewTextSplitter(&config.SplitterConfig{ChunkSize: 500})
	require.NoError(t, err)

	text := "intro text\n\n# Returns\nitems may be returned within 30 days\n\n## Refunds\nrefunds are issued to the original payment method"
	pieces, err := SplitWithHeadings(ts, text)
	require.NoError(t, err)
	require.Len(t, pieces, 3)

	assert.Equal(t, "", pieces[0].Heading)
	assert.Equal(t, "Returns", pieces[1].Heading)
	assert.Equal(t, "Refunds", pieces[2].Heading)
	assert.Contains(t, pieces[2].Text, "original payment method")
}

func TestTokenSplitter(t *testing.T) {
	ts, err := NewTokenSplitter(8, 2)
	require.NoError(t, err)

	text := strings.Repeat("alpha beta gamma delta ", 12)
	chunks, err := ts.SplitText(text)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)

	// Windows overlap, so rejoining must cover the full text content.
	joined := strings.Join(chunks, "")
	assert.Contains(t, joined, "alpha beta gamma delta")
}

func TestNewTextSplitter_UnknownProvider(t *testing.T) {
	_, err := NewTextSplitter(&config.SplitterConfig{Provider: "semantic"})
	assert.Error(t, err)
}
