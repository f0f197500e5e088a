package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharedOverlap returns the length of the longest suffix of prev that is also
// a prefix of next, up to limit characters.
func sharedOverlap(prev, next string, limit int) int {
	for k := min(len(prev), len(next), limit); k > 0; k-- {
		if strings.HasSuffix(prev, next[:k]) {
			return k
		}
	}
	return 0
}

func sentenceText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Step %d: open the campaign settings and check the billing status. ", i)
	}
	return b.String()
}

func TestSplitter_ChunkContract(t *testing.T) {
	splitter, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	inputs := map[string]string{
		"repeated policy":  strings.Repeat("Ads must comply with policy. ", 50),
		"numbered steps":   sentenceText(80),
		"exactly 1000 + 1": strings.Repeat("abcd ", 200) + "z",
	}

	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			require.GreaterOrEqual(t, len(text), 1000)

			chunks, err := splitter.SplitText(text)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(chunks), 2)

			pos := 0
			for i, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), 1000, "chunk %d too long", i)
				assert.NotEmpty(t, chunk)

				// Chunks appear in the input in order.
				idx := strings.Index(text[pos:], chunk)
				require.GreaterOrEqual(t, idx, 0, "chunk %d not found in order", i)

				if i > 0 {
					overlap := sharedOverlap(chunks[i-1], chunk, 200)
					assert.Greater(t, overlap, 0, "chunks %d and %d share no overlap", i-1, i)
				}
				pos += idx
			}

			// The last chunk reaches the end of the input.
			assert.True(t, strings.HasSuffix(strings.TrimSpace(text), chunks[len(chunks)-1]))
		})
	}
}

func TestSplitter_ShortText(t *testing.T) {
	splitter, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	chunks, err := splitter.SplitText("Reset your password from the settings page.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reset your password from the settings page."}, chunks)

	chunks, err = splitter.SplitText("")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitter_PrefersParagraphs(t *testing.T) {
	splitter, err := NewSplitter(100, 20)
	require.NoError(t, err)

	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	chunks, err := splitter.SplitText(para1 + "\n\n" + para2)
	require.NoError(t, err)
	assert.Equal(t, []string{para1, para2}, chunks)
}

func TestSplitter_Split_CopiesMetadata(t *testing.T) {
	splitter, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	doc := Document{
		Content:  strings.Repeat("Ads must comply with policy. ", 50),
		Metadata: map[string]string{MetadataSource: "notes_crisp.txt"},
	}
	chunks, err := splitter.Split(doc)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	chunks[0].Metadata["extra"] = "x"
	assert.NotContains(t, chunks[1].Metadata, "extra")
	assert.NotContains(t, doc.Metadata, "extra")
	assert.Equal(t, "notes_crisp.txt", chunks[1].Metadata[MetadataSource])
}

func TestNewSplitter_Invalid(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewSplitter(100, 100)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewSplitter(100, -1)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
