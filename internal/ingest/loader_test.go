package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files under dir from a name->content map.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestLoadDocuments_SuffixFilter(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a_crisp.txt":         "alpha",
		"b_crisp.txt":         "beta",
		"notes.txt":           "ignored",
		"report.pdf":          "ignored",
		"crisp.txt.bak":       "ignored",
		"README.md":           "ignored",
		"nested/c_crisp.txt":  "not recursed",
		"nested2/x/crisp.txt": "not recursed",
	})

	docs, err := LoadDocuments(context.Background(), dir, "crisp.txt", nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "alpha", docs[0].Content)
	assert.Equal(t, filepath.Join(dir, "a_crisp.txt"), docs[0].Metadata[MetadataSource])
	assert.Equal(t, "beta", docs[1].Content)
}

func TestLoadDocuments_NoMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"notes.txt": "x", "guide.md": "y"})

	docs, err := LoadDocuments(context.Background(), dir, "crisp.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadDocuments_InvalidUTF8FailsRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a_crisp.txt": "fine",
		"b_crisp.txt": string([]byte{0xff, 0xfe, 0xfd}),
	})

	_, err := LoadDocuments(context.Background(), dir, "crisp.txt", nil)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestLoadDocuments_FolderErrors(t *testing.T) {
	ctx := context.Background()

	_, err := LoadDocuments(ctx, filepath.Join(t.TempDir(), "missing"), "crisp.txt", nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "x_crisp.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = LoadDocuments(ctx, file, "crisp.txt", nil)
	assert.Error(t, err)

	_, err = LoadDocuments(ctx, "", "crisp.txt", nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = LoadDocuments(ctx, t.TempDir(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestLoadDocuments_Exclude(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"keep_crisp.txt":    "keep",
		"draft_a_crisp.txt": "drop",
		"draft_b_crisp.txt": "drop",
	})

	docs, err := LoadDocuments(context.Background(), dir, "crisp.txt", []string{"draft_*"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep", docs[0].Content)

	_, err = LoadDocuments(context.Background(), dir, "crisp.txt", []string{"[unclosed"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestLoadDocuments_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a_crisp.txt": "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadDocuments(ctx, dir, "crisp.txt", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldInclude(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		exclude []string
		want    bool
	}{
		{"literal suffix", "notes_crisp.txt", nil, true},
		{"exact suffix", "crisp.txt", nil, true},
		{"other text file", "notes.txt", nil, false},
		{"suffix in middle", "crisp.txt.orig", nil, false},
		{"excluded", "old_crisp.txt", []string{"old_*"}, false},
		{"not excluded", "new_crisp.txt", []string{"old_*"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldInclude(tt.file, "crisp.txt", tt.exclude))
		})
	}
}
