package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tmc/langchaingo/documentloaders"
)

// LoadDocuments reads every file directly inside folder whose name ends with
// suffix. Subdirectories and non-matching files are skipped. One Document is
// returned per file, in file name order.
func LoadDocuments(ctx context.Context, folder, suffix string, exclude []string) ([]Document, error) {
	if suffix == "" {
		return nil, fmt.Errorf("%w: suffix cannot be empty", ErrInvalidOptions)
	}
	if err := validatePatterns(exclude); err != nil {
		return nil, err
	}

	cleanPath, err := validateFolder(folder)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("reading folder %s: %w", cleanPath, err)
	}

	var docs []Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !shouldInclude(entry.Name(), suffix, exclude) {
			continue
		}

		path := filepath.Join(cleanPath, entry.Name())
		content, err := loadText(ctx, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{
			Content:  content,
			Metadata: map[string]string{MetadataSource: path},
		})
	}
	return docs, nil
}

// loadText reads a whole file through the langchaingo text loader.
func loadText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	loaded, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", path, err)
	}

	var b strings.Builder
	for _, d := range loaded {
		b.WriteString(d.PageContent)
	}
	content := b.String()

	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEncoding, path)
	}
	return content, nil
}

// validateFolder validates and cleans a folder path.
func validateFolder(folder string) (string, error) {
	if folder == "" {
		return "", fmt.Errorf("%w: folder cannot be empty", ErrInvalidOptions)
	}

	cleanPath := filepath.Clean(folder)
	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("folder does not exist: %s", cleanPath)
		}
		return "", fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path must be a directory: %s", cleanPath)
	}
	return cleanPath, nil
}

func validatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: invalid exclude pattern %q", ErrInvalidOptions, pattern)
		}
	}
	return nil
}

// shouldInclude reports whether a file name ends with suffix and matches no
// exclude pattern. The suffix is literal, not a glob.
func shouldInclude(name, suffix string, exclude []string) bool {
	if !strings.HasSuffix(name, suffix) {
		return false
	}
	for _, pattern := range exclude {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return false
		}
	}
	return true
}
