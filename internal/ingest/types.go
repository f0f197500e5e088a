package ingest

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

var (
	// ErrInvalidEncoding is returned when a matched file is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")

	// ErrInvalidOptions indicates invalid pipeline options.
	ErrInvalidOptions = errors.New("invalid ingest options")
)

// MetadataDocumentType is the metadata key carrying the document type tag.
const MetadataDocumentType = "document_type"

// MetadataSource is the metadata key carrying the source file path.
const MetadataSource = "source"

// Document is the full text of one source file.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is a contiguous piece of a Document. It inherits the Document's
// metadata plus the document type tag.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Options configures a Pipeline.
type Options struct {
	// Suffix selects files by the literal end of their name. Default: crisp.txt.
	Suffix string

	// Exclude holds doublestar patterns; matching file names are skipped.
	Exclude []string

	// ChunkSize is the target chunk length in characters. Default: 1000.
	ChunkSize int

	// ChunkOverlap is the maximum overlap between consecutive chunks. Nil
	// means 200; a pointer to 0 disables overlap.
	ChunkOverlap *int

	// DocumentType tags every chunk. Default: troubleshooting.
	DocumentType string

	// Collection receives the upserted chunks.
	Collection string

	// BatchSize is the number of chunks per embedding call. Default: 64.
	BatchSize int

	// BatchesPerSecond paces embedding calls. Zero means unlimited.
	BatchesPerSecond float64

	// ShowProgress draws a progress bar on stderr.
	ShowProgress bool

	// RedactSecrets masks credentials found by Gitleaks before splitting.
	RedactSecrets bool

	// SecretsAllowlist is an optional TOML allowlist for the redactor.
	SecretsAllowlist string
}

// OptionsFromConfig builds pipeline options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	overlap := cfg.Ingest.ChunkOverlap
	return Options{
		Suffix:           cfg.Ingest.Suffix,
		Exclude:          cfg.Ingest.Exclude,
		ChunkSize:        cfg.Ingest.ChunkSize,
		ChunkOverlap:     &overlap,
		DocumentType:     cfg.Ingest.DocumentType,
		Collection:       cfg.VectorStore.Collection,
		BatchSize:        cfg.Ingest.BatchSize,
		BatchesPerSecond: cfg.Ingest.BatchesPerSecond,
		RedactSecrets:    cfg.Ingest.RedactSecrets,
		SecretsAllowlist: cfg.Ingest.SecretsAllowlist,
	}
}

func (o *Options) applyDefaults() {
	if o.Suffix == "" {
		o.Suffix = "crisp.txt"
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 1000
	}
	if o.ChunkOverlap == nil {
		overlap := config.DefaultChunkOverlap
		o.ChunkOverlap = &overlap
	}
	if o.DocumentType == "" {
		o.DocumentType = config.DefaultDocumentType
	}
	if o.Collection == "" {
		o.Collection = config.DefaultCollection
	}
	if o.BatchSize == 0 {
		o.BatchSize = 64
	}
}

// Result summarizes a completed run.
type Result struct {
	// Folder is the cleaned folder path that was ingested.
	Folder string

	// Collection is where chunks were upserted.
	Collection string

	// Files is the number of files that matched the suffix.
	Files int

	// Chunks is the number of chunks embedded and upserted.
	Chunks int

	// Redacted counts secrets masked before splitting.
	Redacted int

	// IDs are the store IDs of the upserted chunks, in chunk order.
	IDs []string

	Duration time.Duration
}
