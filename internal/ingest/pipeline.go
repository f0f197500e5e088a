package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.ingest")

// Embedder generates one vector per text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Store receives embedded chunks.
type Store interface {
	Upsert(ctx context.Context, collection string, docs []vectorstore.Document) ([]string, error)
}

// Redactor masks secrets in document text.
type Redactor interface {
	Redact(content string) secrets.Result
}

// Pipeline loads, splits, tags, embeds and stores documents.
type Pipeline struct {
	opts     Options
	splitter *Splitter
	redactor Redactor
	embedder Embedder
	store    Store
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// New creates a Pipeline. embedder and store are only required by Run.
func New(opts Options, embedder Embedder, store Store, logger *logging.Logger) (*Pipeline, error) {
	opts.applyDefaults()
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidOptions, opts.BatchSize)
	}
	if opts.BatchesPerSecond < 0 {
		return nil, fmt.Errorf("%w: batches per second must not be negative", ErrInvalidOptions)
	}
	if err := vectorstore.ValidateCollectionName(opts.Collection); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := validatePatterns(opts.Exclude); err != nil {
		return nil, err
	}

	splitter, err := NewSplitter(opts.ChunkSize, *opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	p := &Pipeline{
		opts:     opts,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger.Named("ingest"),
	}
	if opts.BatchesPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.BatchesPerSecond), 1)
	}
	if opts.RedactSecrets {
		r, err := secrets.New(opts.SecretsAllowlist)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		p.redactor = r
	}
	return p, nil
}

// Process loads every matching file in folder, splits it and tags each chunk
// with the configured document type.
func (p *Pipeline) Process(ctx context.Context, folder string) ([]Chunk, error) {
	chunks, _, err := p.process(ctx, folder)
	return chunks, err
}

type processStats struct {
	files    int
	redacted int
}

func (p *Pipeline) process(ctx context.Context, folder string) ([]Chunk, processStats, error) {
	var stats processStats
	docs, err := LoadDocuments(ctx, folder, p.opts.Suffix, p.opts.Exclude)
	if err != nil {
		return nil, stats, err
	}
	stats.files = len(docs)

	var chunks []Chunk
	for _, doc := range docs {
		if p.redactor != nil {
			res := p.redactor.Redact(doc.Content)
			if res.Count() > 0 {
				p.logger.Warn(ctx, "redacted secrets",
					zap.String("source", doc.Metadata[MetadataSource]),
					zap.Int("count", res.Count()),
					zap.Strings("rules", res.RuleIDs()),
				)
				stats.redacted += res.Count()
			}
			doc.Content = res.Content
		}

		split, err := p.splitter.Split(doc)
		if err != nil {
			return nil, stats, err
		}
		for i := range split {
			split[i].Metadata[MetadataDocumentType] = p.opts.DocumentType
		}
		p.logger.Debug(ctx, "split document",
			zap.String("source", doc.Metadata[MetadataSource]),
			zap.Int("length", len(doc.Content)),
			zap.Int("chunks", len(split)),
		)
		chunks = append(chunks, split...)
	}
	return chunks, stats, nil
}

// Run processes folder, then embeds the chunks in batches and upserts them
// into the configured collection. The first failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, folder string) (result *Result, err error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if p.embedder == nil || p.store == nil {
		return nil, fmt.Errorf("%w: embedder and store are required", ErrInvalidOptions)
	}

	start := time.Now()
	chunks, stats, err := p.process(ctx, folder)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("collection", p.opts.Collection),
		attribute.Int("files", stats.files),
		attribute.Int("chunks", len(chunks)),
		attribute.Int("redacted", stats.redacted),
	)
	p.logger.Info(ctx, "documents loaded",
		zap.String("folder", folder),
		zap.String("suffix", p.opts.Suffix),
		zap.Int("files", stats.files),
		zap.Int("chunks", len(chunks)),
	)

	result = &Result{
		Folder:     folder,
		Collection: p.opts.Collection,
		Files:      stats.files,
		Redacted:   stats.redacted,
		IDs:        make([]string, 0, len(chunks)),
	}
	if len(chunks) == 0 {
		p.logger.Warn(ctx, "no matching documents", zap.String("folder", folder))
		result.Duration = time.Since(start)
		return result, nil
	}

	progress := newProgress(p.opts.ShowProgress)
	progress.Start(len(chunks))
	defer progress.Finish()

	for batchStart := 0; batchStart < len(chunks); batchStart += p.opts.BatchSize {
		batch := chunks[batchStart:min(batchStart+p.opts.BatchSize, len(chunks))]
		ids, err := p.storeBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("storing chunks %d-%d: %w", batchStart, batchStart+len(batch)-1, err)
		}
		result.IDs = append(result.IDs, ids...)
		progress.Add(len(batch))
	}

	result.Chunks = len(result.IDs)
	result.Duration = time.Since(start)

	p.logger.Info(ctx, "ingestion complete",
		zap.String("collection", p.opts.Collection),
		zap.Int("files", result.Files),
		zap.Int("chunks", result.Chunks),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// storeBatch embeds one batch and upserts it under fresh IDs.
func (p *Pipeline) storeBatch(ctx context.Context, batch []Chunk) ([]string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	docs := make([]vectorstore.Document, len(batch))
	for i, c := range batch {
		docs[i] = vectorstore.Document{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}

	ids, err := p.store.Upsert(ctx, p.opts.Collection, docs)
	if err != nil {
		return nil, fmt.Errorf("upserting: %w", err)
	}
	return ids, nil
}
