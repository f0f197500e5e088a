package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

const chromemProvider = "chromem"

// errPrecomputedOnly is returned by the collection embedding function. Every
// document and query reaches chromem with its vector already set.
var errPrecomputedOnly = errors.New("chromem store only accepts precomputed embeddings")

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. "~" expands to $HOME.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store on a persistent chromem-go database.
//
// Every write is persisted to Path immediately, so a second process opening
// the same directory sees the data the first one wrote.
type ChromemStore struct {
	db     *chromem.DB
	path   string
	logger *zap.Logger
}

// NewChromemStore opens (or creates) the database at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB at %s: %v", ErrConnectionFailed, path, err)
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return &ChromemStore{db: db, path: path, logger: logger}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// collection returns the named collection or nil. The embedding function must
// be non-nil: chromem falls back to OpenAI for persisted collections otherwise.
func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, precomputedOnly)
}

// Upsert writes pre-embedded documents, creating the collection on first use.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, docs []Document) (ids []string, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemProvider, "upsert", start, err) }()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	if err = ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	dim, err := validateDocuments(docs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	coll, err := s.db.GetOrCreateCollection(collection, nil, precomputedOnly)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids = make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		}
	}

	// Concurrency only matters for embedding; vectors are already present.
	if err = coll.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents to %s: %w", collection, err)
	}

	DocumentsUpserted.WithLabelValues(chromemProvider, collection).Add(float64(len(docs)))
	span.SetAttributes(attribute.Int("vector_size", dim))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
		zap.Int("total", coll.Count()),
	)

	return ids, nil
}

// Query returns the k nearest documents matching every filter.
func (s *ChromemStore) Query(ctx context.Context, collection string, vector []float32, k int, filters map[string]string) (results []SearchResult, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemProvider, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
		attribute.Int("filter_count", len(filters)),
	)

	if err = ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if err = ValidateFilters(filters); err != nil {
		return nil, err
	}

	coll := s.collection(collection)
	if coll == nil {
		span.SetStatus(codes.Ok, "collection not found")
		return []SearchResult{}, nil
	}

	// chromem rejects nResults larger than the collection.
	count := coll.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}

	hits, err := coll.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results = make([]SearchResult, len(hits))
	for i, r := range hits {
		results[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionExists")
	defer span.End()

	if err := ValidateCollectionName(collection); err != nil {
		return false, err
	}
	return s.collection(collection) != nil, nil
}

// GetCollectionInfo returns the document count of a collection.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	coll := s.collection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	info := &CollectionInfo{Name: collection, PointCount: coll.Count()}
	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// ListCollections returns all collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.ListCollections")
	defer span.End()

	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	return names, nil
}

// DeleteCollection removes a collection and its persisted files.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collection string) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemProvider, "delete_collection", start, err) }()

	span.SetAttributes(attribute.String("collection", collection))

	if err = ValidateCollectionName(collection); err != nil {
		return err
	}
	if s.collection(collection) == nil {
		return ErrCollectionNotFound
	}
	if err = s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.logger.Info("deleted collection", zap.String("collection", collection))
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed", zap.String("path", s.path))
	return nil
}

var _ Store = (*ChromemStore)(nil)
