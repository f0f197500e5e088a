// Package rag answers similarity-search queries against the ingested
// collection.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.rag")

// metadataDocumentType matches the key written by the ingestion pipeline.
const metadataDocumentType = "document_type"

// Embedder embeds a single search query.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the nearest stored chunks to a vector.
type Searcher interface {
	Query(ctx context.Context, collection string, vector []float32, k int, filters map[string]string) ([]vectorstore.SearchResult, error)
}

// Service embeds queries and searches one collection. The embedder and store
// are created once by the caller and shared across requests.
type Service struct {
	embedder   Embedder
	store      Searcher
	collection string
	metrics    *Metrics
	logger     *logging.Logger
}

// NewService creates a search service over collection.
func NewService(embedder Embedder, store Searcher, collection string, logger *logging.Logger) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{
		embedder:   embedder,
		store:      store,
		collection: collection,
		metrics:    NewMetrics(logger.Underlying()),
		logger:     logger.Named("rag"),
	}, nil
}

// Collection returns the collection searched by the service.
func (s *Service) Collection() string {
	return s.collection
}

// Search returns up to q.MaxResults chunk contents nearest to q.Text,
// optionally restricted to chunks tagged q.DocumentType. A tag nobody has
// yields an empty result, not an error.
func (s *Service) Search(ctx context.Context, q Query) (resp *Response, err error) {
	ctx, span := tracer.Start(ctx, "Service.Search")
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.RecordSearch(ctx, q.DocumentType != "", time.Since(start), resultCount(resp), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults < 0 {
		return nil, fmt.Errorf("%w: max_results must be positive, got %d", ErrInvalidQuery, q.MaxResults)
	}
	if q.CollectionName != "" && q.CollectionName != s.collection {
		s.logger.Debug(ctx, "ignoring requested collection",
			zap.String("requested", q.CollectionName),
			zap.String("collection", s.collection),
		)
	}

	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("max_results", q.MaxResults),
		attribute.String("document_type", q.DocumentType),
	)

	vector, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	var filters map[string]string
	if q.DocumentType != "" {
		filters = map[string]string{metadataDocumentType: q.DocumentType}
	}

	hits, err := s.store.Query(ctx, s.collection, vector, q.MaxResults, filters)
	if err != nil {
		if errors.Is(err, vectorstore.ErrInvalidFilter) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if len(hits) > q.MaxResults {
		hits = hits[:q.MaxResults]
	}
	resp = &Response{
		Results: make([]Result, len(hits)),
		Query:   q.Text,
	}
	for i, h := range hits {
		resp.Results[i] = Result{Content: h.Content}
	}

	span.SetAttributes(attribute.Int("results_count", len(resp.Results)))
	s.logger.Debug(ctx, "search complete",
		zap.Int("results", len(resp.Results)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// Health reports the service as healthy while the process can answer. It
// does not contact the embedder or the store.
func (s *Service) Health(_ context.Context) (*HealthStatus, error) {
	return &HealthStatus{Status: "healthy", Message: "RAG service is running"}, nil
}

func resultCount(resp *Response) int {
	if resp == nil {
		return 0
	}
	return len(resp.Results)
}
