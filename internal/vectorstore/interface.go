// Package vectorstore defines the vector storage capability used by the
// ingestion pipeline and the query service, with chromem-go and Qdrant
// implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrMissingEmbedding indicates a document without a precomputed vector.
	ErrMissingEmbedding = errors.New("document has no embedding")

	// ErrDimensionMismatch indicates vectors of different sizes in one batch.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidFilter indicates a malformed metadata filter.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrConnectionFailed indicates the store backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Document is a pre-embedded text to store.
type Document struct {
	// ID is the unique identifier. Upserting an existing ID replaces it.
	ID string

	// Content is the text returned by queries.
	Content string

	// Metadata holds string attributes usable in exact-match filters.
	Metadata map[string]string

	// Embedding is the vector computed by the embedding provider.
	Embedding []float32
}

// SearchResult is one nearest-neighbour hit.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32 // higher is more similar
	Metadata map[string]string
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size,omitempty"`
}

// Store is the narrow vector storage capability.
//
// Vectors are always computed by the caller; stores never call an embedding
// provider. Implementations must be safe for concurrent use.
type Store interface {
	// Upsert writes pre-embedded documents into collection, creating the
	// collection when needed. Returns the stored IDs in input order.
	Upsert(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Query returns up to k documents nearest to vector, best first. Every
	// filters entry must match the document metadata exactly. A missing or
	// empty collection and a filter nobody matches both yield an empty result.
	Query(ctx context.Context, collection string, vector []float32, k int, filters map[string]string) ([]SearchResult, error)

	// CollectionExists reports whether collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// GetCollectionInfo returns ErrCollectionNotFound for unknown collections.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases backend resources.
	Close() error
}

// ValidateCollectionName rejects empty names, path separators and other
// characters outside ^[A-Za-z0-9_-]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !config.ValidCollectionName(name) {
		return fmt.Errorf("%w: must match ^[A-Za-z0-9_-]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// ValidateFilters rejects filters with empty keys.
func ValidateFilters(filters map[string]string) error {
	for k := range filters {
		if k == "" {
			return fmt.Errorf("%w: empty metadata key", ErrInvalidFilter)
		}
	}
	return nil
}

// validateDocuments checks that every document carries an ID and a vector of
// the same dimension. Returns that dimension.
func validateDocuments(docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, ErrEmptyDocuments
	}
	dim := len(docs[0].Embedding)
	for i, doc := range docs {
		if doc.ID == "" {
			return 0, fmt.Errorf("document at index %d has empty ID", i)
		}
		if len(doc.Embedding) == 0 {
			return 0, fmt.Errorf("%w: index %d", ErrMissingEmbedding, i)
		}
		if len(doc.Embedding) != dim {
			return 0, fmt.Errorf("%w: index %d has %d, want %d", ErrDimensionMismatch, i, len(doc.Embedding), dim)
		}
	}
	return dim, nil
}
