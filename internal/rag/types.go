package rag

import "errors"

// Search errors. Every one of them surfaces as a generic search failure over
// HTTP; the distinction is for callers inside the process.
var (
	// ErrInvalidQuery indicates an empty query text or a non-positive result count.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidFilter indicates a filter the store rejected.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrProvider indicates the embedding provider failed.
	ErrProvider = errors.New("embedding provider failed")

	// ErrStoreUnavailable indicates the vector store failed.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)

// DefaultMaxResults is used when a query does not set MaxResults.
const DefaultMaxResults = 3

// Query is a similarity search request.
type Query struct {
	// Text is embedded and compared against stored chunks.
	Text string

	// MaxResults caps the number of results. Zero means DefaultMaxResults.
	MaxResults int

	// CollectionName is accepted for compatibility; searches always use the
	// service's configured collection.
	CollectionName string

	// DocumentType, when set, restricts results to chunks with exactly this tag.
	DocumentType string
}

// Result is one retrieved chunk. Metadata and scores are not exposed.
type Result struct {
	Content string `json:"content"`
}

// Response holds results ordered nearest first.
type Response struct {
	Results []Result `json:"results"`
	Query   string   `json:"query"`
}

// HealthStatus reports service liveness.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
