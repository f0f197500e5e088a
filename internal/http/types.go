package http

import "github.com/fyrsmithlabs/ragd/internal/rag"

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query string `json:"query" validate:"required,notblank"`
	// MaxResults defaults to rag.DefaultMaxResults when omitted.
	MaxResults     *int   `json:"max_results" validate:"omitempty,min=1"`
	CollectionName string `json:"collection_name"`
	DocumentType   string `json:"document_type"`
}

func (r SearchRequest) toQuery() rag.Query {
	q := rag.Query{
		Text:           r.Query,
		MaxResults:     rag.DefaultMaxResults,
		CollectionName: r.CollectionName,
		DocumentType:   r.DocumentType,
	}
	if r.MaxResults != nil {
		q.MaxResults = *r.MaxResults
	}
	return q
}

// SearchResponse is the response body for POST /search.
type SearchResponse struct {
	Results []rag.Result `json:"results"`
	Query   string       `json:"query"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
