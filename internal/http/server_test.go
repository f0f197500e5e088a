package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// stubSearcher records the last query and returns canned results.
type stubSearcher struct {
	last    rag.Query
	calls   int
	results []rag.Result
	err     error
}

func (s *stubSearcher) Search(_ context.Context, q rag.Query) (*rag.Response, error) {
	s.calls++
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return &rag.Response{Results: s.results, Query: q.Text}, nil
}

type stubHealth struct {
	err error
}

func (h stubHealth) Health(context.Context) (*rag.HealthStatus, error) {
	if h.err != nil {
		return nil, h.err
	}
	return &rag.HealthStatus{Status: "healthy", Message: "RAG service is running"}, nil
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 9090}

		server, err := NewServer(&stubSearcher{}, stubHealth{}, logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&stubSearcher{}, stubHealth{}, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", server.config.Host)
		assert.Equal(t, 8001, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&stubSearcher{}, stubHealth{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when searcher is nil", func(t *testing.T) {
		_, err := NewServer(nil, stubHealth{}, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "searcher cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := setupTestServer(t, &stubSearcher{})
		rec := do(server, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "RAG service is running", resp.Message)
	})

	t.Run("unhealthy", func(t *testing.T) {
		server, err := NewServer(&stubSearcher{}, stubHealth{err: errors.New("store closed")}, logging.NewNop(), nil)
		require.NoError(t, err)

		rec := do(server, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Service unhealthy: store closed", detail(t, rec))
	})
}

func TestHandleHealth_WithoutDependencies(t *testing.T) {
	// Health stays green even when the provider and store are broken.
	svc, err := rag.NewService(failingEmbedder{}, failingStore{}, "zocket_collectionV3", nil)
	require.NoError(t, err)
	server, err := NewServer(svc, svc, logging.NewNop(), nil)
	require.NoError(t, err)

	rec := do(server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	t.Run("returns results in order", func(t *testing.T) {
		searcher := &stubSearcher{results: []rag.Result{{Content: "first"}, {Content: "second"}}}
		server := setupTestServer(t, searcher)

		rec := do(server, http.MethodPost, "/search", `{"query":"campaign rejected","max_results":2,"document_type":"troubleshooting"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"results":[{"content":"first"},{"content":"second"}],"query":"campaign rejected"}`, rec.Body.String())
		assert.Equal(t, rag.Query{Text: "campaign rejected", MaxResults: 2, DocumentType: "troubleshooting"}, searcher.last)
	})

	t.Run("defaults max_results to 3", func(t *testing.T) {
		searcher := &stubSearcher{}
		server := setupTestServer(t, searcher)

		rec := do(server, http.MethodPost, "/search", `{"query":"q","collection_name":"other"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, searcher.last.MaxResults)
		assert.Equal(t, "other", searcher.last.CollectionName)
		assert.Empty(t, searcher.last.DocumentType)
	})

	t.Run("empty results encode as a list", func(t *testing.T) {
		server := setupTestServer(t, &stubSearcher{results: []rag.Result{}})

		rec := do(server, http.MethodPost, "/search", `{"query":"nothing here"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"results":[],"query":"nothing here"}`, rec.Body.String())
	})

	t.Run("search failure is 500", func(t *testing.T) {
		searcher := &stubSearcher{err: errors.New("embedding provider failed: 401 unauthorized")}
		server := setupTestServer(t, searcher)

		rec := do(server, http.MethodPost, "/search", `{"query":"q"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		d := detail(t, rec)
		assert.True(t, strings.HasPrefix(d, "Search failed: "), d)
		assert.Contains(t, d, "401 unauthorized")
	})
}

func TestHandleSearch_Unprocessable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"max_results":2}`},
		{"empty body", ``},
		{"malformed json", `{"query":`},
		{"wrong type", `{"query":"q","max_results":"three"}`},
		{"zero max_results", `{"query":"q","max_results":0}`},
		{"negative max_results", `{"query":"q","max_results":-1}`},
		{"empty query", `{"query":""}`},
		{"blank query", `{"query":"  \t "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &stubSearcher{}
			server := setupTestServer(t, searcher)

			rec := do(server, http.MethodPost, "/search", tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, detail(t, rec))
			assert.Zero(t, searcher.calls)
		})
	}
}

func TestHandleSearch_MissingQueryDetail(t *testing.T) {
	server := setupTestServer(t, &stubSearcher{})

	rec := do(server, http.MethodPost, "/search", `{}`)
	assert.Equal(t, "query: field required", detail(t, rec))
}

func TestHandleSearch_BlankQueryDetail(t *testing.T) {
	server := setupTestServer(t, &stubSearcher{})

	rec := do(server, http.MethodPost, "/search", `{"query":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "query: must not be blank", detail(t, rec))
}

func TestHandleSearch_InvalidQueryFromService(t *testing.T) {
	searcher := &stubSearcher{err: fmt.Errorf("%w: max_results must be positive", rag.ErrInvalidQuery)}
	server := setupTestServer(t, searcher)

	rec := do(server, http.MethodPost, "/search", `{"query":"q"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "invalid query")
}

func TestHandleSearch_MissingContentTypeIsJSON(t *testing.T) {
	searcher := &stubSearcher{results: []rag.Result{{Content: "first"}}}
	server := setupTestServer(t, searcher)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"campaign rejected","max_results":1}`))
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "campaign rejected", searcher.last.Text)
	assert.Equal(t, 1, searcher.last.MaxResults)
}

func TestHandleSearch_OtherContentTypeRejected(t *testing.T) {
	server := setupTestServer(t, &stubSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`query=q`))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// TestHandleSearch_EmbeddingFailure drives a real rag.Service whose provider
// rejects the API key.
func TestHandleSearch_EmbeddingFailure(t *testing.T) {
	store := &countingStore{}
	svc, err := rag.NewService(failingEmbedder{}, store, "zocket_collectionV3", nil)
	require.NoError(t, err)
	server, err := NewServer(svc, svc, logging.NewNop(), nil)
	require.NoError(t, err)

	rec := do(server, http.MethodPost, "/search", `{"query":"why was my ad rejected"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(detail(t, rec), "Search failed: "))
	assert.Zero(t, store.calls)
}

func TestNotFound(t *testing.T) {
	server := setupTestServer(t, &stubSearcher{})

	rec := do(server, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, &stubSearcher{})

	rec := do(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down gracefully", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 0, // Use random available port
		}

		server, err := NewServer(&stubSearcher{}, stubHealth{}, logging.NewNop(), cfg)
		require.NoError(t, err)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start()
		}()

		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err = server.Shutdown(ctx)
		assert.NoError(t, err)

		select {
		case err := <-errChan:
			assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, &stubSearcher{})

		rec := do(server, http.MethodGet, "/health", "")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, &stubSearcher{})
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("logs requests with status and request id", func(t *testing.T) {
		logger := logging.NewTestLogger()
		server, err := NewServer(&stubSearcher{}, stubHealth{}, logger.Logger, nil)
		require.NoError(t, err)

		do(server, http.MethodPost, "/search", `{}`)

		entries := logger.FilterMessage("http request").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.EqualValues(t, http.StatusUnprocessableEntity, fields["status"])
		assert.NotEmpty(t, fields["request.id"])
		logger.AssertLogged(t, zapcore.InfoLevel, "http request")
	})
}

// setupTestServer creates a test server with a healthy checker.
func setupTestServer(t *testing.T, searcher Searcher) *Server {
	t.Helper()

	server, err := NewServer(searcher, stubHealth{}, logging.NewNop(), &Config{Host: "localhost", Port: 8001})
	require.NoError(t, err)
	return server
}

func do(server *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Detail
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("401 unauthorized: invalid api key")
}

type failingStore struct{}

func (failingStore) Query(context.Context, string, []float32, int, map[string]string) ([]vectorstore.SearchResult, error) {
	return nil, errors.New("store closed")
}

type countingStore struct {
	calls int
}

func (s *countingStore) Query(context.Context, string, []float32, int, map[string]string) ([]vectorstore.SearchResult, error) {
	s.calls++
	return nil, nil
}
