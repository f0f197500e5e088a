package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// execute runs ragctl with args and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolateEnv points config and storage at temporary directories.
func isolateEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	storePath := t.TempDir()
	t.Setenv("VECTORSTORE_PATH", storePath)
	t.Setenv("VECTORSTORE_PROVIDER", "chromem")
	t.Setenv("LOGGING_LEVEL", "error")
	return storePath
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// fakeEmbeddings serves the OpenAI-compatible /v1/embeddings route that
// text-embeddings-inference exposes.
func fakeEmbeddings(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"embedding": []float32{float32(len(text)), 1, 0},
				"index":     i,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestCommand(t *testing.T) {
	storePath := isolateEnv(t)
	var requests atomic.Int32
	srv := fakeEmbeddings(t, &requests)
	t.Setenv("EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("EMBEDDINGS_BASE_URL", srv.URL)
	t.Setenv("EMBEDDINGS_DIMENSION", "3")

	docs := t.TempDir()
	writeFile(t, docs, "billing_crisp.txt", "Refunds are issued within five business days.")
	writeFile(t, docs, "ads_crisp.txt", "Ads are rejected when the landing page is unreachable.")
	writeFile(t, docs, "notes.md", "not ingested")

	out, err := execute(t, "ingest", docs, "--progress=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 chunks from 2 files into \"zocket_collectionV3\"")
	assert.Positive(t, requests.Load())

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: storePath}, nil)
	require.NoError(t, err)
	defer store.Close()

	info, err := store.GetCollectionInfo(context.Background(), "zocket_collectionV3")
	require.NoError(t, err)
	assert.Equal(t, 2, info.PointCount)

	results, err := store.Query(context.Background(), "zocket_collectionV3", []float32{1, 1, 0}, 2,
		map[string]string{"document_type": "troubleshooting"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIngestCommand_DryRun(t *testing.T) {
	isolateEnv(t)
	// An unreachable provider proves dry runs never embed.
	t.Setenv("EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("EMBEDDINGS_BASE_URL", "http://127.0.0.1:1")

	docs := t.TempDir()
	writeFile(t, docs, "a_crisp.txt", strings.Repeat("word ", 500))
	writeFile(t, docs, "b_crisp.txt", "short")

	out, err := execute(t, "ingest", "--folder", docs, "--document-type", "faq", "--dry-run", "--progress=false")
	require.NoError(t, err)
	assert.Contains(t, out, "from 2 files")
	assert.Contains(t, out, "document_type=faq")
	assert.Contains(t, out, "Would ingest")
}

func TestIngestCommand_MissingFolder(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "missing"), "--dry-run", "--progress=false")
	assert.Error(t, err)
}

func searchServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchCommand(t *testing.T) {
	var got map[string]any
	srv := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"content":"first"},{"content":"second"}],"query":"ad rejected"}`))
	})

	out, err := execute(t, "search", "--server", srv.URL, "--max-results", "2", "ad", "rejected")
	require.NoError(t, err)

	assert.Equal(t, "ad rejected", got["query"])
	assert.EqualValues(t, 2, got["max_results"])
	assert.Contains(t, out, "[Document 1]\nfirst")
	assert.Contains(t, out, "[Document 2]\nsecond")
}

func TestSearchCommand_NoResults(t *testing.T) {
	srv := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[],"query":"nothing"}`))
	})

	out, err := execute(t, "search", "--server", srv.URL, "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant documents found")
}

func TestSearchCommand_JSON(t *testing.T) {
	srv := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"content":"only"}],"query":"q"}`))
	})

	out, err := execute(t, "search", "--server", srv.URL, "--json", "q")
	require.NoError(t, err)

	var resp struct {
		Results []struct {
			Content string `json:"content"`
		} `json:"results"`
		Query string `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "q", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "only", resp.Results[0].Content)
}

func TestSearchCommand_ServerError(t *testing.T) {
	srv := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Search failed: embedding provider error"}`))
	})

	_, err := execute(t, "search", "--server", srv.URL, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Search failed")
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	_, err := execute(t, "search")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	srv := searchServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","message":"RAG service is running"}`))
	})

	out, err := execute(t, "health", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Server Status: healthy (RAG service is running)\n", out)
}

func TestHealthCommand_Unreachable(t *testing.T) {
	_, err := execute(t, "health", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check against http://127.0.0.1:1 failed")
}
