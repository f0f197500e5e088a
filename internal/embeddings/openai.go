package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultTEIModel    = "BAAI/bge-small-en-v1.5"
	defaultBatchSize   = 512

	// teiToken satisfies the langchaingo client; TEI ignores it.
	teiToken = "placeholder"
)

// OpenAIConfig configures the OpenAI embeddings provider.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint. Empty uses api.openai.com.
	BaseURL string

	// Model is the embedding model. Default: text-embedding-3-small.
	Model string

	// APIKey is required, but only checked on first use.
	APIKey string

	// Dimension overrides the size looked up from the model name.
	Dimension int

	// BatchSize caps texts per API request. Default: 512.
	BatchSize int

	// MeterProvider receives call metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// TEIConfig configures a Text Embeddings Inference server.
type TEIConfig struct {
	// BaseURL is the TEI server, e.g. http://localhost:8080. The
	// OpenAI-compatible /v1 route is appended when missing.
	BaseURL string

	// Model is the embedding model. Default: BAAI/bge-small-en-v1.5.
	Model string

	// Dimension overrides the size looked up from the model name.
	Dimension int

	MeterProvider metric.MeterProvider
}

// OpenAIProvider generates embeddings through langchaingo's OpenAI client.
// It also serves TEI, which speaks the same wire protocol.
type OpenAIProvider struct {
	name      string
	model     string
	dimension int
	opts      []openai.Option
	batchSize int
	missing   error
	logger    *zap.Logger
	metrics   *metrics

	once     sync.Once
	embedder *embeddings.EmbedderImpl
	initErr  error
}

// NewOpenAIProvider creates an OpenAI provider. A missing API key is not an
// error here; every call fails with ErrMissingAPIKey instead.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size must not be negative", ErrInvalidConfig)
	}

	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	p := newOpenAIProvider("openai", cfg.Model, cfg.Dimension, cfg.BatchSize, cfg.MeterProvider, logger)
	if cfg.APIKey == "" {
		p.missing = ErrMissingAPIKey
	} else {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	p.opts = opts
	return p, nil
}

// NewTEIProvider creates a provider backed by a TEI server.
func NewTEIProvider(cfg TEIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = defaultTEIModel
	}

	p := newOpenAIProvider("tei", cfg.Model, cfg.Dimension, 0, cfg.MeterProvider, logger)
	p.opts = []openai.Option{
		openai.WithBaseURL(teiBaseURL(cfg.BaseURL)),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(teiToken),
	}
	return p, nil
}

func newOpenAIProvider(name, model string, dimension, batchSize int, mp metric.MeterProvider, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		dimension = detectDimensionFromModel(model)
	}
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	return &OpenAIProvider{
		name:      name,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		logger:    logger,
		metrics:   newMetrics(mp, name, model, logger),
	}
}

// teiBaseURL appends the OpenAI-compatible route TEI serves under.
func teiBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// client builds the langchaingo embedder on first use.
func (p *OpenAIProvider) client() (*embeddings.EmbedderImpl, error) {
	p.once.Do(func() {
		if p.missing != nil {
			p.initErr = p.missing
			return
		}
		llm, err := openai.New(p.opts...)
		if err != nil {
			p.initErr = fmt.Errorf("creating %s client: %w", p.name, err)
			return
		}
		embedder, err := embeddings.NewEmbedder(llm,
			embeddings.WithBatchSize(p.batchSize),
			embeddings.WithStripNewLines(false),
		)
		if err != nil {
			p.initErr = fmt.Errorf("creating embedder: %w", err)
			return
		}
		p.embedder = embedder
		p.logger.Debug("embedding client ready",
			zap.String("provider", p.name),
			zap.String("model", p.model),
		)
	})
	return p.embedder, p.initErr
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.observe(ctx, opDocuments, start, len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	embedder, err := p.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	vectors, err = embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.observe(ctx, opQuery, start, 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	embedder, err := p.client()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	vector, err = embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the client is plain HTTP.
func (p *OpenAIProvider) Close() error {
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
