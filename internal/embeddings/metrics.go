package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/ragd/internal/embeddings"

// Values of the operation attribute.
const (
	opDocuments = "embed_documents"
	opQuery     = "embed_query"
)

// metrics records embedding calls for a single provider and model. Every
// series carries both, so an openai and a tei deployment of the same model
// stay apart.
type metrics struct {
	provider attribute.KeyValue
	model    attribute.KeyValue

	requests metric.Int64Counter
	duration metric.Float64Histogram
	texts    metric.Int64Counter
}

// newMetrics registers the embedding instruments on mp, or on the global
// provider when mp is nil.
func newMetrics(mp metric.MeterProvider, provider, model string, logger *zap.Logger) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &metrics{
		provider: attribute.String("provider", provider),
		model:    attribute.String("model", model),
	}

	var err, errs error
	m.requests, err = meter.Int64Counter(
		"ragd.embedding.requests_total",
		metric.WithDescription("Embedding calls by provider, model, operation and status"),
		metric.WithUnit("{request}"),
	)
	errs = errors.Join(errs, err)

	m.duration, err = meter.Float64Histogram(
		"ragd.embedding.duration_seconds",
		metric.WithDescription("Latency of embedding calls, including every batch of a document call"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	errs = errors.Join(errs, err)

	m.texts, err = meter.Int64Counter(
		"ragd.embedding.texts_total",
		metric.WithDescription("Texts turned into vectors"),
		metric.WithUnit("{text}"),
	)
	errs = errors.Join(errs, err)

	if errs != nil && logger != nil {
		logger.Warn("embedding metrics partially unavailable",
			zap.String("provider", provider),
			zap.Error(errs),
		)
	}
	return m
}

// observe records one call. texts counts only on success.
func (m *metrics) observe(ctx context.Context, op string, start time.Time, texts int, err error) {
	base := []attribute.KeyValue{m.provider, m.model, attribute.String("operation", op)}

	if m.requests != nil {
		m.requests.Add(ctx, 1, metric.WithAttributes(append(base, attribute.String("status", callStatus(err)))...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(base...))
	}
	if err == nil && m.texts != nil {
		m.texts.Add(ctx, int64(texts), metric.WithAttributes(base...))
	}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "upstream_error"
	}
}
