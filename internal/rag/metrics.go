package rag

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const ragInstrumentationName = "github.com/fyrsmithlabs/ragd/internal/rag"

// Metrics holds search metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	searches metric.Int64Counter
	duration metric.Float64Histogram
	results  metric.Int64Histogram
}

// NewMetrics creates search metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(ragInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.searches, err = m.meter.Int64Counter(
		"ragd.search.requests_total",
		metric.WithDescription("Total searches by outcome (success, invalid_query, invalid_filter, provider_error, store_error) and whether a document_type filter was set"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		m.logger.Warn("failed to create searches counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"ragd.search.duration_seconds",
		metric.WithDescription("End-to-end search latency including query embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.results, err = m.meter.Int64Histogram(
		"ragd.search.results",
		metric.WithDescription("Number of results returned per search"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10, 25, 50),
	)
	if err != nil {
		m.logger.Warn("failed to create results histogram", zap.Error(err))
	}
}

// RecordSearch records one search.
func (m *Metrics) RecordSearch(ctx context.Context, filtered bool, duration time.Duration, results int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.Bool("filtered", filtered),
	)

	if m.searches != nil {
		m.searches.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if err == nil && m.results != nil {
		m.results.Record(ctx, int64(results), attrs)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_error"
	default:
		return "error"
	}
}
