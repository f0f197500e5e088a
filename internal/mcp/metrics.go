package mcp

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/pkg/client"
)

const meterName = "github.com/fyrsmithlabs/ragd/internal/mcp"

// errInvalidArguments marks tool calls rejected before reaching the query
// service.
var errInvalidArguments = errors.New("validation failed")

// toolMetrics records knowledge-base tool calls made by MCP clients.
type toolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	chunks   metric.Int64Histogram
}

func newToolMetrics(mp metric.MeterProvider, logger *zap.Logger) *toolMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &toolMetrics{}
	var err, errs error
	m.calls, err = meter.Int64Counter(
		"ragd.mcp.tool_calls_total",
		metric.WithDescription("Tool calls by tool and outcome (found, empty, invalid_arguments, rejected, upstream_error, timeout, unavailable)"),
		metric.WithUnit("{call}"),
	)
	errs = errors.Join(errs, err)

	m.duration, err = meter.Float64Histogram(
		"ragd.mcp.tool_duration_seconds",
		metric.WithDescription("Tool call latency including the round trip to the query service"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	errs = errors.Join(errs, err)

	m.chunks, err = meter.Int64Histogram(
		"ragd.mcp.chunks_returned",
		metric.WithDescription("Chunks handed back to the client per successful call"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10, 25),
	)
	errs = errors.Join(errs, err)

	if errs != nil {
		logger.Warn("mcp metrics partially unavailable", zap.Error(errs))
	}
	return m
}

// observe records one call. chunks is ignored when err is set.
func (m *toolMetrics) observe(ctx context.Context, tool string, start time.Time, chunks int, err error) {
	toolAttr := attribute.String("tool", tool)

	if m.calls != nil {
		m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("outcome", callOutcome(chunks, err))))
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
	}
	if err == nil && m.chunks != nil {
		m.chunks.Record(ctx, int64(chunks), metric.WithAttributes(toolAttr))
	}
}

// callOutcome maps a call onto a low-cardinality outcome label.
func callOutcome(chunks int, err error) string {
	if err == nil {
		if chunks == 0 {
			return "empty"
		}
		return "found"
	}
	if errors.Is(err, errInvalidArguments) {
		return "invalid_arguments"
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode < 500 {
			return "rejected"
		}
		return "upstream_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		return "unavailable"
	}
	return "upstream_error"
}
