package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/ragd/internal/http"

// requestMetrics counts API calls per route and status.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	bodySize metric.Int64Histogram
}

func newRequestMetrics(mp metric.MeterProvider, logger *zap.Logger) *requestMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &requestMetrics{}
	var err, errs error
	m.requests, err = meter.Int64Counter(
		"ragd.http.requests_total",
		metric.WithDescription("API requests by route (/search, /health, /metrics) and status code"),
		metric.WithUnit("{request}"),
	)
	errs = errors.Join(errs, err)

	m.duration, err = meter.Float64Histogram(
		"ragd.http.request_duration_seconds",
		metric.WithDescription("API latency by route and status code; /search includes query embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	errs = errors.Join(errs, err)

	m.bodySize, err = meter.Int64Histogram(
		"ragd.http.response_size_bytes",
		metric.WithDescription("Response body size; search bodies grow with max_results"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2500, 5000, 10000, 50000),
	)
	errs = errors.Join(errs, err)

	if errs != nil && logger != nil {
		logger.Warn("http metrics partially unavailable", zap.Error(errs))
	}
	return m
}

// middleware renders handler errors before reading the status, so a 422
// from binding is counted as a 422 rather than a 200.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("status", strconv.Itoa(c.Response().Status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.bodySize != nil {
				m.bodySize.Record(ctx, c.Response().Size, attrs)
			}
			return nil
		}
	}
}

// routeLabel keeps the label set bounded: unmatched paths share one value
// instead of echoing whatever the client asked for.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
