package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/storyweave/storyd/internal/gateway"

// Metrics holds gateway instrumentation. With no meter provider
// configured the global default is a no-op, so recording is always
// safe.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	errors      metric.Int64Counter
}

// NewMetrics creates gateway metrics on the global meter.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.invocations, err = m.meter.Int64Counter(
		"storyd.gateway.tool.invocations_total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"storyd.gateway.tool.duration_seconds",
		metric.WithDescription("Duration of tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"storyd.gateway.tool.errors_total",
		metric.WithDescription("Total number of tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordInvocation counts one invocation and returns a func that
// records its duration when called.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string) func() {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	start := time.Now()
	return func() {
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	}
}

// RecordError counts one failed call by reason.
func (m *Metrics) RecordError(ctx context.Context, tool, reason string) {
	if m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("reason", reason),
	))
}
