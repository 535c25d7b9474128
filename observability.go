package graphmap

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/graphmap/mapperr"
)

const instrumentationName = "github.com/zero-day-ai/graphmap"

// mapperMetrics holds the OpenTelemetry instruments of a mapper.
type mapperMetrics struct {
	nodesCreated         metric.Int64Counter
	nodesDeleted         metric.Int64Counter
	relationshipsCreated metric.Int64Counter
}

func newMapperMetrics(provider metric.MeterProvider) (*mapperMetrics, error) {
	meter := provider.Meter(instrumentationName)

	m := &mapperMetrics{}
	var err error

	m.nodesCreated, err = meter.Int64Counter(
		"graphmap.nodes.created",
		metric.WithDescription("Number of nodes created by the mapper"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create nodes.created counter: %w", err)
	}

	m.nodesDeleted, err = meter.Int64Counter(
		"graphmap.nodes.deleted",
		metric.WithDescription("Number of nodes deleted by the mapper"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create nodes.deleted counter: %w", err)
	}

	m.relationshipsCreated, err = meter.Int64Counter(
		"graphmap.relationships.created",
		metric.WithDescription("Number of relationships created by the mapper"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create relationships.created counter: %w", err)
	}

	return m, nil
}

func (m *mapperMetrics) recordCreated(ctx context.Context, label string, n int) {
	if n > 0 {
		m.nodesCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("graphmap.label", label)))
	}
}

func (m *mapperMetrics) recordDeleted(ctx context.Context, label string, n int) {
	if n > 0 {
		m.nodesDeleted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("graphmap.label", label)))
	}
}

func (m *mapperMetrics) recordRelationships(ctx context.Context, relType string, n int) {
	if n > 0 {
		m.relationshipsCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("graphmap.relationship", relType)))
	}
}

// startSpan opens the span of one mapper operation.
func (m *Mapper) startSpan(ctx context.Context, op, label string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "graphmap."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("graphmap.label", label))
	span.SetAttributes(attrs...)
	return ctx, span
}

// endSpan records the outcome of an operation and ends its span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var merr *mapperr.Error
		if errors.As(err, &merr) {
			span.SetAttributes(attribute.String("graphmap.error.kind", merr.Kind))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
