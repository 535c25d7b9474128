package graphmap

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/idgen"
	"github.com/zero-day-ai/graphmap/index"
)

// Option configures a Mapper.
type Option func(*mapperConfig)

// mapperConfig holds configuration for a Mapper instance.
type mapperConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	ids           idgen.Generator
	descriptors   *entity.Registry
	indexes       *index.Registry
	now           func() time.Time
}

// WithLogger sets a custom logger for the mapper.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *mapperConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer. Every mapper operation opens a
// span named "graphmap.<operation>".
func WithTracer(tracer trace.Tracer) Option {
	return func(c *mapperConfig) {
		c.tracer = tracer
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used for the
// node and relationship counters.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *mapperConfig) {
		c.meterProvider = provider
	}
}

// WithIDGenerator sets the generator assigning identities to new nodes.
// Defaults to an idgen.Clock.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(c *mapperConfig) {
		c.ids = gen
	}
}

// WithRegistry sets the entity descriptor registry.
// Defaults to entity.Default().
func WithRegistry(registry *entity.Registry) Option {
	return func(c *mapperConfig) {
		c.descriptors = registry
	}
}

// WithIndexRegistry sets the registry full-text handles are recorded in.
// Mappers sharing a store may share one registry.
func WithIndexRegistry(registry *index.Registry) Option {
	return func(c *mapperConfig) {
		c.indexes = registry
	}
}

// WithClock sets the time source used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *mapperConfig) {
		c.now = now
	}
}
