package graphmap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/graph"
	"github.com/zero-day-ai/graphmap/idgen"
	"github.com/zero-day-ai/graphmap/index"
)

// closingStore is a graph.Store that can only be closed.
type closingStore struct {
	err error
}

func (s *closingStore) Begin(context.Context, graph.AccessMode) (graph.Tx, error) {
	return nil, errors.New("not supported")
}

func (s *closingStore) Close(context.Context) error {
	return s.err
}

func TestMapperOptions(t *testing.T) {
	t.Run("WithLogger", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		cfg := &mapperConfig{}
		WithLogger(logger)(cfg)
		assert.Same(t, logger, cfg.logger)
	})

	t.Run("WithTracer", func(t *testing.T) {
		tracer := tracenoop.NewTracerProvider().Tracer("test")
		cfg := &mapperConfig{}
		WithTracer(tracer)(cfg)
		assert.Equal(t, tracer, cfg.tracer)
	})

	t.Run("WithMeterProvider", func(t *testing.T) {
		provider := metricnoop.NewMeterProvider()
		cfg := &mapperConfig{}
		WithMeterProvider(provider)(cfg)
		assert.Equal(t, provider, cfg.meterProvider)
	})

	t.Run("WithIDGenerator", func(t *testing.T) {
		gen := idgen.NewClock(nil)
		cfg := &mapperConfig{}
		WithIDGenerator(gen)(cfg)
		assert.Same(t, gen, cfg.ids)
	})

	t.Run("WithRegistry", func(t *testing.T) {
		registry := entity.NewRegistry()
		cfg := &mapperConfig{}
		WithRegistry(registry)(cfg)
		assert.Same(t, registry, cfg.descriptors)
	})

	t.Run("WithIndexRegistry", func(t *testing.T) {
		registry := index.NewRegistry()
		cfg := &mapperConfig{}
		WithIndexRegistry(registry)(cfg)
		assert.Same(t, registry, cfg.indexes)
	})

	t.Run("WithClock", func(t *testing.T) {
		fixed := time.Unix(1700000000, 0)
		cfg := &mapperConfig{}
		WithClock(func() time.Time { return fixed })(cfg)
		require.NotNil(t, cfg.now)
		assert.Equal(t, fixed, cfg.now())
	})
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(&closingStore{})
	require.NoError(t, err)

	assert.Same(t, entity.Default(), m.Descriptors())
	assert.NotNil(t, m.Indexes())
	assert.NotNil(t, m.logger)
	assert.NotNil(t, m.tracer)
	assert.IsType(t, &idgen.Clock{}, m.ids)
}

func TestNew_SharedIndexRegistry(t *testing.T) {
	shared := index.NewRegistry()

	a, err := New(&closingStore{}, WithIndexRegistry(shared))
	require.NoError(t, err)
	b, err := New(&closingStore{}, WithIndexRegistry(shared))
	require.NoError(t, err)

	assert.Same(t, a.Indexes(), b.Indexes())
}
