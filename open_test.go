package graphmap_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/graphmap"
	"github.com/zero-day-ai/graphmap/config"
	"github.com/zero-day-ai/graphmap/entity"
	"github.com/zero-day-ai/graphmap/idgen"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func embeddedConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Store.Path = t.TempDir()
	cfg.Store.NoSync = true
	return cfg
}

func TestOpen_Embedded(t *testing.T) {
	ctx := context.Background()
	m, err := graphmap.Open(ctx, embeddedConfig(t),
		graphmap.WithLogger(quietLogger()),
		graphmap.WithRegistry(entity.NewRegistry()),
	)
	require.NoError(t, err)
	defer m.Close(ctx)

	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo"})
	require.NoError(t, err)
	assert.NotNil(t, leo.ID)
}

func TestOpen_RedisIdentities(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := embeddedConfig(t)
	cfg.IDs.Generator = config.GeneratorRedis
	cfg.IDs.Redis = &config.RedisConfig{URL: "redis://" + mr.Addr(), Key: "zoo:ids"}

	m, err := graphmap.Open(ctx, cfg,
		graphmap.WithLogger(quietLogger()),
		graphmap.WithRegistry(entity.NewRegistry()),
	)
	require.NoError(t, err)

	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo"})
	require.NoError(t, err)
	nala, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Nala"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), *leo.ID)
	assert.Equal(t, int64(2), *nala.ID)

	counter, err := mr.Get("zoo:ids")
	require.NoError(t, err)
	assert.Equal(t, "2", counter)

	require.NoError(t, m.Close(ctx))
}

func TestOpen_RedisFloor(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := embeddedConfig(t)
	cfg.IDs.Generator = config.GeneratorRedis
	cfg.IDs.Redis = &config.RedisConfig{URL: "redis://" + mr.Addr(), Key: "zoo:ids", Floor: 1000}

	m, err := graphmap.Open(ctx, cfg,
		graphmap.WithLogger(quietLogger()),
		graphmap.WithRegistry(entity.NewRegistry()),
	)
	require.NoError(t, err)

	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo"})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), *leo.ID)
	require.NoError(t, m.Close(ctx))

	cfg.IDs.Redis.Floor = 10
	m, err = graphmap.Open(ctx, cfg,
		graphmap.WithLogger(quietLogger()),
		graphmap.WithRegistry(entity.NewRegistry()),
	)
	require.NoError(t, err)
	defer m.Close(ctx)

	nala, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Nala"})
	require.NoError(t, err)
	assert.Equal(t, int64(1002), *nala.ID, "a lower floor never rewinds the counter")
}

func TestOpen_ExplicitGeneratorWins(t *testing.T) {
	ctx := context.Background()
	cfg := embeddedConfig(t)
	cfg.IDs.Generator = config.GeneratorRedis
	cfg.IDs.Redis = &config.RedisConfig{URL: "redis://127.0.0.1:1"}

	next := int64(100)
	m, err := graphmap.Open(ctx, cfg,
		graphmap.WithLogger(quietLogger()),
		graphmap.WithRegistry(entity.NewRegistry()),
		graphmap.WithIDGenerator(idgen.Func(func(context.Context) (int64, error) {
			next++
			return next, nil
		})),
	)
	require.NoError(t, err)
	defer m.Close(ctx)

	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo"})
	require.NoError(t, err)
	assert.Equal(t, int64(101), *leo.ID)
}

func TestOpen_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid config", func(t *testing.T) {
		cfg := embeddedConfig(t)
		cfg.Store.Driver = "sqlite"
		_, err := graphmap.Open(ctx, cfg, graphmap.WithLogger(quietLogger()))
		assert.ErrorIs(t, err, graphmap.ErrStorage)
	})

	t.Run("unreachable redis releases the store", func(t *testing.T) {
		cfg := embeddedConfig(t)
		cfg.IDs.Generator = config.GeneratorRedis
		cfg.IDs.Redis = &config.RedisConfig{URL: "redis://127.0.0.1:1"}

		_, err := graphmap.Open(ctx, cfg, graphmap.WithLogger(quietLogger()))
		require.Error(t, err)

		cfg.IDs.Generator = config.GeneratorClock
		m, err := graphmap.Open(ctx, cfg, graphmap.WithLogger(quietLogger()))
		require.NoError(t, err, "the data directory is free again")
		require.NoError(t, m.Close(ctx))
	})
}
