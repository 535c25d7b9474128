package idgen

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Monotonic(t *testing.T) {
	ctx := context.Background()
	fixed := time.UnixMilli(1_700_000_000_000)
	gen := NewClock(func() time.Time { return fixed })

	first, err := gen.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli()<<counterBits, first)
	assert.True(t, TimeOf(first).Equal(fixed))

	second, err := gen.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second, "ids within one millisecond use the sequence")
}

func TestClock_ClockMovesBackwards(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(2_000)
	gen := NewClock(func() time.Time { return now })

	a, err := gen.NextID(ctx)
	require.NoError(t, err)

	now = time.UnixMilli(1_000)
	b, err := gen.NextID(ctx)
	require.NoError(t, err)
	assert.Greater(t, b, a)
}

func TestClock_Concurrent(t *testing.T) {
	ctx := context.Background()
	gen := NewClock(nil)

	const workers, perWorker = 8, 500
	ids := make(chan int64, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id, err := gen.NextID(ctx)
				assert.NoError(t, err)
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestFunc(t *testing.T) {
	gen := Func(func(context.Context) (int64, error) { return 42, nil })
	id, err := gen.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

// setupRedis creates a miniredis instance and returns a connected generator.
func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	gen, err := NewRedis(RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = gen.Close()
	})
	return gen, mr
}

func TestRedis_NextID(t *testing.T) {
	ctx := context.Background()
	gen, mr := setupRedis(t)

	for want := int64(1); want <= 3; want++ {
		id, err := gen.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	value, err := mr.Get(DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, "3", value)
}

func TestRedis_SharedKey(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	url := fmt.Sprintf("redis://%s", mr.Addr())

	a, err := NewRedis(RedisOptions{URL: url, Key: "ids"})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedis(RedisOptions{URL: url, Key: "ids"})
	require.NoError(t, err)
	defer b.Close()

	first, err := a.NextID(ctx)
	require.NoError(t, err)
	second, err := b.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestRedis_Seed(t *testing.T) {
	ctx := context.Background()
	gen, _ := setupRedis(t)

	require.NoError(t, gen.Seed(ctx, 100))
	id, err := gen.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	require.NoError(t, gen.Seed(ctx, 5), "seeding never lowers the counter")
	id, err = gen.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(102), id)
}

func TestNewRedis_Errors(t *testing.T) {
	t.Run("invalid url", func(t *testing.T) {
		_, err := NewRedis(RedisOptions{URL: "not a url"})
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewRedis(RedisOptions{
			URL:            fmt.Sprintf("redis://%s", addr),
			ConnectTimeout: 200 * time.Millisecond,
		})
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		gen, mr := setupRedis(t)
		mr.SetError("boom")
		_, err := gen.NextID(context.Background())
		assert.Error(t, err)
		mr.SetError("")
	})
}
