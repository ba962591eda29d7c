package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myhmtk/storefront/internal/domain"
)

type fakeSource struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	calls    int
	err      error
	// afterRead runs once the rows are read, before they are returned.
	afterRead func()
}

func (f *fakeSource) Products(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[int64]domain.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	if f.afterRead != nil {
		f.afterRead()
	}
	return out, nil
}

func setupCache(t *testing.T, src *fakeSource) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedisCache(client, src, logger), mr
}

func TestRedisCache_Products(t *testing.T) {
	shirt := domain.Product{ID: 1, Name: "Shirt", Price: 10000}
	sticker := domain.Product{ID: 2, Name: "Sticker", Price: 5000}

	t.Run("miss fills from source then hits", func(t *testing.T) {
		src := &fakeSource{products: map[int64]domain.Product{1: shirt, 2: sticker}}
		cache, mr := setupCache(t, src)
		ctx := context.Background()

		got, err := cache.Products(ctx, []int64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, shirt, got[1])
		assert.Equal(t, sticker, got[2])
		assert.True(t, mr.Exists(cacheKey(1)))

		got, err = cache.Products(ctx, []int64{1, 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, 1, src.calls)
	})

	t.Run("missing products are absent", func(t *testing.T) {
		src := &fakeSource{products: map[int64]domain.Product{1: shirt}}
		cache, _ := setupCache(t, src)

		got, err := cache.Products(context.Background(), []int64{1, 99})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		_, ok := got[99]
		assert.False(t, ok)
	})

	t.Run("partial hit only fetches misses", func(t *testing.T) {
		src := &fakeSource{products: map[int64]domain.Product{1: shirt, 2: sticker}}
		cache, mr := setupCache(t, src)

		data, _ := json.Marshal(shirt)
		require.NoError(t, mr.Set(cacheKey(1), string(data)))

		got, err := cache.Products(context.Background(), []int64{1, 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, 1, src.calls)
	})

	t.Run("corrupt entry is refetched", func(t *testing.T) {
		src := &fakeSource{products: map[int64]domain.Product{1: shirt}}
		cache, mr := setupCache(t, src)
		require.NoError(t, mr.Set(cacheKey(1), "not json"))

		got, err := cache.Products(context.Background(), []int64{1})
		require.NoError(t, err)
		assert.Equal(t, shirt, got[1])
	})

	t.Run("redis down falls back to source", func(t *testing.T) {
		src := &fakeSource{products: map[int64]domain.Product{1: shirt}}
		cache, mr := setupCache(t, src)
		mr.Close()

		got, err := cache.Products(context.Background(), []int64{1})
		require.NoError(t, err)
		assert.Equal(t, shirt, got[1])
	})

	t.Run("source error is returned", func(t *testing.T) {
		src := &fakeSource{err: errors.New("db down")}
		cache, _ := setupCache(t, src)

		_, err := cache.Products(context.Background(), []int64{1})
		assert.Error(t, err)
	})
}

func TestRedisCache_Invalidate(t *testing.T) {
	src := &fakeSource{products: map[int64]domain.Product{1: {ID: 1, Name: "Shirt", Price: 10000}}}
	cache, mr := setupCache(t, src)
	ctx := context.Background()

	_, err := cache.Products(ctx, []int64{1})
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey(1)))

	require.NoError(t, cache.Invalidate(ctx, 1))
	assert.False(t, mr.Exists(cacheKey(1)))

	src.products[1] = domain.Product{ID: 1, Name: "Shirt", Price: 12000}
	got, err := cache.Products(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got[1].Price)
}

func TestRedisCache_InvalidateDuringFill(t *testing.T) {
	src := &fakeSource{products: map[int64]domain.Product{1: {ID: 1, Name: "Shirt", Price: 10000}}}
	cache, mr := setupCache(t, src)
	ctx := context.Background()

	// The price update commits and invalidates after the fill read the old row.
	src.afterRead = func() {
		src.products[1] = domain.Product{ID: 1, Name: "Shirt", Price: 12000}
		assert.NoError(t, cache.Invalidate(ctx, 1))
	}

	got, err := cache.Products(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got[1].Price)
	assert.False(t, mr.Exists(cacheKey(1)), "stale row must not be cached")

	src.afterRead = nil
	got, err = cache.Products(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got[1].Price)
	assert.True(t, mr.Exists(cacheKey(1)))
}

func TestRedisCache_CancelledCallerDoesNotFailFill(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &fakeSource{products: map[int64]domain.Product{1: {ID: 1, Name: "Shirt", Price: 10000}}}
	src.afterRead = func() {
		close(started)
		<-release
	}
	cache, _ := setupCache(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Products(ctx, []int64{1})
		firstErr <- err
	}()
	<-started

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan map[int64]domain.Product, 1)
	go func() {
		got, err := cache.Products(context.Background(), []int64{1})
		assert.NoError(t, err)
		second <- got
	}()

	src.afterRead = nil
	close(release)

	select {
	case got := <-second:
		assert.Equal(t, int64(10000), got[1].Price)
	case <-time.After(5 * time.Second):
		t.Fatal("fill did not complete")
	}
}
