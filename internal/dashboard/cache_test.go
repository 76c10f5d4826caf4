package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheFetchJSONStoresAndReuses(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.Key(ctx, "dashboard", "metrics", "x")
	require.NoError(t, err)
	require.Equal(t, "dashboard:metrics:x:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return Totals{Purchases: 7}, nil
	}
	var got Totals
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 7, got.Purchases)
	require.True(t, mr.Exists(key))
	require.Equal(t, time.Minute, mr.TTL(key))
}

func TestCacheLoaderOutlivesCancelledCaller(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewCache(client, time.Minute)

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	loaderErrs := make(chan error, 2)
	loader := func(ctx context.Context) (any, error) {
		once.Do(func() { close(started) })
		<-release
		loaderErrs <- ctx.Err()
		return Totals{Purchases: 3}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		var got Totals
		firstErr <- cache.FetchJSON(first, "shared", &got, loader)
	}()
	<-started

	type result struct {
		got Totals
		err error
	}
	second := make(chan result, 1)
	go func() {
		var got Totals
		err := cache.FetchJSON(context.Background(), "shared", &got, loader)
		second <- result{got: got, err: err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, 3, res.got.Purchases)
	require.NoError(t, <-loaderErrs)
	require.Eventually(t, func() bool { return mr.Exists("shared") }, time.Second, 10*time.Millisecond)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	_, client := newRedis(t)
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	before, err := cache.Key(ctx, "k")
	require.NoError(t, err)
	v, err := cache.Bump(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
	after, err := cache.Key(ctx, "k")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Equal(t, "k:v2", after)
}

func TestCacheListensForRemoteBumps(t *testing.T) {
	_, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := NewCache(client, time.Minute)
	writer := NewCache(client, time.Minute)
	_, err := reader.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, reader.ListenForInvalidation(ctx))

	_, err = writer.Bump(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, err := reader.Version(ctx)
		return err == nil && v == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheSharesConcurrentLoads(t *testing.T) {
	_, client := newRedis(t)
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return Totals{Expended: 3}, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got Totals
			require.NoError(t, cache.FetchJSON(ctx, "shared", &got, loader))
			require.Equal(t, 3, got.Expended)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, calls.Load(), int32(5))
	require.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestNilCacheRunsLoader(t *testing.T) {
	var cache *Cache
	var got Totals
	require.NoError(t, cache.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return Totals{TransferIn: 2}, nil
	}))
	require.Equal(t, 2, got.TransferIn)
}
