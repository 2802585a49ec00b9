package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp3dr4/webcache/internal/application"
	"github.com/sp3dr4/webcache/internal/domain"
)

const pageURL = "http://example.com/delay/3000"

type countingUpstream struct {
	calls   atomic.Int64
	content string
}

func (u *countingUpstream) Fetch(_ context.Context, _ string) (string, error) {
	u.calls.Add(1)
	return u.content, nil
}

func storesUnderTest(env *TestEnvironment) map[string]domain.Store {
	return map[string]domain.Store{
		"redis":    env.RedisStore,
		"postgres": env.PostgresStore,
	}
}

func TestCachingFetcher_ServesFromCache_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	for name, store := range storesUnderTest(env) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			url := pageURL + "#" + name
			upstream := &countingUpstream{content: "<html>HELLO</html>"}
			fetcher := application.NewCachingFetcher(upstream, store)

			for i := 1; i <= 5; i++ {
				res, err := fetcher.FetchResult(ctx, url)
				require.NoError(t, err)
				assert.Equal(t, "<html>HELLO</html>", res.Content)
				assert.Equal(t, int64(i), res.Count)
				assert.Equal(t, i > 1, res.CacheHit)
			}

			assert.Equal(t, int64(1), upstream.calls.Load())

			count, err := fetcher.Count(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, int64(5), count)
		})
	}
}

func TestCachingFetcher_RefetchesAfterExpiry_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	for name, store := range storesUnderTest(env) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			url := pageURL + "#expiry-" + name
			upstream := &countingUpstream{content: "fresh"}
			fetcher := application.NewCachingFetcher(upstream, store, application.WithTTL(time.Second))

			_, err := fetcher.Fetch(ctx, url)
			require.NoError(t, err)
			_, err = fetcher.Fetch(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, int64(1), upstream.calls.Load())

			time.Sleep(1500 * time.Millisecond)

			res, err := fetcher.FetchResult(ctx, url)
			require.NoError(t, err)
			assert.False(t, res.CacheHit)
			assert.Equal(t, int64(3), res.Count, "counter must survive content expiry")
			assert.Equal(t, int64(2), upstream.calls.Load())
		})
	}
}

func TestCachingFetcher_ConcurrentIncrements_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	for name, store := range storesUnderTest(env) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			url := pageURL + "#concurrent-" + name
			fetcher := application.NewCachingFetcher(&countingUpstream{content: "x"}, store)

			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := fetcher.Fetch(ctx, url)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			count, err := fetcher.Count(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, int64(workers), count)
		})
	}
}

func TestRedisStore_KeyLayout_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	ctx := context.Background()
	fetcher := application.NewCachingFetcher(&countingUpstream{content: "<html>HELLO</html>"}, env.RedisStore)

	_, err := fetcher.Fetch(ctx, pageURL)
	require.NoError(t, err)

	content, err := env.RedisClient.Get(ctx, domain.ContentKey(pageURL)).Result()
	require.NoError(t, err)
	assert.Equal(t, "<html>HELLO</html>", content)

	ttl, err := env.RedisClient.TTL(ctx, domain.ContentKey(pageURL)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, application.DefaultTTL)

	count, err := env.RedisClient.Get(ctx, domain.CounterKey(pageURL)).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	counterTTL, err := env.RedisClient.TTL(ctx, domain.CounterKey(pageURL)).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), counterTTL, "counters never expire")
}

func TestRedisStore_CacheMiss_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	ctx := context.Background()

	err := env.RedisClient.Get(ctx, domain.ContentKey(pageURL)).Err()
	assert.Equal(t, redis.Nil, err)

	value, found, err := env.RedisStore.Get(ctx, domain.ContentKey(pageURL))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestPostgresStore_PurgeExpired_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	ctx := context.Background()
	store := env.PostgresStore

	require.NoError(t, store.SetWithExpiry(ctx, "cache:short", []byte("a"), time.Second))
	require.NoError(t, store.SetWithExpiry(ctx, "cache:long", []byte("b"), time.Hour))
	_, err := store.Incr(ctx, "count:short")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var remaining int
	require.NoError(t, env.DB.Get(&remaining, "SELECT COUNT(*) FROM kv_entries"))
	assert.Equal(t, 2, remaining)

	_, found, err := store.Get(ctx, "cache:long")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPostgresStore_EmptyContentIsCached_Integration(t *testing.T) {
	env := SetupTestEnvironment(t)

	ctx := context.Background()
	upstream := &countingUpstream{content: ""}
	fetcher := application.NewCachingFetcher(upstream, env.PostgresStore)

	for i := 0; i < 3; i++ {
		content, err := fetcher.Fetch(ctx, pageURL)
		require.NoError(t, err)
		assert.Empty(t, content)
	}
	assert.Equal(t, int64(1), upstream.calls.Load())
}
