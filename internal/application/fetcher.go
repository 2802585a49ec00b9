package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/sp3dr4/webcache/internal/domain"
	"github.com/sp3dr4/webcache/internal/pkg/logging"
	"github.com/sp3dr4/webcache/internal/pkg/metrics"
)

// DefaultTTL is how long fetched content stays cached
const DefaultTTL = 10 * time.Second

type Option func(*CachingFetcher)

// WithTTL sets the cache lifetime. Store expiry has whole-second granularity,
// so d is truncated to seconds with a floor of one second.
func WithTTL(d time.Duration) Option {
	return func(c *CachingFetcher) {
		c.ttl = normalizeTTL(d)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *CachingFetcher) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(registry metrics.Registry) Option {
	return func(c *CachingFetcher) {
		if registry != nil {
			c.metrics = registry
		}
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	d = d.Truncate(time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Result describes one pass through the cache
type Result struct {
	Content  string
	Count    int64 // access counter after this call's increment
	CacheHit bool
}

// CachingFetcher decorates a Fetcher with a read-through cache and a
// per-URL access counter, both kept in the store.
type CachingFetcher struct {
	next    domain.Fetcher
	store   domain.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Registry
}

func NewCachingFetcher(next domain.Fetcher, store domain.Store, opts ...Option) *CachingFetcher {
	c := &CachingFetcher{
		next:    next,
		store:   store,
		ttl:     DefaultTTL,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.NewNoOpRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCache returns a decorator that wraps any Fetcher in a CachingFetcher
func WithCache(store domain.Store, opts ...Option) func(domain.Fetcher) domain.Fetcher {
	return func(next domain.Fetcher) domain.Fetcher {
		return NewCachingFetcher(next, store, opts...)
	}
}

// TTL reports the lifetime applied to cached content
func (c *CachingFetcher) TTL() time.Duration {
	return c.ttl
}

func (c *CachingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	res, err := c.FetchResult(ctx, url)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// FetchResult counts the access, then serves url from the cache or from the
// wrapped fetcher. The counter is incremented before the lookup, so a call
// that fails later has still been counted.
func (c *CachingFetcher) FetchResult(ctx context.Context, url string) (Result, error) {
	logger := logging.FromContext(ctx, c.logger).With("url", url)

	countKey := domain.CounterKey(url)
	count, err := c.store.Incr(ctx, countKey)
	if err != nil {
		return Result{}, c.storeFailure(ctx, logger, domain.OpIncrement, countKey, err)
	}

	contentKey := domain.ContentKey(url)
	cached, found, err := c.store.Get(ctx, contentKey)
	if err != nil {
		return Result{}, c.storeFailure(ctx, logger, domain.OpGet, contentKey, err)
	}
	if found {
		logger.DebugContext(ctx, "Cache hit", "count", count)
		c.metrics.RecordPageRequest(metrics.CacheStatusHit)
		return Result{Content: string(cached), Count: count, CacheHit: true}, nil
	}

	logger.DebugContext(ctx, "Cache miss", "count", count)

	start := time.Now()
	content, err := c.next.Fetch(ctx, url)
	if err != nil {
		c.metrics.ObserveUpstreamFetch(metrics.StatusFailure, time.Since(start).Seconds())
		c.metrics.RecordPageRequest(metrics.CacheStatusError)
		logger.WarnContext(ctx, "Failed to fetch page", "error", err)
		if !errors.Is(err, domain.ErrFetch) {
			err = &domain.FetchError{URL: url, Err: err}
		}
		return Result{}, err
	}
	c.metrics.ObserveUpstreamFetch(metrics.StatusSuccess, time.Since(start).Seconds())

	if err := c.store.SetWithExpiry(ctx, contentKey, []byte(content), c.ttl); err != nil {
		return Result{}, c.storeFailure(ctx, logger, domain.OpSet, contentKey, err)
	}

	c.metrics.RecordPageRequest(metrics.CacheStatusMiss)
	logger.InfoContext(ctx, "Page cached", "ttl", c.ttl.String(), "bytes", len(content))

	return Result{Content: content, Count: count}, nil
}

// Count reads the access counter for url without changing it. An absent counter reads as 0.
func (c *CachingFetcher) Count(ctx context.Context, url string) (int64, error) {
	logger := logging.FromContext(ctx, c.logger).With("url", url)

	key := domain.CounterKey(url)
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, c.storeFailure(ctx, logger, domain.OpCount, key, err)
	}
	if !found {
		return 0, nil
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, c.storeFailure(ctx, logger, domain.OpCount, key, err)
	}
	return n, nil
}

func (c *CachingFetcher) storeFailure(ctx context.Context, logger *slog.Logger, op, key string, err error) error {
	c.metrics.IncStoreErrors(op)
	if op != domain.OpCount {
		c.metrics.RecordPageRequest(metrics.CacheStatusError)
	}
	logger.ErrorContext(ctx, "Store operation failed", "operation", op, "key", key, "error", err)
	return &domain.StoreError{Op: op, Key: key, Err: err}
}
