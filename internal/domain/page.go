package domain

import "context"

const (
	contentKeyPrefix = "cache:"
	counterKeyPrefix = "count:"
)

// Fetcher retrieves the textual content of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// ContentKey is the store key holding the cached content of url.
func ContentKey(url string) string {
	return contentKeyPrefix + url
}

// CounterKey is the store key holding the access counter of url.
func CounterKey(url string) string {
	return counterKeyPrefix + url
}
