package httpfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sp3dr4/webcache/internal/domain"
)

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64 // 0 means unlimited
}

// Fetcher retrieves pages with a plain GET
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	return NewFetcherWithClient(&http.Client{Timeout: cfg.Timeout}, cfg, logger)
}

func NewFetcherWithClient(client *http.Client, cfg Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch returns the response body of url as text. Transport failures and
// non-2xx responses are reported as *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WarnContext(ctx, "Upstream request failed", "url", url, "error", err)
		return "", &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.WarnContext(ctx, "Upstream returned non-success status", "url", url, "status_code", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &domain.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.cfg.MaxBodyBytes > 0 && int64(len(data)) > f.cfg.MaxBodyBytes {
		return "", &domain.FetchError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes)}
	}

	return string(data), nil
}
