package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     options
	}{
		{
			name:     "url only",
			args:     []string{"http://example.com"},
			wantCode: exitOK,
			want:     options{url: "http://example.com"},
		},
		{
			name:     "count flag",
			args:     []string{"--count", "http://example.com"},
			wantCode: exitOK,
			want:     options{url: "http://example.com", showCount: true},
		},
		{
			name:     "count only",
			args:     []string{"--count-only", "http://example.com"},
			wantCode: exitOK,
			want:     options{url: "http://example.com", countOnly: true},
		},
		{
			name:     "missing url",
			args:     []string{},
			wantCode: exitUsage,
		},
		{
			name:     "too many urls",
			args:     []string{"http://a.example", "http://b.example"},
			wantCode: exitUsage,
		},
		{
			name:     "unknown flag",
			args:     []string{"--bogus", "http://example.com"},
			wantCode: exitUsage,
		},
		{
			name:     "help",
			args:     []string{"--help"},
			wantCode: exitHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got, code := parseFlags(tt.args, &stderr)

			assert.Equal(t, tt.wantCode, code)
			if tt.wantCode == exitOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRun(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("LOGGING_LEVEL", "error")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html>HELLO</html>"))
	}))
	defer server.Close()

	t.Run("prints content and count", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), options{url: server.URL, showCount: true}, &stdout, &stderr)

		require.Equal(t, exitOK, code, stderr.String())
		assert.Equal(t, "<html>HELLO</html>", stdout.String())
		assert.Contains(t, stderr.String(), "access count: 1 (cache hit: false)")
	})

	t.Run("count only rejects the memory store", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), options{url: server.URL, countOnly: true}, &stdout, &stderr)

		assert.Equal(t, exitUsage, code)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "--count-only needs a persistent store")
	})

	t.Run("count only on a fresh sqlite store", func(t *testing.T) {
		t.Setenv("STORE_TYPE", "sqlite")
		t.Setenv("STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "webcache.db"))

		var stdout, stderr bytes.Buffer
		code := run(context.Background(), options{url: server.URL, countOnly: true}, &stdout, &stderr)

		require.Equal(t, exitOK, code, stderr.String())
		assert.Equal(t, "0\n", stdout.String())
	})

	t.Run("upstream failure", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), options{url: server.URL + "/missing"}, &stdout, &stderr)

		assert.Equal(t, exitFetch, code)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "unexpected status 404")
	})
}
