package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetRoutePath extracts the route pattern from the request context
// This helps group metrics by route pattern rather than specific values
func GetRoutePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return NormalizePath(r.URL.Path)
}

// NormalizePath maps raw request paths onto the known routes so unmatched
// paths don't each get their own label value
func NormalizePath(path string) string {
	switch {
	case path == "" || path == "/":
		return "/"
	case path == "/health", path == "/ready", path == "/metrics",
		path == "/page", path == "/count", path == "/redoc":
		return path
	case strings.HasPrefix(path, "/swagger"):
		return "/swagger/*"
	default:
		return "other"
	}
}

// FormatStatusCode converts an integer status code to string
func FormatStatusCode(statusCode int) string {
	return strconv.Itoa(statusCode)
}
