package http

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/sp3dr4/webcache/config"
	"github.com/sp3dr4/webcache/internal/server"
)

// ServerParams holds the parameters needed for HTTP server lifecycle management
type ServerParams struct {
	fx.In

	Server server.Server
	Config *config.Config
	Logger *slog.Logger
}

// RegisterHTTPServerHooks registers HTTP server lifecycle hooks with FX
func RegisterHTTPServerHooks(lc fx.Lifecycle, params ServerParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			params.Logger.Info("Starting HTTP server", startupAttrs(params.Server.Addr(), params.Config)...)
			return params.Server.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			params.Logger.Info("Shutting down HTTP server...")
			if err := params.Server.Stop(ctx); err != nil {
				params.Logger.Error("Failed to shutdown HTTP server", "error", err)
				return err
			}
			params.Logger.Info("HTTP server shutdown completed")
			return nil
		},
	})
}

// startupAttrs describes the cache and upstream settings the server runs with
func startupAttrs(addr string, cfg *config.Config) []any {
	return []any{
		"addr", addr,
		"store", cfg.Store.Type,
		"cache_ttl", cfg.Cache.TTL.String(),
		"fetcher_timeout", cfg.Fetcher.Timeout.String(),
		"max_body_bytes", cfg.Fetcher.MaxBodyBytes,
		"metrics_enabled", cfg.Metrics.Enabled,
	}
}
