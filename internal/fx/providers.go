package fx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/sp3dr4/webcache/config"
	"github.com/sp3dr4/webcache/internal/application"
	"github.com/sp3dr4/webcache/internal/domain"
	dynamoStore "github.com/sp3dr4/webcache/internal/infrastructure/dynamodb"
	"github.com/sp3dr4/webcache/internal/infrastructure/httpfetch"
	memoryStore "github.com/sp3dr4/webcache/internal/infrastructure/memory"
	postgresStore "github.com/sp3dr4/webcache/internal/infrastructure/postgres"
	redisStore "github.com/sp3dr4/webcache/internal/infrastructure/redis"
	sqliteStore "github.com/sp3dr4/webcache/internal/infrastructure/sqlite"
	"github.com/sp3dr4/webcache/internal/pkg/logging"
	"github.com/sp3dr4/webcache/internal/pkg/metrics"
	"github.com/sp3dr4/webcache/migrations"
)

// ProvideLogger creates and configures the application logger
func ProvideLogger(cfg *config.Config) *slog.Logger {
	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger
}

// ProvideCLILogger logs to stderr so stdout carries only command output
func ProvideCLILogger(cfg *config.Config) *slog.Logger {
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger
}

// ProvideStore creates the store backend selected by configuration
func ProvideStore(cfg *config.Config, logger *slog.Logger) (domain.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		logger.Info("Using in-memory store")
		return memoryStore.NewStore(), nil

	case "redis":
		logger.Info("Using Redis store", "addr", cfg.Store.Redis.Addr, "db", cfg.Store.Redis.DB)
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		return redisStore.NewRedisStore(client, logger), nil

	case "sqlite":
		path := cfg.GetStoreURL()
		logger.Info("Using SQLite store", "path", path)

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}

		db, err := sqlx.Connect("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)

		if err := migrations.Up(db.DB, "sqlite3"); err != nil {
			_ = db.Close()
			return nil, err
		}

		return sqliteStore.NewSQLiteStore(db), nil

	case "postgres":
		logger.Info("Using PostgreSQL store")

		db, err := sqlx.Connect("postgres", cfg.GetStoreURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

		if err := migrations.Up(db.DB, "postgres"); err != nil {
			_ = db.Close()
			return nil, err
		}

		return postgresStore.NewPostgresStore(db), nil

	case "dynamodb":
		logger.Info("Using DynamoDB store",
			"table", cfg.Store.DynamoDB.Table,
			"region", cfg.Store.DynamoDB.Region,
			"endpoint", cfg.Store.DynamoDB.Endpoint,
		)
		return newDynamoDBStore(cfg.Store.DynamoDB)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}

func newDynamoDBStore(cfg config.DynamoDBConfig) (domain.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return dynamoStore.New(client, cfg.Table)
}

// ProvideFetcher creates the upstream HTTP fetcher
func ProvideFetcher(cfg *config.Config, logger *slog.Logger) domain.Fetcher {
	return httpfetch.NewFetcher(httpfetch.Config{
		Timeout:      cfg.Fetcher.Timeout,
		UserAgent:    cfg.Fetcher.UserAgent,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}, logger)
}

// ProvideCachingFetcher wraps the upstream fetcher with the store-backed cache
func ProvideCachingFetcher(
	upstream domain.Fetcher,
	store domain.Store,
	cfg *config.Config,
	logger *slog.Logger,
	registry metrics.Registry,
) *application.CachingFetcher {
	return application.NewCachingFetcher(upstream, store,
		application.WithTTL(cfg.Cache.TTL),
		application.WithLogger(logger),
		application.WithMetrics(registry),
	)
}

// ProvideMetricsRegistry creates the Prometheus registry, or a no-op one when metrics are disabled
func ProvideMetricsRegistry(cfg *config.Config, logger *slog.Logger) (metrics.Registry, error) {
	if !cfg.Metrics.Enabled {
		logger.Info("Metrics disabled")
		return metrics.NewNoOpRegistry(), nil
	}
	return metrics.NewPrometheusRegistry(cfg.Metrics)
}

// StoreParams holds the parameters needed for store lifecycle management
type StoreParams struct {
	fx.In

	Store  domain.Store
	Config *config.Config
	Logger *slog.Logger
}

// RegisterStoreHooks verifies connectivity on start and releases the store on stop.
// An unreachable store is logged rather than fatal: requests report it as unavailable.
func RegisterStoreHooks(lc fx.Lifecycle, params StoreParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Store.Ping(ctx); err != nil {
				params.Logger.Warn("Store not reachable at startup", "store", params.Config.Store.Type, "error", err)
				return nil
			}
			params.Logger.Info("Store connection established", "store", params.Config.Store.Type)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := params.Store.Close(); err != nil {
				params.Logger.Error("Failed to close store resources", "error", err)
				return err
			}
			params.Logger.Info("Store resources closed successfully")
			return nil
		},
	})
}

// expiryPurger is implemented by stores that keep expired rows until removed
type expiryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RegisterPurgeHooks runs PurgeExpired periodically for stores that need it
func RegisterPurgeHooks(lc fx.Lifecycle, params StoreParams) {
	purger, ok := params.Store.(expiryPurger)
	if !ok || params.Config.Store.SQL.PurgeInterval <= 0 {
		return
	}

	interval := params.Config.Store.SQL.PurgeInterval
	done := make(chan struct{})
	stopped := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(stopped)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						purgeOnce(purger, interval, params.Logger)
					}
				}
			}()
			params.Logger.Info("Expired entry purge scheduled", "interval", interval.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func purgeOnce(purger expiryPurger, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := purger.PurgeExpired(ctx)
	if err != nil {
		logger.Warn("Failed to purge expired entries", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("Purged expired entries", "count", n)
	}
}
