package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	postgresContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	postgresStore "github.com/sp3dr4/webcache/internal/infrastructure/postgres"
	redisStore "github.com/sp3dr4/webcache/internal/infrastructure/redis"
	"github.com/sp3dr4/webcache/migrations"
)

var (
	sharedPostgres *postgresContainer.PostgresContainer
	sharedRedis    *redisContainer.RedisContainer
	sharedDB       *sqlx.DB
	sharedClient   *redis.Client
	containerOnce  sync.Once
	cleanupOnce    sync.Once
)

// TestEnvironment holds the test setup
type TestEnvironment struct {
	DB            *sqlx.DB
	RedisClient   *redis.Client
	PostgresStore *postgresStore.PostgresStore
	RedisStore    *redisStore.RedisStore
}

// SetupTestEnvironment starts shared PostgreSQL and Redis containers, runs migrations,
// and returns stores backed by them with all data cleared
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	containerOnce.Do(func() {
		ctx := context.Background()

		pg, err := postgresContainer.Run(ctx,
			"postgres:16-alpine",
			postgresContainer.WithDatabase("webcache_test"),
			postgresContainer.WithUsername("test"),
			postgresContainer.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		sharedPostgres = pg

		connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}

		db, err := sqlx.Connect("postgres", connStr)
		if err != nil {
			t.Fatalf("failed to connect to database: %v", err)
		}
		sharedDB = db

		if err := migrations.Up(db.DB, "postgres"); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		rc, err := redisContainer.Run(ctx, "redis:7-alpine")
		if err != nil {
			t.Fatalf("failed to start redis container: %v", err)
		}
		sharedRedis = rc

		redisURL, err := rc.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("failed to get redis connection string: %v", err)
		}

		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			t.Fatalf("failed to parse redis url: %v", err)
		}
		sharedClient = redis.NewClient(opts)
	})

	if sharedDB == nil || sharedClient == nil {
		t.Fatal("shared containers failed to start")
	}

	cleanStores(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &TestEnvironment{
		DB:            sharedDB,
		RedisClient:   sharedClient,
		PostgresStore: postgresStore.NewPostgresStore(sharedDB),
		RedisStore:    redisStore.NewRedisStore(sharedClient, logger),
	}
}

// CleanupSharedResources should be called once at the end of all tests
func CleanupSharedResources() {
	cleanupOnce.Do(func() {
		ctx := context.Background()
		if sharedDB != nil {
			_ = sharedDB.Close()
		}
		if sharedClient != nil {
			_ = sharedClient.Close()
		}
		if sharedPostgres != nil {
			_ = sharedPostgres.Terminate(ctx)
		}
		if sharedRedis != nil {
			_ = sharedRedis.Terminate(ctx)
		}
	})
}

// cleanStores empties both backends to ensure test isolation
func cleanStores(t *testing.T) {
	if _, err := sharedDB.Exec("TRUNCATE TABLE kv_entries"); err != nil {
		t.Fatalf("failed to clean database: %v", err)
	}
	if err := sharedClient.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// TestMain handles setup and teardown for the entire test suite
func TestMain(m *testing.M) {
	code := m.Run()

	CleanupSharedResources()

	// Exit with the same code as the tests
	os.Exit(code)
}
