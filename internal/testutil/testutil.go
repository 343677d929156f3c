package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/vault"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

// VaultToken is the root token of the test Vault container
const VaultToken = "test-token"

// PostgresContainer holds a migrated PostgreSQL test database
type PostgresContainer struct {
	Container    *postgres.PostgresContainer
	DB           *sql.DB
	DBConnString string
}

// SetupPostgres starts a PostgreSQL container and applies the migrations.
// The test is skipped in short mode or when no container runtime is
// available. The container is terminated by t.Cleanup.
func SetupPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:18",
		postgres.WithDatabase("confreview_test"),
		postgres.WithUsername("confreview_test"),
		postgres.WithPassword("confreview_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(connStr); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Connect to database
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	return &PostgresContainer{
		Container:    container,
		DB:           db,
		DBConnString: connStr,
	}
}

// SetupMongo starts a MongoDB container and connects to a fresh database
// on it. Skipping and cleanup follow SetupPostgres.
func SetupMongo(t *testing.T) *database.Mongo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate MongoDB container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	m, err := database.NewMongo(ctx, &config.MongoConfig{
		URI:            uri,
		Database:       "confreview_test",
		ConnectTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	return m
}

// SetupVault starts a dev-mode Vault container and returns a configuration
// pointing at it
func SetupVault(t *testing.T) config.VaultConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := vault.Run(ctx,
		"hashicorp/vault:1.15",
		vault.WithToken(VaultToken),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Vault server started!").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start Vault container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate Vault container: %v", err)
		}
	})

	// Get Vault address
	addr, err := container.HttpHostAddress(ctx)
	if err != nil {
		t.Fatalf("Failed to get Vault address: %v", err)
	}

	return config.VaultConfig{
		Enabled:   true,
		Address:   fmt.Sprintf("http://%s", addr),
		Token:     VaultToken,
		Mount:     "secret",
		Path:      "confreview/jwt",
		SecretKey: "secret",
		Timeout:   10 * time.Second,
	}
}
