package repository_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/YorickdeJong/energy-contracts/internal/repository"
	"github.com/YorickdeJong/energy-contracts/internal/repository/repotest"
)

// Runs only against a disposable database: TEST_DATABASE_URL=postgres://... go test ./internal/repository/
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool, err := repository.Open(ctx, repository.Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repository.Close(pool, logger) })

	if err := repository.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := repository.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("Migrate must be idempotent: %v", err)
	}

	repotest.Run(t, func(t *testing.T) repository.Store {
		if _, err := pool.Exec(ctx, `TRUNCATE invitations, renters, tenancies, tenancy_agreements, households, users CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return repository.NewPostgresStore(pool, logger)
	})
}
