package repository

import (
	"context"
	"testing"
	"time"

	migrations "slotkeeper/internal/migrations/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresLedger_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("slotkeeper"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runLedgerContract(t, func(t *testing.T, clock *fakeClock, size int) Ledger {
		if _, err := pool.Exec(ctx, `TRUNCATE transactions, reservations`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgresLedger(pool, testOptions(t, clock, size))
	})
}
