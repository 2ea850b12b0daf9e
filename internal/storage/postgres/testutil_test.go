package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies the SQL files of internal/storage/migrations/postgres in name order.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	projectRoot := findProjectRoot(t)
	migrationsDir := filepath.Join(projectRoot, "internal", "storage", "migrations", "postgres")

	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(filepath.Join(migrationsDir, file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// seedContest inserts a template and a contest instance.
func seedContest(t *testing.T, pool *Pool, contestID, status, strategyKey string, prizePoolCents int64, structure string) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO contest_templates (id, settlement_strategy_key, payout_structure)
		VALUES ($1, $2, $3::jsonb)
	`, "tpl-"+contestID, strategyKey, structure)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO contest_instances (id, template_id, status, prize_pool_cents)
		VALUES ($1, $2, $3, $4)
	`, contestID, "tpl-"+contestID, status, prizePoolCents)
	require.NoError(t, err)
}

// seedJob inserts a payout job with the given id for a settlement.
func seedJob(t *testing.T, pool *Pool, jobID, settlementID, contestID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO payout_jobs (id, settlement_id, contest_id, status, total_payouts)
		VALUES ($1, $2, $3, 'pending', 1)
	`, jobID, settlementID, contestID)
	require.NoError(t, err)
}

// seedTransfer inserts a transfer row with explicit status and attempt counters.
func seedTransfer(t *testing.T, pool *Pool, id, jobID, status string, attempts, maxAttempts int) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO payout_transfers (
			id, payout_job_id, contest_id, user_id, amount_cents, status,
			attempt_count, max_attempts, idempotency_key
		) VALUES ($1, $2, 'contest-1', 'user-' || $1::text, 1000, $3, $4, $5, 'payout:' || $1::text)
	`, id, jobID, status, attempts, maxAttempts)
	require.NoError(t, err)
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
