package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPoolOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)

	applyPoolOptions(cfg, PoolOptions{
		MaxConns:         12,
		MinConns:         2,
		MaxConnLifetime:  time.Hour,
		StatementTimeout: 1500 * time.Millisecond,
	})

	assert.Equal(t, int32(12), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, "settlementd", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "1500", cfg.ConnConfig.RuntimeParams["statement_timeout"])
}

func TestApplyPoolOptions_KeepsDSNApplicationName(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db?application_name=worker-7")
	require.NoError(t, err)

	applyPoolOptions(cfg, PoolOptions{})
	assert.Equal(t, "worker-7", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.NotContains(t, cfg.ConnConfig.RuntimeParams, "statement_timeout")
}

func TestErrorMapping(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgErrUniqueViolation})
	assert.True(t, isDuplicateKeyError(unique))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isDuplicateKeyError(nil))
	assert.False(t, isDuplicateKeyError(errors.New("other")))

	assert.True(t, isNotFoundError(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, isNotFoundError(unique))
}
