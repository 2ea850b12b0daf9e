package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/destination"
	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage/memory"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	engine := NewEngine("test", memory.NewStore(), nil, nil)

	rec, body := get(t, engine, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = get(t, engine, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	(&HealthHandler{DB: downDB{}}).Register(engine)

	rec, body := get(t, engine, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "db_unreachable", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	engine := NewEngine("test", memory.NewStore(), nil, nil)
	rec, _ := get(t, engine, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPayoutEndpoints(t *testing.T) {
	db := memory.NewStore()
	require.NoError(t, db.AddTransfer(&domain.PayoutTransfer{
		ID:             "t1",
		PayoutJobID:    "job-1",
		ContestID:      "c1",
		UserID:         "u1",
		AmountCents:    5000,
		Status:         domain.TransferPending,
		MaxAttempts:    3,
		IdempotencyKey: "payout:t1",
	}))
	engine := NewEngine("test", db, nil, nil)

	rec, body := get(t, engine, "/v1/transfers/t1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "payout:t1", body["idempotency_key"])
	assert.NotContains(t, body, "failure_reason")

	rec, body = get(t, engine, "/v1/transfers/t1/ledger")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])

	rec, _ = get(t, engine, "/v1/transfers/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, engine, "/v1/settlements/missing/payout-job")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateDestinationCache(t *testing.T) {
	ctx := context.Background()
	store := destination.NewMemoryStore()
	calls := 0
	resolver := destination.NewCachedResolver(destination.Func(func(context.Context, string) (string, error) {
		calls++
		return "acct_1", nil
	}), store, time.Hour, nil)
	_, err := resolver.Resolve(ctx, "user-1")
	require.NoError(t, err)

	engine := NewEngine("test", memory.NewStore(), resolver, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/users/user-1/destination-cache", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = resolver.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/users/bad%20id/destination-cache", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
