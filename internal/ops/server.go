// Package ops serves health, metrics and read-only payout inspection endpoints.
package ops

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contest-settlement/internal/destination"
	"contest-settlement/internal/observability"
	"contest-settlement/internal/storage"
)

// NewEngine builds the ops router. A nil cache leaves the destination cache
// endpoint unregistered.
func NewEngine(env string, db storage.DB, cache destination.Invalidator, logger *zap.Logger) *gin.Engine {
	if strings.EqualFold(env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	(&HealthHandler{DB: db}).Register(engine)
	(&PayoutHandler{DB: db, Logger: logger}).Register(engine)
	if cache != nil {
		(&DestinationHandler{Cache: cache, Logger: logger}).Register(engine)
	}
	engine.GET("/metrics", gin.WrapH(observability.Handler()))
	return engine
}

// Pinger is satisfied by storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	if err := h.DB.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// PayoutHandler exposes transfer and job state for operators.
type PayoutHandler struct {
	DB     storage.Reader
	Logger *zap.Logger
}

func (h *PayoutHandler) Register(r *gin.Engine) {
	g := r.Group("/v1")
	g.GET("/transfers/:id", h.getTransfer)
	g.GET("/transfers/:id/ledger", h.listTransferLedger)
	g.GET("/settlements/:id/payout-job", h.getPayoutJob)
}

func (h *PayoutHandler) getTransfer(c *gin.Context) {
	tr, err := h.DB.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, transferView(tr))
}

func (h *PayoutHandler) listTransferLedger(c *gin.Context) {
	entries, err := h.DB.ListLedgerEntriesByReference(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"id":              e.ID,
			"seq":             e.Seq,
			"entry_type":      e.EntryType,
			"direction":       e.Direction,
			"amount_cents":    e.AmountCents,
			"idempotency_key": e.IdempotencyKey,
			"created_at":      e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *PayoutHandler) getPayoutJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.DB.FindPayoutJob(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	transfers, err := h.DB.ListJobTransfers(ctx, job.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(transfers))
	for _, tr := range transfers {
		items = append(items, transferView(tr))
	}
	c.JSON(http.StatusOK, gin.H{
		"payout_job_id": job.ID,
		"settlement_id": job.SettlementID,
		"contest_id":    job.ContestID,
		"status":        job.Status,
		"total_payouts": job.TotalPayouts,
		"created_at":    job.CreatedAt,
		"transfers":     items,
	})
}

func (h *PayoutHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	h.Logger.Error("ops query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}

// DestinationHandler lets the account service drop a user's cached payout
// account after it was disconnected.
type DestinationHandler struct {
	Cache  destination.Invalidator
	Logger *zap.Logger
}

func (h *DestinationHandler) Register(r *gin.Engine) {
	r.DELETE("/v1/users/:id/destination-cache", h.invalidate)
}

func (h *DestinationHandler) invalidate(c *gin.Context) {
	userID := c.Param("id")
	if err := destination.ValidateUserID(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Cache.Invalidate(c.Request.Context(), userID); err != nil {
		h.Logger.Error("destination cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.Status(http.StatusNoContent)
}
