// Package payout expands settlements into transfer obligations and executes
// those transfers against the payment provider.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/idhash"
	"contest-settlement/internal/observability"
	"contest-settlement/internal/storage"
)

// ValidationError describes a schedule request rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payout request: %s %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, storage.ErrInvalidInput) hold.
func (e *ValidationError) Unwrap() error {
	return storage.ErrInvalidInput
}

// ScheduleResult describes the job of a settlement.
type ScheduleResult struct {
	PayoutJobID  string
	SettlementID string
	Status       string
	TotalPayouts int
	CreatedAt    time.Time

	// Created is false when the job already existed. Transfers is only set
	// when this call created the job.
	Created   bool
	Transfers []*domain.PayoutTransfer
}

// Orchestrator idempotently materializes one payout job and its transfers per settlement.
type Orchestrator struct {
	maxAttempts int
	log         *zap.Logger
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	MaxAttempts int // per-transfer attempt limit; default domain.DefaultMaxAttempts
	Logger      *zap.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = domain.DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{maxAttempts: opts.MaxAttempts, log: opts.Logger}
}

// SchedulePayout validates the request and schedules it in its own transaction.
func (o *Orchestrator) SchedulePayout(
	ctx context.Context,
	db storage.DB,
	settlementID, contestID string,
	winners []domain.Winner,
) (*ScheduleResult, error) {
	if err := validate(settlementID, contestID, winners); err != nil {
		return nil, err
	}

	var result *ScheduleResult
	err := db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		result, err = o.schedule(ctx, tx, settlementID, contestID, winners)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScheduleInTx is SchedulePayout inside a transaction owned by the caller.
func (o *Orchestrator) ScheduleInTx(
	ctx context.Context,
	tx storage.PayoutWriter,
	settlementID, contestID string,
	winners []domain.Winner,
) (*ScheduleResult, error) {
	if err := validate(settlementID, contestID, winners); err != nil {
		return nil, err
	}
	return o.schedule(ctx, tx, settlementID, contestID, winners)
}

func (o *Orchestrator) schedule(
	ctx context.Context,
	tx storage.PayoutWriter,
	settlementID, contestID string,
	winners []domain.Winner,
) (*ScheduleResult, error) {
	existing, err := tx.FindPayoutJob(ctx, settlementID)
	switch {
	case err == nil:
		observability.RecordPayoutScheduled(false)
		return existingResult(existing), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("find payout job: %w", err)
	}

	job := &domain.PayoutJob{
		ID:           uuid.NewString(),
		SettlementID: settlementID,
		ContestID:    contestID,
		Status:       domain.PayoutJobStatusPending,
		TotalPayouts: len(winners),
	}

	inserted, err := tx.InsertPayoutJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("insert payout job: %w", err)
	}
	if !inserted {
		// A concurrent scheduler committed first; its job and transfers stand.
		winner, err := tx.FindPayoutJob(ctx, settlementID)
		if err != nil {
			return nil, fmt.Errorf("re-read payout job: %w", err)
		}
		o.log.Info("payout job created concurrently",
			zap.String("settlement_id", settlementID),
			zap.String("payout_job_id", winner.ID))
		observability.RecordPayoutScheduled(false)
		return existingResult(winner), nil
	}

	transfers := make([]*domain.PayoutTransfer, 0, len(winners))
	for _, w := range winners {
		id := uuid.NewString()
		transfers = append(transfers, &domain.PayoutTransfer{
			ID:             id,
			PayoutJobID:    job.ID,
			ContestID:      contestID,
			UserID:         w.UserID,
			AmountCents:    w.AmountCents,
			Status:         domain.TransferPending,
			MaxAttempts:    o.maxAttempts,
			IdempotencyKey: idhash.PayoutIdempotencyKey(id),
		})
	}
	if err := tx.InsertPayoutTransfers(ctx, transfers); err != nil {
		return nil, fmt.Errorf("insert payout transfers: %w", err)
	}

	o.log.Info("payout job scheduled",
		zap.String("settlement_id", settlementID),
		zap.String("contest_id", contestID),
		zap.String("payout_job_id", job.ID),
		zap.Int("total_payouts", job.TotalPayouts))
	observability.RecordPayoutScheduled(true)

	return &ScheduleResult{
		PayoutJobID:  job.ID,
		SettlementID: job.SettlementID,
		Status:       job.Status,
		TotalPayouts: job.TotalPayouts,
		CreatedAt:    job.CreatedAt,
		Created:      true,
		Transfers:    transfers,
	}, nil
}

func existingResult(j *domain.PayoutJob) *ScheduleResult {
	return &ScheduleResult{
		PayoutJobID:  j.ID,
		SettlementID: j.SettlementID,
		Status:       j.Status,
		TotalPayouts: j.TotalPayouts,
		CreatedAt:    j.CreatedAt,
	}
}

func validate(settlementID, contestID string, winners []domain.Winner) error {
	if settlementID == "" {
		return &ValidationError{Field: "settlement_id", Reason: "is required"}
	}
	if contestID == "" {
		return &ValidationError{Field: "contest_id", Reason: "is required"}
	}
	if len(winners) == 0 {
		return &ValidationError{Field: "winners", Reason: "must not be empty"}
	}

	seen := make(map[string]struct{}, len(winners))
	for i, w := range winners {
		if w.UserID == "" {
			return &ValidationError{Field: fmt.Sprintf("winners[%d].user_id", i), Reason: "is required"}
		}
		if w.AmountCents <= 0 {
			return &ValidationError{Field: fmt.Sprintf("winners[%d].amount_cents", i), Reason: "must be positive"}
		}
		if _, dup := seen[w.UserID]; dup {
			return &ValidationError{Field: fmt.Sprintf("winners[%d].user_id", i), Reason: "is duplicated"}
		}
		seen[w.UserID] = struct{}{}
	}
	return nil
}
