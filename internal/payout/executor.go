package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contest-settlement/internal/destination"
	"contest-settlement/internal/domain"
	"contest-settlement/internal/idhash"
	"contest-settlement/internal/observability"
	"contest-settlement/internal/provider"
	"contest-settlement/internal/storage"
)

// Provider moves money to a connected account. Implementations classify
// provider failures into the result and only return an error when the call
// could not be attempted at all.
type Provider interface {
	CreateTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferResult, error)
}

// StatusNotClaimable is reported when no pending or retryable transfer matched.
const StatusNotClaimable = "not_claimable"

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 10 * time.Second

// ExecutionResult is the outcome of one ExecuteTransfer call.
type ExecutionResult struct {
	TransferID         string
	Status             string
	ProviderTransferID string
	FailureReason      string
	AttemptCount       int
}

// Executor claims, executes and records individual transfers.
type Executor struct {
	provider Provider
	timeout  time.Duration
	log      *zap.Logger
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	ProviderTimeout time.Duration
	Logger          *zap.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(p Provider, opts ExecutorOptions) *Executor {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{provider: p, timeout: opts.ProviderTimeout, log: opts.Logger}
}

// ExecuteTransfer runs one attempt of a transfer inside a single transaction:
// claim, resolve the destination, call the provider, record the outcome and
// its ledger entry. Any returned error means the transaction rolled back and
// the transfer is claimable again with its attempt count unchanged.
func (e *Executor) ExecuteTransfer(
	ctx context.Context,
	db storage.DB,
	transferID string,
	resolve destination.Resolver,
) (*ExecutionResult, error) {
	var result *ExecutionResult
	err := db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		result, err = e.execute(ctx, tx, transferID, resolve)
		return err
	})
	if errors.Is(err, errNotClaimable) {
		observability.RecordTransferExecuted(StatusNotClaimable)
		return &ExecutionResult{TransferID: transferID, Status: StatusNotClaimable}, nil
	}
	if err != nil {
		observability.RecordTransferError()
		return nil, err
	}

	observability.RecordTransferExecuted(result.Status)
	return result, nil
}

// errNotClaimable aborts the transaction without surfacing an error.
var errNotClaimable = errors.New(StatusNotClaimable)

func (e *Executor) execute(
	ctx context.Context,
	tx storage.Tx,
	transferID string,
	resolve destination.Resolver,
) (*ExecutionResult, error) {
	tr, err := tx.ClaimTransfer(ctx, transferID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("claim transfer %s: %w", transferID, err)
	}

	log := e.log.With(
		zap.String("transfer_id", tr.ID),
		zap.String("user_id", tr.UserID),
		zap.Int("attempt", tr.AttemptCount),
	)

	account, err := resolve.Resolve(ctx, tr.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve destination for transfer %s: %w", tr.ID, err)
	}
	if account == "" {
		reason := domain.FailureDestinationAccountMissing
		if err := tx.FinishTransfer(ctx, storage.TransferOutcome{
			TransferID:    tr.ID,
			Status:        domain.TransferFailedTerminal,
			FailureReason: &reason,
		}); err != nil {
			return nil, fmt.Errorf("finish transfer %s: %w", tr.ID, err)
		}
		log.Warn("transfer has no destination account")
		return &ExecutionResult{
			TransferID:    tr.ID,
			Status:        string(domain.TransferFailedTerminal),
			FailureReason: reason,
			AttemptCount:  tr.AttemptCount,
		}, nil
	}

	res, err := e.callProvider(ctx, tr, account)
	if err != nil {
		return nil, fmt.Errorf("create transfer %s: %w", tr.ID, err)
	}

	if !res.Success && res.Reason == provider.ReasonInvalidDestination {
		e.invalidateDestination(ctx, resolve, tr.UserID, log)
	}

	outcome, entry := decide(tr, res)
	if err := tx.FinishTransfer(ctx, outcome); err != nil {
		return nil, fmt.Errorf("finish transfer %s: %w", tr.ID, err)
	}

	inserted, err := tx.InsertLedgerEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry for transfer %s: %w", tr.ID, err)
	}
	if inserted {
		observability.RecordLedgerEntry(entry.EntryType)
	}

	out := &ExecutionResult{
		TransferID:   tr.ID,
		Status:       string(outcome.Status),
		AttemptCount: tr.AttemptCount,
	}
	if outcome.ProviderTransferID != nil {
		out.ProviderTransferID = *outcome.ProviderTransferID
	}
	if outcome.FailureReason != nil {
		out.FailureReason = *outcome.FailureReason
	}

	log.Info("transfer attempt finished",
		zap.String("status", out.Status),
		zap.String("provider_transfer_id", out.ProviderTransferID),
		zap.String("failure_reason", out.FailureReason))
	return out, nil
}

// invalidateDestination drops a cached account the provider refused, so the
// user's next transfer resolves it fresh.
func (e *Executor) invalidateDestination(ctx context.Context, resolve destination.Resolver, userID string, log *zap.Logger) {
	inv, ok := resolve.(destination.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, userID); err != nil {
		log.Warn("destination cache invalidate failed", zap.Error(err))
	}
}

func (e *Executor) callProvider(ctx context.Context, tr *domain.PayoutTransfer, account string) (provider.TransferResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.provider.CreateTransfer(callCtx, provider.TransferRequest{
		AmountCents:    tr.AmountCents,
		Destination:    account,
		IdempotencyKey: tr.IdempotencyKey,
		Timeout:        e.timeout,
		Metadata: map[string]string{
			"transfer_id":   tr.ID,
			"payout_job_id": tr.PayoutJobID,
			"contest_id":    tr.ContestID,
			"user_id":       tr.UserID,
		},
	})

	label := "success"
	switch {
	case err != nil:
		label = "error"
	case !res.Success:
		label = string(res.Classification)
	}
	observability.RecordProviderCall(label, time.Since(start).Seconds())
	return res, err
}

// decide maps a provider result onto the transfer's next state and the
// matching ledger entry.
func decide(tr *domain.PayoutTransfer, res provider.TransferResult) (storage.TransferOutcome, *domain.LedgerEntry) {
	entry := &domain.LedgerEntry{
		ID:             uuid.NewString(),
		AmountCents:    tr.AmountCents,
		IdempotencyKey: idhash.LedgerIdempotencyKey(tr.IdempotencyKey, tr.AttemptCount),
		Reference:      tr.ID,
	}

	if res.Success {
		id := res.TransferID
		entry.EntryType = domain.LedgerPayoutCompleted
		entry.Direction = domain.DirectionCredit
		return storage.TransferOutcome{
			TransferID:         tr.ID,
			Status:             domain.TransferCompleted,
			ProviderTransferID: &id,
		}, entry
	}

	reason := res.Reason
	if reason == "" {
		reason = provider.ReasonUnknownError
	}
	entry.Direction = domain.DirectionDebit

	if res.Classification != provider.Permanent && tr.AttemptCount < tr.MaxAttempts {
		entry.EntryType = domain.LedgerPayoutRetryable
		return storage.TransferOutcome{
			TransferID:    tr.ID,
			Status:        domain.TransferRetryable,
			FailureReason: &reason,
		}, entry
	}

	entry.EntryType = domain.LedgerPayoutFailedTerminal
	return storage.TransferOutcome{
		TransferID:    tr.ID,
		Status:        domain.TransferFailedTerminal,
		FailureReason: &reason,
	}, entry
}

// PassResult summarizes one ExecutePending pass.
type PassResult struct {
	Attempted      int
	Completed      int
	Retryable      int
	FailedTerminal int
	NotClaimable   int
	Errors         int
}

// ExecutePending runs one attempt for up to limit claimable transfers. A failing
// transfer is logged and counted and does not stop the pass.
func (e *Executor) ExecutePending(
	ctx context.Context,
	db storage.DB,
	resolve destination.Resolver,
	limit int,
) (*PassResult, error) {
	ids, err := db.ListClaimableTransferIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list claimable transfers: %w", err)
	}

	result := &PassResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempted++
		res, err := e.ExecuteTransfer(ctx, db, id, resolve)
		if err != nil {
			result.Errors++
			e.log.Error("transfer execution failed", zap.String("transfer_id", id), zap.Error(err))
			continue
		}

		switch domain.TransferStatus(res.Status) {
		case domain.TransferCompleted:
			result.Completed++
		case domain.TransferRetryable:
			result.Retryable++
		case domain.TransferFailedTerminal:
			result.FailedTerminal++
		default:
			result.NotClaimable++
		}
	}

	if len(ids) > 0 {
		e.log.Info("payout pass finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("completed", result.Completed),
			zap.Int("retryable", result.Retryable),
			zap.Int("failed_terminal", result.FailedTerminal),
			zap.Int("errors", result.Errors))
	}
	return result, nil
}
