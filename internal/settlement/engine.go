package settlement

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

// Error codes surfaced to callers and metrics.
const (
	CodeRequiresFinalSnapshot = "SETTLEMENT_REQUIRES_FINAL_SNAPSHOT"
	CodeUnknownStrategy       = "UNKNOWN_SETTLEMENT_STRATEGY"
)

// ErrSettlementRequiresFinalSnapshot is returned when the requested snapshot is
// missing, belongs to another contest, has a different hash, or is not provider-final.
var ErrSettlementRequiresFinalSnapshot = errors.New(CodeRequiresFinalSnapshot)

// Engine computes settlement records bound to immutable snapshots.
type Engine struct {
	registry *Registry
	clock    func() time.Time
	log      *zap.Logger
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Registry *Registry // default DefaultRegistry()
	Clock    func() time.Time
	Logger   *zap.Logger
}

// NewEngine creates a new Engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{registry: opts.Registry, clock: opts.Clock, log: opts.Logger}
}

// ExecuteSettlement computes and persists the settlement of contestID against the
// provider-final snapshot (snapshotID, snapshotHash).
//
// Repeated calls for the same snapshot return the stored record unchanged.
// Nothing is written when the snapshot check or strategy lookup fails.
func (e *Engine) ExecuteSettlement(
	ctx context.Context,
	tx storage.Tx,
	contestID, snapshotID, snapshotHash string,
) (*domain.SettlementRecord, error) {
	if _, err := e.requireFinalSnapshot(ctx, tx, contestID, snapshotID, snapshotHash); err != nil {
		return nil, err
	}

	contest, err := tx.LockContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("lock contest %s: %w", contestID, err)
	}

	strategy, err := e.registry.Get(contest.SettlementStrategyKey)
	if err != nil {
		observability.RecordSettlementError(CodeUnknownStrategy)
		return nil, err
	}

	existing, err := tx.GetSettlementRecord(ctx, contestID, snapshotID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get settlement record: %w", err)
	}

	standings, err := strategy.ComputeStandings(ctx, tx, contestID, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("compute standings with %s: %w", contest.SettlementStrategyKey, err)
	}

	record := &domain.SettlementRecord{
		ID:           uuid.NewString(),
		ContestID:    contestID,
		SnapshotID:   snapshotID,
		SnapshotHash: snapshotHash,
		ComputedAt:   e.clock().UTC(),
		Standings:    standings,
		ResultsHash:  idhash.ComputeResultsHash(contestID, snapshotID, snapshotHash, standings),
	}

	if err := tx.InsertSettlementRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("insert settlement record: %w", err)
	}

	e.log.Info("settlement computed",
		zap.String("contest_id", contestID),
		zap.String("snapshot_id", snapshotID),
		zap.String("strategy", contest.SettlementStrategyKey),
		zap.Int("participants", len(standings)),
		zap.String("results_hash", record.ResultsHash))
	observability.RecordSettlement(contest.SettlementStrategyKey)

	return record, nil
}

func (e *Engine) requireFinalSnapshot(
	ctx context.Context,
	tx storage.ScoreReader,
	contestID, snapshotID, snapshotHash string,
) (*domain.DataSnapshot, error) {
	snap, err := tx.GetSnapshot(ctx, snapshotID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, e.finalSnapshotError(contestID, snapshotID, "not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	switch {
	case snap.ContestID != contestID:
		return nil, e.finalSnapshotError(contestID, snapshotID, "belongs to contest "+snap.ContestID)
	case snap.Hash != snapshotHash:
		return nil, e.finalSnapshotError(contestID, snapshotID, "hash mismatch")
	case !snap.ProviderFinal:
		return nil, e.finalSnapshotError(contestID, snapshotID, "not provider-final")
	}
	return snap, nil
}

func (e *Engine) finalSnapshotError(contestID, snapshotID, detail string) error {
	observability.RecordSettlementError(CodeRequiresFinalSnapshot)
	return fmt.Errorf("%w: contest %s snapshot %s %s",
		ErrSettlementRequiresFinalSnapshot, contestID, snapshotID, detail)
}
