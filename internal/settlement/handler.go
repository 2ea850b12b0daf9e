package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/payout"
	"contest-settlement/internal/storage"
)

// PayoutScheduler hands winners to the payout orchestrator inside the settlement transaction.
type PayoutScheduler interface {
	ScheduleInTx(ctx context.Context, tx storage.PayoutWriter, settlementID, contestID string, winners []domain.Winner) (*payout.ScheduleResult, error)
}

// Handler returns the outbox handler that settles a completed contest and
// schedules its payouts. It runs inside the transaction that inserted the
// consumption marker, so any error undoes the marker too.
func (e *Engine) Handler(scheduler PayoutScheduler) func(ctx context.Context, tx storage.Tx, event *domain.OutboxEvent, contest *domain.Contest) error {
	return func(ctx context.Context, tx storage.Tx, event *domain.OutboxEvent, contest *domain.Contest) error {
		snapshotID, snapshotHash, err := e.bindSnapshot(ctx, tx, event)
		if err != nil {
			return err
		}

		record, err := e.ExecuteSettlement(ctx, tx, contest.ID, snapshotID, snapshotHash)
		if err != nil {
			return err
		}

		winners, err := Allocate(contest.PrizePoolCents, contest.PayoutStructure, record.Standings)
		if err != nil {
			return fmt.Errorf("allocate prizes for contest %s: %w", contest.ID, err)
		}
		if len(winners) == 0 {
			e.log.Info("settlement has no paid places",
				zap.String("contest_id", contest.ID),
				zap.String("settlement_id", record.ID))
			return nil
		}

		if _, err := scheduler.ScheduleInTx(ctx, tx, record.ID, contest.ID, winners); err != nil {
			return fmt.Errorf("schedule payout for settlement %s: %w", record.ID, err)
		}
		return nil
	}
}

// bindSnapshot picks the snapshot named in the event payload, or the latest
// provider-final snapshot of the contest when the payload names none.
func (e *Engine) bindSnapshot(ctx context.Context, tx storage.ScoreReader, event *domain.OutboxEvent) (string, string, error) {
	var payload domain.CompletedEventPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return "", "", fmt.Errorf("decode outbox payload of event %s: %w", event.ID, err)
		}
	}

	if payload.SnapshotID != "" {
		if payload.SnapshotHash != "" {
			return payload.SnapshotID, payload.SnapshotHash, nil
		}
		snap, err := tx.GetSnapshot(ctx, payload.SnapshotID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", "", e.finalSnapshotError(event.ContestID, payload.SnapshotID, "not found")
		}
		if err != nil {
			return "", "", fmt.Errorf("get snapshot: %w", err)
		}
		return snap.ID, snap.Hash, nil
	}

	snap, err := tx.GetLatestFinalSnapshot(ctx, event.ContestID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", e.finalSnapshotError(event.ContestID, "", "none captured")
	}
	if err != nil {
		return "", "", fmt.Errorf("get latest final snapshot: %w", err)
	}
	return snap.ID, snap.Hash, nil
}
