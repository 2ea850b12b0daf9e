package settlement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/payout"
	"contest-settlement/internal/storage"
	"contest-settlement/internal/storage/memory"
)

func runHandler(t *testing.T, store *memory.Store, event *domain.OutboxEvent) error {
	t.Helper()
	handler := newTestEngine().Handler(payout.NewOrchestrator(payout.OrchestratorOptions{}))

	return store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		contest, err := tx.LockContest(ctx, event.ContestID)
		if err != nil {
			return err
		}
		return handler(ctx, tx, event, contest)
	})
}

func TestHandler_SettlesAndSchedulesPayout(t *testing.T) {
	store := memory.NewStore()
	seedContest(t, store, StrategyTotalPoints, true)

	err := runHandler(t, store, &domain.OutboxEvent{
		ID:        "event-1",
		ContestID: "contest-1",
		EventType: domain.EventContestCompleted,
	})
	require.NoError(t, err)

	counts := store.Counts()
	assert.Equal(t, 1, counts.Settlements)
	assert.Equal(t, 1, counts.PayoutJobs)
	assert.Equal(t, 2, counts.Transfers)
	assert.Equal(t, 0, counts.LedgerEntries)

	var record *domain.SettlementRecord
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		record, err = tx.GetSettlementRecord(ctx, "contest-1", "snap-1")
		return err
	}))

	job, err := store.FindPayoutJob(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.TotalPayouts)

	transfers, err := store.ListJobTransfers(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	amounts := map[string]int64{}
	for _, tr := range transfers {
		amounts[tr.UserID] = tr.AmountCents
		assert.Equal(t, domain.TransferPending, tr.Status)
		assert.Equal(t, "payout:"+tr.ID, tr.IdempotencyKey)
	}
	assert.Equal(t, map[string]int64{"u2": 6000, "u1": 4000}, amounts)
}

func TestHandler_UsesPayloadSnapshot(t *testing.T) {
	store := memory.NewStore()
	seedContest(t, store, StrategyTotalPoints, true)

	payload, err := json.Marshal(domain.CompletedEventPayload{SnapshotID: "snap-1", SnapshotHash: "stale-hash"})
	require.NoError(t, err)

	err = runHandler(t, store, &domain.OutboxEvent{
		ID:        "event-1",
		ContestID: "contest-1",
		EventType: domain.EventContestCompleted,
		Payload:   payload,
	})
	assert.ErrorIs(t, err, ErrSettlementRequiresFinalSnapshot)
	assert.Equal(t, 0, store.Counts().Settlements)
}

func TestHandler_NoFinalSnapshot(t *testing.T) {
	store := memory.NewStore()
	seedContest(t, store, StrategyTotalPoints, false)

	err := runHandler(t, store, &domain.OutboxEvent{ID: "event-1", ContestID: "contest-1"})
	assert.ErrorIs(t, err, ErrSettlementRequiresFinalSnapshot)
	assert.Equal(t, memory.Counts{}, store.Counts())
}
