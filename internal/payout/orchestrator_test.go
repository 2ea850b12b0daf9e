package payout

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
	"contest-settlement/internal/storage/memory"
)

var threeWinners = []domain.Winner{
	{UserID: "u1", AmountCents: 5000},
	{UserID: "u2", AmountCents: 3000},
	{UserID: "u3", AmountCents: 2000},
}

func TestSchedulePayout_CreatesJobAndTransfers(t *testing.T) {
	db := memory.NewStore()
	o := NewOrchestrator(OrchestratorOptions{})

	res, err := o.SchedulePayout(context.Background(), db, "s1", "c1", threeWinners)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "s1", res.SettlementID)
	assert.Equal(t, domain.PayoutJobStatusPending, res.Status)
	assert.Equal(t, 3, res.TotalPayouts)
	require.Len(t, res.Transfers, 3)

	stored, err := db.ListJobTransfers(context.Background(), res.PayoutJobID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	keys := map[string]struct{}{}
	for _, tr := range stored {
		assert.Equal(t, domain.TransferPending, tr.Status)
		assert.Zero(t, tr.AttemptCount)
		assert.Equal(t, domain.DefaultMaxAttempts, tr.MaxAttempts)
		assert.Equal(t, "payout:"+tr.ID, tr.IdempotencyKey)
		keys[tr.IdempotencyKey] = struct{}{}
	}
	assert.Len(t, keys, 3)
	assert.Equal(t, "u1", stored[0].UserID)
	assert.Equal(t, int64(5000), stored[0].AmountCents)
}

func TestSchedulePayout_Idempotent(t *testing.T) {
	db := memory.NewStore()
	o := NewOrchestrator(OrchestratorOptions{MaxAttempts: 5})
	ctx := context.Background()

	first, err := o.SchedulePayout(ctx, db, "s1", "c1", threeWinners)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := o.SchedulePayout(ctx, db, "s1", "c1", threeWinners[:1])
		require.NoError(t, err)
		assert.Equal(t, first.PayoutJobID, again.PayoutJobID)
		assert.False(t, again.Created)
		assert.Empty(t, again.Transfers)
		assert.Equal(t, 3, again.TotalPayouts)
	}

	counts := db.Counts()
	assert.Equal(t, 1, counts.PayoutJobs)
	assert.Equal(t, 3, counts.Transfers)

	tr := first.Transfers[0]
	stored, err := db.GetTransfer(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.MaxAttempts)
}

func TestSchedulePayout_ConcurrentCallsCreateOneJob(t *testing.T) {
	db := memory.NewStore()
	o := NewOrchestrator(OrchestratorOptions{})

	const n = 8
	results := make([]*ScheduleResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := o.SchedulePayout(context.Background(), db, "s1", "c1", threeWinners)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].PayoutJobID, r.PayoutJobID)
		if r.Created {
			created++
		} else {
			assert.Empty(t, r.Transfers)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, db.Counts().PayoutJobs)
	assert.Equal(t, 3, db.Counts().Transfers)
}

// racingWriter hides the first job lookup, as if another worker inserted the
// job after this transaction's read.
type racingWriter struct {
	storage.PayoutWriter
	hidden bool
}

func (w *racingWriter) FindPayoutJob(ctx context.Context, settlementID string) (*domain.PayoutJob, error) {
	if !w.hidden {
		w.hidden = true
		return nil, storage.ErrNotFound
	}
	return w.PayoutWriter.FindPayoutJob(ctx, settlementID)
}

func TestScheduleInTx_LosingInsertReturnsExistingJob(t *testing.T) {
	db := memory.NewStore()
	o := NewOrchestrator(OrchestratorOptions{})
	ctx := context.Background()

	first, err := o.SchedulePayout(ctx, db, "s1", "c1", threeWinners)
	require.NoError(t, err)

	var second *ScheduleResult
	require.NoError(t, db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		second, err = o.ScheduleInTx(ctx, &racingWriter{PayoutWriter: tx}, "s1", "c1", threeWinners)
		return err
	}))

	assert.Equal(t, first.PayoutJobID, second.PayoutJobID)
	assert.False(t, second.Created)
	assert.Empty(t, second.Transfers)
	assert.Equal(t, 3, db.Counts().Transfers)
}

func TestSchedulePayout_Validation(t *testing.T) {
	tests := []struct {
		name         string
		settlementID string
		contestID    string
		winners      []domain.Winner
		field        string
	}{
		{"missing settlement", "", "c1", threeWinners, "settlement_id"},
		{"missing contest", "s1", "", threeWinners, "contest_id"},
		{"no winners", "s1", "c1", nil, "winners"},
		{"empty user", "s1", "c1", []domain.Winner{{AmountCents: 1}}, "winners[0].user_id"},
		{"zero amount", "s1", "c1", []domain.Winner{{UserID: "u1"}}, "winners[0].amount_cents"},
		{"negative amount", "s1", "c1", []domain.Winner{{UserID: "u1", AmountCents: -5}}, "winners[0].amount_cents"},
		{"duplicate user", "s1", "c1", []domain.Winner{{UserID: "u1", AmountCents: 1}, {UserID: "u1", AmountCents: 2}}, "winners[1].user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memory.NewStore()
			o := NewOrchestrator(OrchestratorOptions{})

			_, err := o.SchedulePayout(context.Background(), db, tt.settlementID, tt.contestID, tt.winners)
			require.Error(t, err)
			assert.ErrorIs(t, err, storage.ErrInvalidInput)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, memory.Counts{}, db.Counts())
		})
	}
}

func TestSchedulePayout_TransferInsertFailureRollsBackJob(t *testing.T) {
	db := memory.NewStore()
	ctx := context.Background()

	o := NewOrchestrator(OrchestratorOptions{})
	err := db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := o.ScheduleInTx(ctx, failingTransfers{tx}, "s1", "c1", threeWinners)
		return err
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, memory.Counts{}, db.Counts())
}

type failingTransfers struct {
	storage.PayoutWriter
}

func (failingTransfers) InsertPayoutTransfers(context.Context, []*domain.PayoutTransfer) error {
	return storage.ErrDuplicateKey
}
