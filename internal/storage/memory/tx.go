package memory

import (
	"context"
	"sort"
	"time"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// memTx is a storage.Tx over the locked state of a Store.
type memTx struct {
	st    *state
	clock func() time.Time
}

// Verify interface compliance at compile time.
var _ storage.Tx = (*memTx)(nil)

// LockContest returns the contest. The store lock already serializes transactions.
func (t *memTx) LockContest(_ context.Context, contestID string) (*domain.Contest, error) {
	c, ok := t.st.contests[contestID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyContest(c), nil
}

// InsertConsumptionMarker inserts the marker unless one exists for the contest.
func (t *memTx) InsertConsumptionMarker(_ context.Context, m *domain.SettlementConsumptionMarker) (bool, error) {
	if m == nil || m.ContestID == "" {
		return false, storage.ErrInvalidInput
	}
	if _, exists := t.st.markers[m.ContestID]; exists {
		return false, nil
	}

	markerCopy := *m
	if markerCopy.ConsumedAt.IsZero() {
		markerCopy.ConsumedAt = t.clock()
	}
	t.st.markers[m.ContestID] = &markerCopy
	return true, nil
}

// GetSnapshot returns a snapshot by id.
func (t *memTx) GetSnapshot(_ context.Context, snapshotID string) (*domain.DataSnapshot, error) {
	snap, ok := t.st.snapshots[snapshotID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	snapCopy := *snap
	return &snapCopy, nil
}

// GetLatestFinalSnapshot returns the newest provider-final snapshot of a contest.
func (t *memTx) GetLatestFinalSnapshot(_ context.Context, contestID string) (*domain.DataSnapshot, error) {
	var latest *domain.DataSnapshot
	for _, snap := range t.st.snapshots {
		if snap.ContestID != contestID || !snap.ProviderFinal {
			continue
		}
		if latest == nil || snap.CapturedAt.After(latest.CapturedAt) ||
			(snap.CapturedAt.Equal(latest.CapturedAt) && snap.ID > latest.ID) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	snapCopy := *latest
	return &snapCopy, nil
}

// ListParticipantScores returns all score rows of a snapshot ordered by (user_id, week).
func (t *memTx) ListParticipantScores(_ context.Context, snapshotID string) ([]domain.ParticipantScore, error) {
	scores := append([]domain.ParticipantScore(nil), t.st.scores[snapshotID]...)
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].UserID == scores[j].UserID {
			return scores[i].Week < scores[j].Week
		}
		return scores[i].UserID < scores[j].UserID
	})
	return scores, nil
}

// InsertSettlementRecord adds a record. Returns ErrDuplicateKey if (contest_id, snapshot_id) exists.
func (t *memTx) InsertSettlementRecord(_ context.Context, r *domain.SettlementRecord) error {
	if r == nil || r.ID == "" || r.ContestID == "" || r.SnapshotID == "" {
		return storage.ErrInvalidInput
	}

	key := settlementKey(r.ContestID, r.SnapshotID)
	if _, exists := t.st.settlements[key]; exists {
		return storage.ErrDuplicateKey
	}
	t.st.settlements[key] = copyRecord(r)
	return nil
}

// GetSettlementRecord returns the record bound to (contest_id, snapshot_id).
func (t *memTx) GetSettlementRecord(_ context.Context, contestID, snapshotID string) (*domain.SettlementRecord, error) {
	r, ok := t.st.settlements[settlementKey(contestID, snapshotID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRecord(r), nil
}

// FindPayoutJob returns the job of a settlement.
func (t *memTx) FindPayoutJob(_ context.Context, settlementID string) (*domain.PayoutJob, error) {
	return findJob(t.st, settlementID)
}

// InsertPayoutJob inserts a job unless one exists for the settlement.
func (t *memTx) InsertPayoutJob(_ context.Context, j *domain.PayoutJob) (bool, error) {
	if j == nil || j.ID == "" || j.SettlementID == "" {
		return false, storage.ErrInvalidInput
	}
	if _, exists := t.st.jobs[j.SettlementID]; exists {
		return false, nil
	}

	jobCopy := *j
	if jobCopy.CreatedAt.IsZero() {
		jobCopy.CreatedAt = t.clock()
	}
	t.st.jobs[j.SettlementID] = &jobCopy
	*j = jobCopy
	return true, nil
}

// InsertPayoutTransfers adds all transfers. Fails the entire batch on a duplicate id or key.
func (t *memTx) InsertPayoutTransfers(_ context.Context, transfers []*domain.PayoutTransfer) error {
	keys := make(map[string]struct{}, len(t.st.transfers))
	for _, existing := range t.st.transfers {
		keys[existing.IdempotencyKey] = struct{}{}
	}

	for _, tr := range transfers {
		if tr == nil || tr.ID == "" || tr.IdempotencyKey == "" || tr.AmountCents <= 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := t.st.transfers[tr.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := keys[tr.IdempotencyKey]; exists {
			return storage.ErrDuplicateKey
		}
		keys[tr.IdempotencyKey] = struct{}{}
	}

	now := t.clock()
	for _, tr := range transfers {
		transferCopy := copyTransfer(tr)
		if transferCopy.CreatedAt.IsZero() {
			transferCopy.CreatedAt = now
		}
		if transferCopy.UpdatedAt.IsZero() {
			transferCopy.UpdatedAt = transferCopy.CreatedAt
		}
		t.st.transfers[tr.ID] = transferCopy
	}
	return nil
}

// ClaimTransfer moves a pending or retryable transfer to processing and increments attempt_count.
func (t *memTx) ClaimTransfer(_ context.Context, transferID string) (*domain.PayoutTransfer, error) {
	tr, ok := t.st.transfers[transferID]
	if !ok || !tr.Status.Claimable() {
		return nil, storage.ErrNotFound
	}

	tr.Status = domain.TransferProcessing
	tr.AttemptCount++
	tr.UpdatedAt = t.clock()
	return copyTransfer(tr), nil
}

// FinishTransfer records the outcome of an attempt on a processing transfer.
func (t *memTx) FinishTransfer(_ context.Context, o storage.TransferOutcome) error {
	tr, ok := t.st.transfers[o.TransferID]
	if !ok || tr.Status != domain.TransferProcessing {
		return storage.ErrNotFound
	}

	tr.Status = o.Status
	if o.ProviderTransferID != nil {
		v := *o.ProviderTransferID
		tr.ProviderTransferID = &v
	}
	if o.FailureReason != nil {
		v := *o.FailureReason
		tr.FailureReason = &v
	} else {
		tr.FailureReason = nil
	}
	tr.UpdatedAt = t.clock()
	return nil
}

// InsertLedgerEntry appends an entry unless its idempotency_key exists.
func (t *memTx) InsertLedgerEntry(_ context.Context, e *domain.LedgerEntry) (bool, error) {
	if e == nil || e.ID == "" || e.IdempotencyKey == "" {
		return false, storage.ErrInvalidInput
	}
	if _, exists := t.st.ledgerKeys[e.IdempotencyKey]; exists {
		return false, nil
	}

	t.st.ledgerSeq++
	entryCopy := *e
	entryCopy.Seq = t.st.ledgerSeq
	if entryCopy.CreatedAt.IsZero() {
		entryCopy.CreatedAt = t.clock()
	}
	t.st.ledger = append(t.st.ledger, &entryCopy)
	t.st.ledgerKeys[e.IdempotencyKey] = struct{}{}
	e.Seq = entryCopy.Seq
	return true, nil
}
