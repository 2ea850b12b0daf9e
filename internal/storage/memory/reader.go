package memory

import (
	"context"
	"sort"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// ListUnconsumedEvents returns events of eventType whose contest has no consumption marker.
func (s *Store) ListUnconsumedEvents(_ context.Context, eventType string, after storage.EventCursor, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.OutboxEvent
	for _, e := range s.state.events {
		if e.EventType != eventType {
			continue
		}
		if _, consumed := s.state.markers[e.ContestID]; consumed {
			continue
		}
		if !after.Before(e) {
			continue
		}
		eventCopy := *e
		result = append(result, &eventCopy)
	}

	// Sort by created_at ASC, id ASC
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListClaimableTransferIDs returns ids of pending or retryable transfers.
func (s *Store) ListClaimableTransferIDs(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimable []*domain.PayoutTransfer
	for _, t := range s.state.transfers {
		if t.Status.Claimable() {
			claimable = append(claimable, t)
		}
	}

	// Least recently updated first
	sort.Slice(claimable, func(i, j int) bool {
		if claimable[i].UpdatedAt.Equal(claimable[j].UpdatedAt) {
			return claimable[i].ID < claimable[j].ID
		}
		return claimable[i].UpdatedAt.Before(claimable[j].UpdatedAt)
	})

	if limit > 0 && len(claimable) > limit {
		claimable = claimable[:limit]
	}

	ids := make([]string, len(claimable))
	for i, t := range claimable {
		ids[i] = t.ID
	}
	return ids, nil
}

// GetTransfer returns a transfer by id. Returns ErrNotFound if not exists.
func (s *Store) GetTransfer(_ context.Context, transferID string) (*domain.PayoutTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.transfers[transferID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTransfer(t), nil
}

// FindPayoutJob returns the job of a settlement. Returns ErrNotFound if not exists.
func (s *Store) FindPayoutJob(_ context.Context, settlementID string) (*domain.PayoutJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return findJob(s.state, settlementID)
}

// ListJobTransfers returns all transfers of a job ordered by user_id.
func (s *Store) ListJobTransfers(_ context.Context, jobID string) ([]*domain.PayoutTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PayoutTransfer
	for _, t := range s.state.transfers {
		if t.PayoutJobID == jobID {
			result = append(result, copyTransfer(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

// ListLedgerEntriesAfter returns ledger entries with seq > afterSeq, ordered by seq ASC.
func (s *Store) ListLedgerEntriesAfter(_ context.Context, afterSeq int64, limit int) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.LedgerEntry
	for _, e := range s.state.ledger {
		if e.Seq <= afterSeq {
			continue
		}
		entryCopy := *e
		result = append(result, &entryCopy)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// ListLedgerEntriesByReference returns all ledger entries of a transfer.
func (s *Store) ListLedgerEntriesByReference(_ context.Context, reference string) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.LedgerEntry
	for _, e := range s.state.ledger {
		if e.Reference == reference {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}
	return result, nil
}

func findJob(st *state, settlementID string) (*domain.PayoutJob, error) {
	j, ok := st.jobs[settlementID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	jobCopy := *j
	return &jobCopy, nil
}
