package memory

import (
	"context"
	"sync"
	"time"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// Store is an in-memory implementation of storage.DB.
// Transactions are serialized by a single mutex; a rollback restores the state
// captured when the transaction began. Reader methods must not be called from
// inside InTx.
type Store struct {
	mu    sync.Mutex
	state *state
	clock func() time.Time

	// Users are read from inside transactions (destination resolution), so
	// they sit behind their own lock.
	usersMu  sync.RWMutex
	accounts map[string]*string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state:    newState(),
		clock:    func() time.Time { return time.Now().UTC() },
		accounts: make(map[string]*string),
	}
}

// WithClock overrides the clock used for created_at / updated_at fields.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Verify interface compliance at compile time.
var (
	_ storage.DB            = (*Store)(nil)
	_ storage.AccountReader = (*Store)(nil)
)

// InTx runs fn under the store lock. The state is restored if fn fails or panics.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	backup := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = backup
		}
	}()

	if err := fn(ctx, &memTx{st: s.state, clock: s.clock}); err != nil {
		return err
	}
	committed = true
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// AddContest seeds a contest (written by the lifecycle state machine in production).
func (s *Store) AddContest(c *domain.Contest) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.contests[c.ID] = copyContest(c)
	return nil
}

// SetContestStatus changes a seeded contest's status.
func (s *Store) SetContestStatus(contestID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.contests[contestID]
	if !ok {
		return storage.ErrNotFound
	}
	c.Status = status
	return nil
}

// AddOutboxEvent seeds an outbox event. Returns ErrDuplicateKey if id exists.
func (s *Store) AddOutboxEvent(e *domain.OutboxEvent) error {
	if e == nil || e.ID == "" || e.ContestID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.events {
		if existing.ID == e.ID {
			return storage.ErrDuplicateKey
		}
	}

	eventCopy := *e
	if eventCopy.CreatedAt.IsZero() {
		eventCopy.CreatedAt = s.clock()
	}
	s.state.events = append(s.state.events, &eventCopy)
	return nil
}

// AddSnapshot seeds a data snapshot with its score rows.
func (s *Store) AddSnapshot(snap *domain.DataSnapshot, scores []domain.ParticipantScore) error {
	if snap == nil || snap.ID == "" || snap.ContestID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.snapshots[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	snapCopy := *snap
	if snapCopy.CapturedAt.IsZero() {
		snapCopy.CapturedAt = s.clock()
	}
	s.state.snapshots[snap.ID] = &snapCopy
	s.state.scores[snap.ID] = append([]domain.ParticipantScore(nil), scores...)
	return nil
}

// AddTransfer seeds a transfer directly, bypassing the orchestrator.
func (s *Store) AddTransfer(t *domain.PayoutTransfer) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.state, clock: s.clock}
	return tx.InsertPayoutTransfers(context.Background(), []*domain.PayoutTransfer{t})
}

// AddUser seeds a user. An empty accountID means no connected payout account.
func (s *Store) AddUser(userID, accountID string) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if accountID == "" {
		s.accounts[userID] = nil
		return
	}
	s.accounts[userID] = &accountID
}

// GetPayoutAccountID returns the user's payout account id, nil if none.
func (s *Store) GetPayoutAccountID(_ context.Context, userID string) (*string, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	accountID, ok := s.accounts[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if accountID == nil {
		return nil, nil
	}
	v := *accountID
	return &v, nil
}

// Counts reports row counts per relation.
type Counts struct {
	Markers       int
	Settlements   int
	PayoutJobs    int
	Transfers     int
	LedgerEntries int
}

// Counts returns the current row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Counts{
		Markers:       len(s.state.markers),
		Settlements:   len(s.state.settlements),
		PayoutJobs:    len(s.state.jobs),
		Transfers:     len(s.state.transfers),
		LedgerEntries: len(s.state.ledger),
	}
}
