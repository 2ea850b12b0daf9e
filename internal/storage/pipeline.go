package storage

import (
	"context"
	"time"

	"contest-settlement/internal/domain"
)

// DB is the database handle passed explicitly into every pipeline operation.
// Implementations: postgres.Store (production) and memory.Store (tests, dev mode).
type DB interface {
	Reader

	// InTx runs fn inside one database transaction. The transaction commits when fn
	// returns nil and rolls back when fn returns an error or panics.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
}

// Reader holds non-transactional reads used to find work and to inspect results.
type Reader interface {
	// ListUnconsumedEvents returns events of eventType whose contest has no
	// consumption marker yet and that sort after the cursor, ordered by
	// (created_at, id) ASC. A zero cursor starts from the oldest event.
	ListUnconsumedEvents(ctx context.Context, eventType string, after EventCursor, limit int) ([]*domain.OutboxEvent, error)

	// ListClaimableTransferIDs returns ids of pending or retryable transfers,
	// least recently updated first.
	ListClaimableTransferIDs(ctx context.Context, limit int) ([]string, error)

	// GetTransfer returns a transfer by id. Returns ErrNotFound if not exists.
	GetTransfer(ctx context.Context, transferID string) (*domain.PayoutTransfer, error)

	// FindPayoutJob returns the job of a settlement. Returns ErrNotFound if not exists.
	FindPayoutJob(ctx context.Context, settlementID string) (*domain.PayoutJob, error)

	// ListJobTransfers returns all transfers of a job ordered by user_id.
	ListJobTransfers(ctx context.Context, jobID string) ([]*domain.PayoutTransfer, error)

	// ListLedgerEntriesAfter returns ledger entries with seq > afterSeq, ordered by seq ASC.
	ListLedgerEntriesAfter(ctx context.Context, afterSeq int64, limit int) ([]*domain.LedgerEntry, error)

	// ListLedgerEntriesByReference returns all ledger entries of a transfer, ordered by seq ASC.
	ListLedgerEntriesByReference(ctx context.Context, reference string) ([]*domain.LedgerEntry, error)
}

// EventCursor is a keyset position in the outbox, ordered by (CreatedAt, ID).
type EventCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the cursor positioned on e.
func CursorAfter(e *domain.OutboxEvent) EventCursor {
	return EventCursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// IsZero reports whether the cursor is at the start of the outbox.
func (c EventCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

// Before reports whether the cursor sorts strictly before e.
func (c EventCursor) Before(e *domain.OutboxEvent) bool {
	if c.IsZero() {
		return true
	}
	if e.CreatedAt.Equal(c.CreatedAt) {
		return e.ID > c.ID
	}
	return e.CreatedAt.After(c.CreatedAt)
}

// Tx is one open database transaction.
type Tx interface {
	ContestLocker
	ScoreReader
	SettlementWriter
	PayoutWriter
	LedgerWriter
}

// ContestLocker guards settlement triggering.
type ContestLocker interface {
	// LockContest selects the contest row FOR UPDATE. Returns ErrNotFound if not exists.
	LockContest(ctx context.Context, contestID string) (*domain.Contest, error)

	// InsertConsumptionMarker inserts the marker unless one exists for the contest.
	// Returns false (and no error) when the marker already existed.
	InsertConsumptionMarker(ctx context.Context, m *domain.SettlementConsumptionMarker) (bool, error)
}

// ScoreReader reads immutable snapshot data. Settlement strategies only see this.
type ScoreReader interface {
	// GetSnapshot returns a snapshot by id. Returns ErrNotFound if not exists.
	GetSnapshot(ctx context.Context, snapshotID string) (*domain.DataSnapshot, error)

	// GetLatestFinalSnapshot returns the newest provider-final snapshot of a contest.
	// Returns ErrNotFound if none exists.
	GetLatestFinalSnapshot(ctx context.Context, contestID string) (*domain.DataSnapshot, error)

	// ListParticipantScores returns all score rows captured in a snapshot,
	// ordered by (user_id, week).
	ListParticipantScores(ctx context.Context, snapshotID string) ([]domain.ParticipantScore, error)
}

// SettlementWriter persists settlement records.
type SettlementWriter interface {
	// InsertSettlementRecord adds a record. Returns ErrDuplicateKey if a record
	// for (contest_id, snapshot_id) exists.
	InsertSettlementRecord(ctx context.Context, r *domain.SettlementRecord) error

	// GetSettlementRecord returns the record bound to (contest_id, snapshot_id).
	// Returns ErrNotFound if not exists.
	GetSettlementRecord(ctx context.Context, contestID, snapshotID string) (*domain.SettlementRecord, error)
}

// PayoutWriter persists payout jobs and drives transfer state.
type PayoutWriter interface {
	// FindPayoutJob returns the job of a settlement. Returns ErrNotFound if not exists.
	FindPayoutJob(ctx context.Context, settlementID string) (*domain.PayoutJob, error)

	// InsertPayoutJob inserts a job unless one exists for the settlement.
	// Returns false (and no error) when a job for settlement_id already existed.
	InsertPayoutJob(ctx context.Context, j *domain.PayoutJob) (bool, error)

	// InsertPayoutTransfers adds all transfers atomically.
	InsertPayoutTransfers(ctx context.Context, transfers []*domain.PayoutTransfer) error

	// ClaimTransfer moves a pending or retryable transfer to processing and
	// increments attempt_count in one statement. Returns ErrNotFound when no
	// claimable row exists.
	ClaimTransfer(ctx context.Context, transferID string) (*domain.PayoutTransfer, error)

	// FinishTransfer records the outcome of an attempt on a processing transfer.
	FinishTransfer(ctx context.Context, o TransferOutcome) error
}

// TransferOutcome is the result of one execution attempt.
type TransferOutcome struct {
	TransferID         string
	Status             domain.TransferStatus
	ProviderTransferID *string
	FailureReason      *string
}

// LedgerWriter appends ledger entries. Nothing in the pipeline reads the ledger
// for control flow.
type LedgerWriter interface {
	// InsertLedgerEntry appends an entry. Returns false (and no error) when an
	// entry with the same idempotency_key exists.
	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) (bool, error)
}

// AccountReader reads users' connected payout accounts.
type AccountReader interface {
	// GetPayoutAccountID returns the user's payout account id, or nil when the
	// user has none. Returns ErrNotFound if the user does not exist.
	GetPayoutAccountID(ctx context.Context, userID string) (*string, error)
}
