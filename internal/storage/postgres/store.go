package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// Store implements storage.DB using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var (
	_ storage.DB            = (*Store)(nil)
	_ storage.AccountReader = (*Store)(nil)
)

// InTx runs fn inside a READ COMMITTED transaction.
// Row-level locks (FOR UPDATE, conditional UPDATE) and unique constraints provide
// the cross-worker guarantees; no stronger isolation is needed.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListUnconsumedEvents returns events of eventType whose contest has no consumption marker.
func (s *Store) ListUnconsumedEvents(ctx context.Context, eventType string, after storage.EventCursor, limit int) ([]*domain.OutboxEvent, error) {
	var afterAt *time.Time
	if !after.IsZero() {
		afterAt = &after.CreatedAt
	}

	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.contest_id, e.event_type, e.payload, e.created_at
		FROM lifecycle_outbox e
		WHERE e.event_type = $1
		  AND ($3::timestamptz IS NULL OR (e.created_at, e.id) > ($3::timestamptz, $4::text))
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_consumption c WHERE c.contest_id = e.contest_id
		  )
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT $2
	`, eventType, limit, afterAt, after.ID)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.ContestID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

// ListClaimableTransferIDs returns ids of pending or retryable transfers.
func (s *Store) ListClaimableTransferIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM payout_transfers
		WHERE status IN ('pending', 'retryable')
		ORDER BY updated_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query claimable transfers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transfer id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetTransfer returns a transfer by id. Returns ErrNotFound if not exists.
func (s *Store) GetTransfer(ctx context.Context, transferID string) (*domain.PayoutTransfer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM payout_transfers WHERE id = $1`, transferID)

	t, err := scanTransfer(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

// FindPayoutJob returns the job of a settlement. Returns ErrNotFound if not exists.
func (s *Store) FindPayoutJob(ctx context.Context, settlementID string) (*domain.PayoutJob, error) {
	return findPayoutJob(ctx, s.pool, settlementID)
}

// ListJobTransfers returns all transfers of a job ordered by user_id.
func (s *Store) ListJobTransfers(ctx context.Context, jobID string) ([]*domain.PayoutTransfer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transferColumns+`
		FROM payout_transfers
		WHERE payout_job_id = $1
		ORDER BY user_id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.PayoutTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

// ListLedgerEntriesAfter returns ledger entries with seq > afterSeq, ordered by seq ASC.
func (s *Store) ListLedgerEntriesAfter(ctx context.Context, afterSeq int64, limit int) ([]*domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	return collectLedgerEntries(rows)
}

// ListLedgerEntriesByReference returns all ledger entries of a transfer.
func (s *Store) ListLedgerEntriesByReference(ctx context.Context, reference string) ([]*domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE reference = $1
		ORDER BY seq ASC
	`, reference)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	return collectLedgerEntries(rows)
}

// GetPayoutAccountID returns the user's connected payout account id, nil if none.
func (s *Store) GetPayoutAccountID(ctx context.Context, userID string) (*string, error) {
	var accountID *string
	err := s.pool.QueryRow(ctx, `SELECT payout_account_id FROM users WHERE id = $1`, userID).Scan(&accountID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payout account: %w", err)
	}
	return accountID, nil
}
