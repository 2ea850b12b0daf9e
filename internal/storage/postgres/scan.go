package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// querier is satisfied by both *Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const transferColumns = `
	id, payout_job_id, contest_id, user_id, amount_cents, status,
	attempt_count, max_attempts, provider_transfer_id, idempotency_key,
	failure_reason, created_at, updated_at`

const ledgerColumns = `
	id, seq, entry_type, direction, amount_cents, idempotency_key, reference, created_at`

func scanTransfer(row pgx.Row) (*domain.PayoutTransfer, error) {
	var t domain.PayoutTransfer
	var status string
	err := row.Scan(
		&t.ID, &t.PayoutJobID, &t.ContestID, &t.UserID, &t.AmountCents, &status,
		&t.AttemptCount, &t.MaxAttempts, &t.ProviderTransferID, &t.IdempotencyKey,
		&t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TransferStatus(status)
	return &t, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var direction string
		if err := rows.Scan(
			&e.ID, &e.Seq, &e.EntryType, &direction, &e.AmountCents,
			&e.IdempotencyKey, &e.Reference, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Direction = domain.Direction(direction)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func findPayoutJob(ctx context.Context, q querier, settlementID string) (*domain.PayoutJob, error) {
	var j domain.PayoutJob
	err := q.QueryRow(ctx, `
		SELECT id, settlement_id, contest_id, status, total_payouts, created_at
		FROM payout_jobs
		WHERE settlement_id = $1
	`, settlementID).Scan(&j.ID, &j.SettlementID, &j.ContestID, &j.Status, &j.TotalPayouts, &j.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// nullTime maps the zero time to SQL NULL so column defaults apply.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
