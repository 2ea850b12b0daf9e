package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// pgTx implements storage.Tx over an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

// Compile-time interface check.
var _ storage.Tx = (*pgTx)(nil)

// LockContest selects the contest row FOR UPDATE together with its template fields.
func (t *pgTx) LockContest(ctx context.Context, contestID string) (*domain.Contest, error) {
	var c domain.Contest
	var structure []byte

	err := t.tx.QueryRow(ctx, `
		SELECT ci.id, ci.status, ci.template_id, ct.settlement_strategy_key,
		       ci.prize_pool_cents, ct.payout_structure
		FROM contest_instances ci
		JOIN contest_templates ct ON ct.id = ci.template_id
		WHERE ci.id = $1
		FOR UPDATE OF ci
	`, contestID).Scan(&c.ID, &c.Status, &c.TemplateID, &c.SettlementStrategyKey, &c.PrizePoolCents, &structure)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock contest: %w", err)
	}

	if len(structure) > 0 {
		if err := json.Unmarshal(structure, &c.PayoutStructure); err != nil {
			return nil, fmt.Errorf("decode payout structure of contest %s: %w", contestID, err)
		}
	}
	return &c, nil
}

// InsertConsumptionMarker inserts the marker unless one exists for the contest.
func (t *pgTx) InsertConsumptionMarker(ctx context.Context, m *domain.SettlementConsumptionMarker) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO settlement_consumption (contest_id, event_id, consumed_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		ON CONFLICT (contest_id) DO NOTHING
	`, m.ContestID, m.EventID, nullTime(m.ConsumedAt))
	if err != nil {
		return false, fmt.Errorf("insert consumption marker: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetSnapshot returns a snapshot by id.
func (t *pgTx) GetSnapshot(ctx context.Context, snapshotID string) (*domain.DataSnapshot, error) {
	var s domain.DataSnapshot
	err := t.tx.QueryRow(ctx, `
		SELECT id, contest_id, snapshot_hash, provider_final, captured_at
		FROM data_snapshots
		WHERE id = $1
	`, snapshotID).Scan(&s.ID, &s.ContestID, &s.Hash, &s.ProviderFinal, &s.CapturedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &s, nil
}

// GetLatestFinalSnapshot returns the newest provider-final snapshot of a contest.
func (t *pgTx) GetLatestFinalSnapshot(ctx context.Context, contestID string) (*domain.DataSnapshot, error) {
	var s domain.DataSnapshot
	err := t.tx.QueryRow(ctx, `
		SELECT id, contest_id, snapshot_hash, provider_final, captured_at
		FROM data_snapshots
		WHERE contest_id = $1 AND provider_final
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`, contestID).Scan(&s.ID, &s.ContestID, &s.Hash, &s.ProviderFinal, &s.CapturedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest final snapshot: %w", err)
	}
	return &s, nil
}

// ListParticipantScores returns all score rows of a snapshot ordered by (user_id, week).
func (t *pgTx) ListParticipantScores(ctx context.Context, snapshotID string) ([]domain.ParticipantScore, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT user_id, week, points
		FROM snapshot_scores
		WHERE snapshot_id = $1
		ORDER BY user_id ASC, week ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.ParticipantScore
	for rows.Next() {
		var s domain.ParticipantScore
		if err := rows.Scan(&s.UserID, &s.Week, &s.Points); err != nil {
			return nil, fmt.Errorf("scan snapshot score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// InsertSettlementRecord adds a record. Returns ErrDuplicateKey if (contest_id, snapshot_id) exists.
func (t *pgTx) InsertSettlementRecord(ctx context.Context, r *domain.SettlementRecord) error {
	standings, err := json.Marshal(r.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO settlement_records (
			id, contest_id, snapshot_id, snapshot_hash, computed_at, standings, results_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.ContestID, r.SnapshotID, r.SnapshotHash, r.ComputedAt, standings, r.ResultsHash)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement record: %w", err)
	}
	return nil
}

// GetSettlementRecord returns the record bound to (contest_id, snapshot_id).
func (t *pgTx) GetSettlementRecord(ctx context.Context, contestID, snapshotID string) (*domain.SettlementRecord, error) {
	var r domain.SettlementRecord
	var standings []byte
	err := t.tx.QueryRow(ctx, `
		SELECT id, contest_id, snapshot_id, snapshot_hash, computed_at, standings, results_hash
		FROM settlement_records
		WHERE contest_id = $1 AND snapshot_id = $2
	`, contestID, snapshotID).Scan(
		&r.ID, &r.ContestID, &r.SnapshotID, &r.SnapshotHash, &r.ComputedAt, &standings, &r.ResultsHash,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settlement record: %w", err)
	}
	if err := json.Unmarshal(standings, &r.Standings); err != nil {
		return nil, fmt.Errorf("decode standings: %w", err)
	}
	return &r, nil
}

// FindPayoutJob returns the job of a settlement.
func (t *pgTx) FindPayoutJob(ctx context.Context, settlementID string) (*domain.PayoutJob, error) {
	return findPayoutJob(ctx, t.tx, settlementID)
}

// InsertPayoutJob inserts a job unless one exists for the settlement.
// On insert, j.CreatedAt is set from the database.
func (t *pgTx) InsertPayoutJob(ctx context.Context, j *domain.PayoutJob) (bool, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payout_jobs (id, settlement_id, contest_id, status, total_payouts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (settlement_id) DO NOTHING
		RETURNING created_at
	`, j.ID, j.SettlementID, j.ContestID, j.Status, j.TotalPayouts).Scan(&j.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert payout job: %w", err)
	}
	return true, nil
}

// InsertPayoutTransfers adds all transfers in one batch. Any failure aborts the batch
// and, through the caller's transaction, the job insert with it.
func (t *pgTx) InsertPayoutTransfers(ctx context.Context, transfers []*domain.PayoutTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tr := range transfers {
		batch.Queue(`
			INSERT INTO payout_transfers (
				id, payout_job_id, contest_id, user_id, amount_cents, status,
				attempt_count, max_attempts, idempotency_key
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, tr.ID, tr.PayoutJobID, tr.ContestID, tr.UserID, tr.AmountCents, string(tr.Status),
			tr.AttemptCount, tr.MaxAttempts, tr.IdempotencyKey)
	}

	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()

	for range transfers {
		if _, err := results.Exec(); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert payout transfer: %w", err)
		}
	}
	return nil
}

// ClaimTransfer moves a pending or retryable transfer to processing and increments
// attempt_count in a single conditional UPDATE. Concurrent claimers block on the row
// lock and then see a non-claimable status, so exactly one wins.
func (t *pgTx) ClaimTransfer(ctx context.Context, transferID string) (*domain.PayoutTransfer, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE payout_transfers
		SET status = 'processing',
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'retryable')
		RETURNING `+transferColumns, transferID)

	tr, err := scanTransfer(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("claim transfer: %w", err)
	}
	return tr, nil
}

// FinishTransfer records the outcome of an attempt on a processing transfer.
func (t *pgTx) FinishTransfer(ctx context.Context, o storage.TransferOutcome) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payout_transfers
		SET status = $2,
		    provider_transfer_id = COALESCE($3, provider_transfer_id),
		    failure_reason = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, o.TransferID, string(o.Status), o.ProviderTransferID, o.FailureReason)
	if err != nil {
		return fmt.Errorf("finish transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertLedgerEntry appends an entry unless its idempotency_key exists.
// On insert, e.Seq and e.CreatedAt are set from the database.
func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) (bool, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			id, entry_type, direction, amount_cents, idempotency_key, reference
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING seq, created_at
	`, e.ID, e.EntryType, string(e.Direction), e.AmountCents, e.IdempotencyKey, e.Reference).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return true, nil
}
