package clickhouse

import (
	"context"
	"fmt"

	"contest-settlement/internal/domain"
)

// LedgerMirror is the append-only ClickHouse copy of the Postgres ledger.
// It is written by the ledger exporter and never read by the payout pipeline.
type LedgerMirror struct {
	conn *Conn
}

// NewLedgerMirror creates a new LedgerMirror.
func NewLedgerMirror(conn *Conn) *LedgerMirror {
	return &LedgerMirror{conn: conn}
}

// MaxSeq returns the highest exported seq, or 0 when the mirror is empty.
func (m *LedgerMirror) MaxSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	if err := m.conn.QueryRow(ctx, `SELECT max(seq) FROM ledger_entries`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return maxSeq, nil
}

// MirroredSeqs returns the seqs greater than afterSeq present in the mirror.
func (m *LedgerMirror) MirroredSeqs(ctx context.Context, afterSeq int64) (map[int64]struct{}, error) {
	rows, err := m.conn.Query(ctx, `SELECT DISTINCT seq FROM ledger_entries WHERE seq > ?`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query mirrored seqs: %w", err)
	}
	defer rows.Close()

	seqs := make(map[int64]struct{})
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan mirrored seq: %w", err)
		}
		seqs[seq] = struct{}{}
	}
	return seqs, rows.Err()
}

// InsertBatch appends entries in one native batch. Re-sent rows share seq with
// their earlier copy and collapse on merge.
func (m *LedgerMirror) InsertBatch(ctx context.Context, entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `INSERT INTO ledger_entries`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		err := batch.Append(
			e.Seq,
			e.ID,
			e.EntryType,
			string(e.Direction),
			e.AmountCents,
			e.IdempotencyKey,
			e.Reference,
			e.CreatedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append ledger entry %d: %w", e.Seq, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByEntryType returns entry counts per entry_type, collapsing re-exported rows.
func (m *LedgerMirror) CountByEntryType(ctx context.Context) (map[string]uint64, error) {
	rows, err := m.conn.Query(ctx, `
		SELECT entry_type, count() FROM ledger_entries FINAL GROUP BY entry_type
	`)
	if err != nil {
		return nil, fmt.Errorf("query entry type counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var entryType string
		var n uint64
		if err := rows.Scan(&entryType, &n); err != nil {
			return nil, fmt.Errorf("scan entry type count: %w", err)
		}
		counts[entryType] = n
	}
	return counts, rows.Err()
}
