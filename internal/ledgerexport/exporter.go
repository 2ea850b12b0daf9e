// Package ledgerexport copies ledger entries into the analytics mirror.
package ledgerexport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/observability"
)

// DefaultBatchSize is the number of entries read and written per round trip.
const DefaultBatchSize = 1000

// DefaultLookback is how many seqs below the mirror's highest seq each run
// re-reads. Postgres hands out seq at insert time, so a transfer transaction
// that holds a provider call can commit a lower seq after higher ones were
// already exported.
const DefaultLookback int64 = 10000

// Source reads ledger entries in seq order.
type Source interface {
	ListLedgerEntriesAfter(ctx context.Context, afterSeq int64, limit int) ([]*domain.LedgerEntry, error)
}

// Mirror is the analytics copy of the ledger.
type Mirror interface {
	MaxSeq(ctx context.Context) (int64, error)
	// MirroredSeqs returns the set of seqs greater than afterSeq already copied.
	MirroredSeqs(ctx context.Context, afterSeq int64) (map[int64]struct{}, error)
	InsertBatch(ctx context.Context, entries []*domain.LedgerEntry) error
}

// Exporter copies entries missing from the mirror. Each run starts lookback
// seqs below the mirror's highest seq and skips rows the mirror already holds,
// so rows that became visible late are picked up on a later run. An entry
// committed more than lookback seqs behind the mirror's head is not recovered.
type Exporter struct {
	source    Source
	mirror    Mirror
	batchSize int
	lookback  int64
	log       *zap.Logger
}

// NewExporter creates a new Exporter.
func NewExporter(source Source, mirror Mirror, batchSize int, log *zap.Logger) *Exporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{source: source, mirror: mirror, batchSize: batchSize, lookback: DefaultLookback, log: log}
}

// WithLookback overrides DefaultLookback. Negative values are treated as zero.
func (e *Exporter) WithLookback(lookback int64) *Exporter {
	if lookback < 0 {
		lookback = 0
	}
	e.lookback = lookback
	return e
}

// Result summarizes one export run.
type Result struct {
	Exported   int   // entries inserted into the mirror
	Backfilled int   // of those, entries below the mirror's previous head
	Cursor     int64 // highest seq read from the source
}

// Export copies every entry in the lookback window and above that the mirror
// does not hold yet.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	head, err := e.mirror.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mirror cursor: %w", err)
	}

	from := head - e.lookback
	if from < 0 {
		from = 0
	}
	mirrored, err := e.mirror.MirroredSeqs(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("read mirrored seqs after %d: %w", from, err)
	}

	res := &Result{Cursor: from}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		entries, err := e.source.ListLedgerEntriesAfter(ctx, res.Cursor, e.batchSize)
		if err != nil {
			return res, fmt.Errorf("list ledger entries after %d: %w", res.Cursor, err)
		}
		if len(entries) == 0 {
			break
		}

		missing := make([]*domain.LedgerEntry, 0, len(entries))
		for _, entry := range entries {
			if _, ok := mirrored[entry.Seq]; !ok {
				missing = append(missing, entry)
			}
		}

		if len(missing) > 0 {
			if err := e.mirror.InsertBatch(ctx, missing); err != nil {
				return res, fmt.Errorf("insert ledger batch after %d: %w", res.Cursor, err)
			}
			res.Exported += len(missing)
			for _, entry := range missing {
				if entry.Seq < head {
					res.Backfilled++
				}
			}
		}
		res.Cursor = entries[len(entries)-1].Seq
		observability.RecordLedgerExport(len(missing), res.Cursor)

		if len(entries) < e.batchSize {
			break
		}
	}

	if res.Cursor < head {
		res.Cursor = head
	}
	if res.Backfilled > 0 {
		e.log.Warn("ledger entries committed behind the mirror head",
			zap.Int("backfilled", res.Backfilled),
			zap.Int64("head", head))
	}
	if res.Exported > 0 {
		e.log.Info("ledger exported", zap.Int("exported", res.Exported), zap.Int64("cursor", res.Cursor))
	}
	return res, nil
}
