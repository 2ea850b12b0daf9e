// Package outbox consumes lifecycle outbox events and triggers settlement at
// most once per contest.
package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/observability"
	"contest-settlement/internal/storage"
)

// DefaultBatchSize is the number of pending events read per page.
const DefaultBatchSize = 100

// Skip reasons reported in logs and metrics.
const (
	skipNotCompleted    = "not_completed"
	skipAlreadyConsumed = "already_consumed"
	skipContestMissing  = "contest_missing"
)

// Handler runs inside the event's transaction after the consumption marker was
// inserted. Returning an error rolls back the marker with everything else.
type Handler func(ctx context.Context, tx storage.Tx, event *domain.OutboxEvent, contest *domain.Contest) error

// Result summarizes one pass.
type Result struct {
	Processed int // every event examined
	Settled   int // events whose handler ran and committed
	Failed    int // events rolled back by an error; retried next pass
}

// Options configures a Consumer.
type Options struct {
	BatchSize int
	Logger    *zap.Logger
}

// Consumer polls contest_completed events.
type Consumer struct {
	db        storage.DB
	handler   Handler
	batchSize int
	log       *zap.Logger
}

// NewConsumer creates a new Consumer.
func NewConsumer(db storage.DB, handler Handler, opts Options) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Consumer{
		db:        db,
		handler:   handler,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
	}
}

// ConsumeOutbox runs one pass with a Consumer built from the arguments.
func ConsumeOutbox(ctx context.Context, db storage.DB, handler Handler, opts Options) (Result, error) {
	return NewConsumer(db, handler, opts).ConsumeOutbox(ctx)
}

// ConsumeOutbox examines every pending event, each in its own transaction.
// Events are read in pages of batchSize ordered by (created_at, id); the next
// page starts after the last event examined, so events that keep failing do
// not hide newer ones. A failing event is logged and left for the next pass;
// the returned error is only set when a page could not be read or ctx ended.
func (c *Consumer) ConsumeOutbox(ctx context.Context) (Result, error) {
	var (
		result Result
		after  storage.EventCursor
	)

	for {
		events, err := c.db.ListUnconsumedEvents(ctx, domain.EventContestCompleted, after, c.batchSize)
		if err != nil {
			return result, fmt.Errorf("list outbox events: %w", err)
		}

		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			c.handleEvent(ctx, event, &result)
		}

		if len(events) < c.batchSize {
			return result, nil
		}
		after = storage.CursorAfter(events[len(events)-1])
	}
}

func (c *Consumer) handleEvent(ctx context.Context, event *domain.OutboxEvent, result *Result) {
	result.Processed++
	outcome, err := c.consumeEvent(ctx, event)
	if err != nil {
		result.Failed++
		observability.RecordOutboxEvent("error")
		c.log.Error("outbox event failed",
			zap.String("event_id", event.ID),
			zap.String("contest_id", event.ContestID),
			zap.Error(err))
		return
	}

	observability.RecordOutboxEvent(outcome)
	if outcome == "settled" {
		result.Settled++
		c.log.Info("contest settlement triggered",
			zap.String("event_id", event.ID),
			zap.String("contest_id", event.ContestID))
		return
	}
	c.log.Debug("outbox event skipped",
		zap.String("event_id", event.ID),
		zap.String("contest_id", event.ContestID),
		zap.String("reason", outcome))
}

func (c *Consumer) consumeEvent(ctx context.Context, event *domain.OutboxEvent) (string, error) {
	outcome := ""
	err := c.db.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		contest, err := tx.LockContest(ctx, event.ContestID)
		if errors.Is(err, storage.ErrNotFound) {
			outcome = skipContestMissing
			return nil
		}
		if err != nil {
			return err
		}

		if contest.Status != domain.ContestStatusCompleted {
			outcome = skipNotCompleted
			return nil
		}

		inserted, err := tx.InsertConsumptionMarker(ctx, &domain.SettlementConsumptionMarker{
			ContestID: contest.ID,
			EventID:   event.ID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = skipAlreadyConsumed
			return nil
		}

		if err := c.handler(ctx, tx, event, contest); err != nil {
			return err
		}
		outcome = "settled"
		return nil
	})
	return outcome, err
}
