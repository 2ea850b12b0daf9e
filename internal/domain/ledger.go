package domain

import "time"

// Direction is the accounting side of a ledger entry.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Ledger entry types written by the payout execution engine.
const (
	LedgerPayoutCompleted      = "PAYOUT_COMPLETED"
	LedgerPayoutRetryable      = "PAYOUT_RETRYABLE"
	LedgerPayoutFailedTerminal = "PAYOUT_FAILED_TERMINAL"
)

// LedgerEntry is an append-only record of a money-relevant event.
type LedgerEntry struct {
	ID             string
	Seq            int64 // assigned by the store, monotonically increasing
	EntryType      string
	Direction      Direction
	AmountCents    int64
	IdempotencyKey string
	Reference      string // transfer id
	CreatedAt      time.Time
}
