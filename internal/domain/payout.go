package domain

import "time"

// DefaultMaxAttempts is the number of provider attempts a transfer gets before it
// becomes failed_terminal.
const DefaultMaxAttempts = 3

// PayoutJobStatusPending is the status of a freshly scheduled job.
const PayoutJobStatusPending = "pending"

// PayoutJob groups the transfers of one settlement. Unique on SettlementID.
type PayoutJob struct {
	ID           string
	SettlementID string
	ContestID    string
	Status       string
	TotalPayouts int
	CreatedAt    time.Time
}

// TransferStatus is the state of a single payout transfer.
type TransferStatus string

// Transfer states. failed_terminal is absorbing.
const (
	TransferPending        TransferStatus = "pending"
	TransferProcessing     TransferStatus = "processing"
	TransferCompleted      TransferStatus = "completed"
	TransferRetryable      TransferStatus = "retryable"
	TransferFailedTerminal TransferStatus = "failed_terminal"
)

// Claimable reports whether a worker may claim a transfer in this state.
func (s TransferStatus) Claimable() bool {
	return s == TransferPending || s == TransferRetryable
}

// Terminal reports whether no further attempts will be made.
func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferFailedTerminal
}

// PayoutTransfer is one money movement owed to one user.
type PayoutTransfer struct {
	ID                 string
	PayoutJobID        string
	ContestID          string
	UserID             string
	AmountCents        int64
	Status             TransferStatus
	AttemptCount       int
	MaxAttempts        int
	ProviderTransferID *string
	IdempotencyKey     string // "payout:" + ID, never regenerated
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Failure reasons recorded by the execution engine itself (provider reasons are
// passed through from the adapter).
const (
	FailureDestinationAccountMissing = "DESTINATION_ACCOUNT_MISSING"
)
