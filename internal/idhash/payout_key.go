package idhash

import "fmt"

// PayoutKeyPrefix prefixes every transfer idempotency key.
const PayoutKeyPrefix = "payout:"

// PayoutIdempotencyKey returns the provider idempotency key of a transfer.
// Formula: "payout:" + transfer_id. It depends only on the transfer's identity,
// so every retry of the same transfer sends the same key.
func PayoutIdempotencyKey(transferID string) string {
	return PayoutKeyPrefix + transferID
}

// LedgerIdempotencyKey returns the ledger key for one execution attempt of a transfer.
// Formula: <transfer idempotency key>:attempt:<n>
func LedgerIdempotencyKey(transferKey string, attempt int) string {
	return fmt.Sprintf("%s:attempt:%d", transferKey, attempt)
}
