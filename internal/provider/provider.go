// Package provider defines the payment provider boundary: transfer requests,
// classified results, and the failure classification policy.
package provider

import (
	"time"
)

// Classification tells the execution engine whether a failed transfer may be retried.
type Classification string

const (
	Retryable Classification = "retryable"
	Permanent Classification = "permanent"
)

// Failure reasons recorded on transfers.
const (
	ReasonTimeout            = "stripe_timeout"
	ReasonConnectionError    = "stripe_connection_error"
	ReasonAPIError           = "stripe_api_error"
	ReasonRateLimited        = "stripe_rate_limited"
	ReasonInvalidRequest     = "stripe_invalid_request"
	ReasonInvalidDestination = "stripe_invalid_destination"
	ReasonPermissionError    = "stripe_permission_error"
	ReasonUnknownError       = "stripe_unknown_error"
)

// TransferRequest moves AmountCents to the Destination account.
// IdempotencyKey is the transfer's fixed key; the provider collapses duplicates on it.
type TransferRequest struct {
	AmountCents    int64
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
	Timeout        time.Duration
}

// TransferResult is the classified outcome of one provider call.
type TransferResult struct {
	Success        bool
	TransferID     string
	Classification Classification
	Reason         string
}

// Succeeded builds a successful result.
func Succeeded(transferID string) TransferResult {
	return TransferResult{Success: true, TransferID: transferID}
}

// Failed builds a failed result.
func Failed(c Classification, reason string) TransferResult {
	return TransferResult{Classification: c, Reason: reason}
}
