package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Type       string // e.g. invalid_request_error
	Code       string // e.g. account_invalid
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider api error %d: %s", e.StatusCode, e.Message)
}

// Error codes that identify a bad destination account regardless of HTTP status.
var invalidDestinationCodes = map[string]struct{}{
	"account_invalid":                        {},
	"no_account":                             {},
	"invalid_destination":                    {},
	"account_closed":                         {},
	"transfers_not_allowed":                  {},
	"insufficient_capabilities_for_transfer": {},
}

// Classify maps a provider call error to a failed TransferResult.
// Unrecognized errors are retryable so a payment is never silently dropped.
func Classify(err error) TransferResult {
	if err == nil {
		return Failed(Retryable, ReasonUnknownError)
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return Failed(Retryable, ReasonTimeout)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return Failed(Retryable, ReasonConnectionError)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	return Failed(Retryable, ReasonUnknownError)
}

func classifyAPIError(e *APIError) TransferResult {
	if _, ok := invalidDestinationCodes[e.Code]; ok {
		return Failed(Permanent, ReasonInvalidDestination)
	}

	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return Failed(Retryable, ReasonRateLimited)
	case e.StatusCode >= 500:
		return Failed(Retryable, ReasonAPIError)
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return Failed(Permanent, ReasonPermissionError)
	case e.StatusCode == http.StatusBadRequest,
		e.StatusCode == http.StatusNotFound,
		e.StatusCode == http.StatusUnprocessableEntity:
		return Failed(Permanent, ReasonInvalidRequest)
	default:
		return Failed(Retryable, ReasonUnknownError)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
