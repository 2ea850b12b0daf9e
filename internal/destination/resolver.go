// Package destination resolves users to their connected payout accounts.
package destination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"contest-settlement/internal/storage"
)

// Error codes raised by resolvers.
var (
	ErrUserNotFound  = errors.New("USER_NOT_FOUND")
	ErrInvalidUserID = errors.New("INVALID_USER_ID")
)

const maxUserIDLen = 128

// Resolver maps a user to a payout account id. An empty id with a nil error
// means the user exists but has no connected account.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, userID string) (string, error)

// Resolve calls f.
func (f Func) Resolve(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// StoreResolver resolves through the users relation.
type StoreResolver struct {
	accounts storage.AccountReader
}

// NewStoreResolver creates a new StoreResolver.
func NewStoreResolver(accounts storage.AccountReader) *StoreResolver {
	return &StoreResolver{accounts: accounts}
}

// Resolve returns the user's payout account id.
func (r *StoreResolver) Resolve(ctx context.Context, userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}

	accountID, err := r.accounts.GetPayoutAccountID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve destination for %s: %w", userID, err)
	}
	if accountID == nil {
		return "", nil
	}
	return strings.TrimSpace(*accountID), nil
}

// ValidateUserID rejects ids that cannot name a user.
func ValidateUserID(userID string) error {
	if userID == "" || len(userID) > maxUserIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	for _, r := range userID {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
		}
	}
	return nil
}
