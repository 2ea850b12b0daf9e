package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// Strategy computes final standings for a contest from one immutable snapshot.
// Implementations must be deterministic: the same snapshot always yields the
// same standings in the same order.
type Strategy interface {
	ComputeStandings(ctx context.Context, scores storage.ScoreReader, contestID, snapshotID string) ([]domain.Standing, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, scores storage.ScoreReader, contestID, snapshotID string) ([]domain.Standing, error)

// ComputeStandings calls f.
func (f StrategyFunc) ComputeStandings(ctx context.Context, scores storage.ScoreReader, contestID, snapshotID string) ([]domain.Standing, error) {
	return f(ctx, scores, contestID, snapshotID)
}

// ErrDuplicateStrategy is returned when a key is registered twice.
var ErrDuplicateStrategy = errors.New("settlement strategy already registered")

// UnknownStrategyError is returned when no strategy is registered under Key.
type UnknownStrategyError struct {
	Key string
}

func (e *UnknownStrategyError) Error() string {
	return "Unknown settlement strategy: " + e.Key
}

// Registry maps settlement_strategy_key to a Strategy. It is filled at startup
// and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns a Registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(StrategyTotalPoints, TotalPoints())
	r.MustRegister(StrategyBestSingleScore, BestSingleScore())
	return r
}

// Register adds a strategy under key.
func (r *Registry) Register(key string, s Strategy) error {
	if key == "" || s == nil {
		return fmt.Errorf("register settlement strategy %q: %w", key, storage.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, key)
	}
	r.strategies[key] = s
	return nil
}

// MustRegister is like Register but panics on error. For startup wiring only.
func (r *Registry) MustRegister(key string, s Strategy) {
	if err := r.Register(key, s); err != nil {
		panic(err)
	}
}

// Get returns the strategy registered under key or *UnknownStrategyError.
func (r *Registry) Get(key string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[key]
	if !ok {
		return nil, &UnknownStrategyError{Key: key}
	}
	return s, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
