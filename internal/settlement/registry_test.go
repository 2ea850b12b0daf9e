package settlement

import (
	"context"
	"errors"
	"testing"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

func TestRegistry_GetUnknown(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Get("fastest_finger")
	var unknown *UnknownStrategyError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownStrategyError, got %T", err)
	}
	if unknown.Key != "fastest_finger" {
		t.Errorf("Key mismatch: got %s, want fastest_finger", unknown.Key)
	}
	if err.Error() != "Unknown settlement strategy: fastest_finger" {
		t.Errorf("message mismatch: got %q", err.Error())
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	noop := StrategyFunc(func(context.Context, storage.ScoreReader, string, string) ([]domain.Standing, error) {
		return nil, nil
	})

	if err := r.Register("custom", noop); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("custom", noop); !errors.Is(err, ErrDuplicateStrategy) {
		t.Errorf("expected ErrDuplicateStrategy, got %v", err)
	}
	if err := r.Register("", noop); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty key, got %v", err)
	}
	if _, err := r.Get("custom"); err != nil {
		t.Errorf("Get failed: %v", err)
	}
}

func TestDefaultRegistry_Keys(t *testing.T) {
	keys := DefaultRegistry().Keys()
	want := []string{StrategyBestSingleScore, StrategyTotalPoints}

	if len(keys) != len(want) {
		t.Fatalf("keys mismatch: got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] mismatch: got %s, want %s", i, keys[i], want[i])
		}
	}
}
