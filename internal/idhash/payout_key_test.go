package idhash

import (
	"testing"
)

func TestPayoutIdempotencyKey(t *testing.T) {
	tests := []struct {
		name       string
		transferID string
		want       string
	}{
		{name: "uuid id", transferID: "2b1c6c1e-7d8e-4c59-9a51-0f1f4c1d2e3a", want: "payout:2b1c6c1e-7d8e-4c59-9a51-0f1f4c1d2e3a"},
		{name: "short id", transferID: "t1", want: "payout:t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PayoutIdempotencyKey(tt.transferID)
			if got != tt.want {
				t.Errorf("PayoutIdempotencyKey() = %s, want %s", got, tt.want)
			}

			// Same transfer must always produce the same key
			if again := PayoutIdempotencyKey(tt.transferID); again != got {
				t.Errorf("PayoutIdempotencyKey() not stable: %s != %s", again, got)
			}
		})
	}
}

func TestLedgerIdempotencyKey(t *testing.T) {
	key := PayoutIdempotencyKey("t1")

	first := LedgerIdempotencyKey(key, 1)
	second := LedgerIdempotencyKey(key, 2)

	if first != "payout:t1:attempt:1" {
		t.Errorf("LedgerIdempotencyKey() = %s", first)
	}
	if first == second {
		t.Error("Different attempts should produce different ledger keys")
	}
}
