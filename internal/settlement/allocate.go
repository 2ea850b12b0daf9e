package settlement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// Allocate converts ranked standings into winners.
//
// Each tier receives floor(prizePool * share) cents. Participants tied on a rank
// occupy consecutive places and split the sum of those places' tier amounts
// evenly; leftover cents of the split go one each to the lowest user_ids of the
// tie. Winners whose amount is zero are dropped. standings must already be ranked
// (see RankStandings).
func Allocate(prizePoolCents int64, tiers []domain.PayoutTier, standings []domain.Standing) ([]domain.Winner, error) {
	if prizePoolCents < 0 {
		return nil, fmt.Errorf("negative prize pool %d: %w", prizePoolCents, storage.ErrInvalidInput)
	}

	placeAmounts, err := tierAmounts(prizePoolCents, tiers)
	if err != nil {
		return nil, err
	}

	var winners []domain.Winner
	for start := 0; start < len(standings); {
		end := start + 1
		for end < len(standings) && standings[end].Rank == standings[start].Rank {
			end++
		}

		// Places are 1-based: the group holds places start+1 .. end.
		var pooled int64
		for place := start + 1; place <= end; place++ {
			pooled += placeAmounts[place]
		}

		if pooled > 0 {
			group := make([]string, 0, end-start)
			for _, s := range standings[start:end] {
				group = append(group, s.UserID)
			}
			sort.Strings(group)

			n := int64(len(group))
			each := pooled / n
			remainder := pooled % n
			for i, userID := range group {
				amount := each
				if int64(i) < remainder {
					amount++
				}
				if amount > 0 {
					winners = append(winners, domain.Winner{UserID: userID, AmountCents: amount})
				}
			}
		}
		start = end
	}

	return winners, nil
}

// tierAmounts maps each place to its whole-cent tier amount.
func tierAmounts(prizePoolCents int64, tiers []domain.PayoutTier) (map[int]int64, error) {
	pool := decimal.NewFromInt(prizePoolCents)
	amounts := make(map[int]int64, len(tiers))
	total := decimal.Zero

	for _, tier := range tiers {
		if tier.Rank < 1 {
			return nil, fmt.Errorf("payout tier rank %d: %w", tier.Rank, storage.ErrInvalidInput)
		}
		if tier.Share.IsNegative() {
			return nil, fmt.Errorf("payout tier %d has negative share: %w", tier.Rank, storage.ErrInvalidInput)
		}
		if _, dup := amounts[tier.Rank]; dup {
			return nil, fmt.Errorf("payout tier %d defined twice: %w", tier.Rank, storage.ErrInvalidInput)
		}

		total = total.Add(tier.Share)
		amounts[tier.Rank] = pool.Mul(tier.Share).Floor().IntPart()
	}

	if total.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("payout shares sum to %s: %w", total.String(), storage.ErrInvalidInput)
	}
	return amounts, nil
}
