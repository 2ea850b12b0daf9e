package settlement

import (
	"context"
	"fmt"
	"sort"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/storage"
)

// Built-in strategy keys.
const (
	StrategyTotalPoints     = "total_points"
	StrategyBestSingleScore = "best_single_score"
)

// TotalPoints ranks participants by the sum of their weekly points.
func TotalPoints() Strategy {
	return aggregateStrategy(func(acc, points float64, first bool) float64 {
		if first {
			return points
		}
		return acc + points
	})
}

// BestSingleScore ranks participants by their highest single-week score.
func BestSingleScore() Strategy {
	return aggregateStrategy(func(acc, points float64, first bool) float64 {
		if first || points > acc {
			return points
		}
		return acc
	})
}

// aggregateStrategy folds each user's score rows, which the store returns ordered
// by (user_id, week), then ranks the totals.
func aggregateStrategy(fold func(acc, points float64, first bool) float64) Strategy {
	return StrategyFunc(func(ctx context.Context, scores storage.ScoreReader, _ string, snapshotID string) ([]domain.Standing, error) {
		rows, err := scores.ListParticipantScores(ctx, snapshotID)
		if err != nil {
			return nil, fmt.Errorf("list participant scores: %w", err)
		}

		var standings []domain.Standing
		for _, row := range rows {
			n := len(standings)
			if n > 0 && standings[n-1].UserID == row.UserID {
				standings[n-1].TotalScore = fold(standings[n-1].TotalScore, row.Points, false)
				continue
			}
			standings = append(standings, domain.Standing{
				UserID:     row.UserID,
				TotalScore: fold(0, row.Points, true),
			})
		}

		RankStandings(standings)
		return standings, nil
	})
}

// RankStandings sorts standings by score descending, then user_id ascending, and
// assigns competition ranks: equal scores share a rank and the next rank skips
// (1, 1, 3).
func RankStandings(standings []domain.Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].TotalScore != standings[j].TotalScore {
			return standings[i].TotalScore > standings[j].TotalScore
		}
		return standings[i].UserID < standings[j].UserID
	})

	for i := range standings {
		if i > 0 && standings[i].TotalScore == standings[i-1].TotalScore {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}
}
