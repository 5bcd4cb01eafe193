package arena

import "math"

// DefaultK is the rating adjustment factor.
const DefaultK = 32

// ComputeOutcome returns the new winner and loser ratings after one round.
// Ratings are not clamped and may go negative at extreme inputs.
func ComputeOutcome(winnerRating, loserRating, k float64) (newWinner, newLoser int) {
	if k <= 0 {
		k = DefaultK
	}
	expected := 1 / (1 + math.Pow(10, (loserRating-winnerRating)/400))
	gain := k * (1 - expected)
	return int(math.Round(winnerRating + gain)), int(math.Round(loserRating - gain))
}

// DefaultRating is assigned to new personas.
const DefaultRating = 1200
