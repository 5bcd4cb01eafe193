package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeOutcome(t *testing.T) {
	tests := []struct {
		name                 string
		winner, loser, k     float64
		wantWinner, wantLose int
	}{
		{"equal ratings", 1200, 1200, 32, 1216, 1184},
		{"favourite wins", 1600, 1200, 32, 1603, 1197},
		{"underdog wins", 1200, 1600, 32, 1229, 1571},
		{"zero k uses default", 1200, 1200, 0, 1216, 1184},
		{"custom k", 1500, 1500, 16, 1508, 1492},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, l := ComputeOutcome(tt.winner, tt.loser, tt.k)
			assert.Equal(t, tt.wantWinner, w)
			assert.Equal(t, tt.wantLose, l)
		})
	}
}

func TestComputeOutcomeRoundsHalfAwayFromZero(t *testing.T) {
	w, l := ComputeOutcome(0, 0, 1)
	assert.Equal(t, 1, w)
	assert.Equal(t, -1, l)
}

func TestComputeOutcomeDoesNotClamp(t *testing.T) {
	_, l := ComputeOutcome(10, 5, 32)
	assert.Less(t, l, 0)
}

func TestComputeOutcomeDeltaSigns(t *testing.T) {
	ratings := []float64{0, 400, 800, 1200, 1500, 2000, 2800}
	for _, a := range ratings {
		for _, b := range ratings {
			w, l := ComputeOutcome(a, b, 32)
			assert.GreaterOrEqual(t, float64(w)-a, 0.0, "winner %v vs %v", a, b)
			assert.LessOrEqual(t, float64(l)-b, 0.0, "loser %v vs %v", b, a)
		}
	}
}

func TestComputeOutcomeAsymmetric(t *testing.T) {
	w1, _ := ComputeOutcome(1600, 1200, 32)
	w2, _ := ComputeOutcome(1200, 1600, 32)
	assert.NotEqual(t, w1-1600, w2-1200)
}
