package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roadwatch/roadwatch-go/internal/detection"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		severity   detection.Severity
		confidence float64
		want       float64
	}{
		{"critical full confidence", detection.SeverityCritical, 100, 120},
		{"critical mid confidence", detection.SeverityCritical, 90, 118},
		{"high", detection.SeverityHigh, 80, 91},
		{"medium", detection.SeverityMedium, 60, 62},
		{"low", detection.SeverityLow, 50, 35},
		{"unknown severity scores as low", detection.Severity("weird"), 50, 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Score(tt.severity, tt.confidence), 1e-9)
		})
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelUrgent, LevelFor(90))
	assert.Equal(t, LevelHigh, LevelFor(89.9))
	assert.Equal(t, LevelHigh, LevelFor(70))
	assert.Equal(t, LevelMedium, LevelFor(69.9))
	assert.Equal(t, LevelMedium, LevelFor(50))
	assert.Equal(t, LevelLow, LevelFor(49.9))
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	t.Parallel()

	ranked := Rank([]Rankable{
		{ID: 1, Severity: detection.SeverityLow, ConfidencePct: 60},
		{ID: 2, Severity: detection.SeverityCritical, ConfidencePct: 92},
		{ID: 3, Severity: detection.SeverityMedium, ConfidencePct: 75},
	})

	assert.Equal(t, uint(2), ranked[0].ID)
	assert.Equal(t, uint(3), ranked[1].ID)
	assert.Equal(t, uint(1), ranked[2].ID)
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.Equal(t, LevelUrgent, ranked[0].Level)
}

func TestRankIsStableForEqualScores(t *testing.T) {
	t.Parallel()

	ranked := Rank([]Rankable{
		{ID: 10, Severity: detection.SeverityHigh, ConfidencePct: 80},
		{ID: 11, Severity: detection.SeverityHigh, ConfidencePct: 80},
		{ID: 12, Severity: detection.SeverityHigh, ConfidencePct: 80},
	})

	assert.Equal(t, []uint{10, 11, 12}, []uint{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}
