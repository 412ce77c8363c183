// Package priority ranks open incident records for repair scheduling.
// Scores combine the severity tier with the detection confidence so that
// two records in the same tier are still ordered deterministically.
package priority

import (
	"sort"

	"github.com/roadwatch/roadwatch-go/internal/detection"
)

// Level buckets a priority score for display.
type Level string

const (
	LevelUrgent Level = "urgent"
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

var severityBase = map[detection.Severity]float64{
	detection.SeverityCritical: 100,
	detection.SeverityHigh:     75,
	detection.SeverityMedium:   50,
	detection.SeverityLow:      25,
}

// Score computes the priority score from a severity tier and a confidence
// expressed as a percentage (0..100). Unknown severities score as low.
func Score(severity detection.Severity, confidencePct float64) float64 {
	base, ok := severityBase[severity]
	if !ok {
		base = severityBase[detection.SeverityLow]
	}
	return base + confidencePct*0.2
}

// LevelFor buckets a score into a level.
func LevelFor(score float64) Level {
	switch {
	case score >= 90:
		return LevelUrgent
	case score >= 70:
		return LevelHigh
	case score >= 50:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Rankable is the slice of record attributes the ranker needs.
type Rankable struct {
	ID            uint
	Reference     string
	Severity      detection.Severity
	ConfidencePct float64
}

// Ranked is a Rankable annotated with its computed score, level and 1-based
// position within the ranking.
type Ranked struct {
	Rankable
	Score float64
	Level Level
	Rank  int
}

// Rank scores every record and orders them from most to least urgent.
// The sort is stable so that records with equal scores keep their input
// order, which for store-backed callers means creation order.
func Rank(records []Rankable) []Ranked {
	ranked := make([]Ranked, 0, len(records))
	for _, r := range records {
		score := Score(r.Severity, r.ConfidencePct)
		ranked = append(ranked, Ranked{
			Rankable: r,
			Score:    score,
			Level:    LevelFor(score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
