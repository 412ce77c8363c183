package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySeverityConfidenceTiers(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		confidence float64
		expected   Severity
	}{
		{"just below critical boundary", 0.84, SeverityHigh},
		{"critical boundary inclusive", 0.85, SeverityCritical},
		{"well above critical", 0.99, SeverityCritical},
		{"just below high boundary", 0.74, SeverityMedium},
		{"high boundary inclusive", 0.75, SeverityHigh},
		{"medium boundary inclusive", 0.50, SeverityMedium},
		{"just below medium boundary", 0.49, SeverityLow},
		{"at noise floor", 0.40, SeverityLow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := ClassifySeverity("severe_pothole", tc.confidence, 1.0)
			assert.Equal(t, tc.expected, c.Severity)
		})
	}
}

func TestClassifySeverityTierIgnoresClassAndArea(t *testing.T) {
	t.Parallel()

	// The emitted tier depends on confidence alone; class and area only feed
	// the diagnostic score.
	a := ClassifySeverity("minor_pothole", 0.90, 0.5)
	b := ClassifySeverity("severe_pothole", 0.90, 50.0)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, SeverityCritical, b.Severity)
	assert.Less(t, a.Score, b.Score)
}

func TestClassifySeverityDiagnosticScore(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		class      string
		confidence float64
		area       float64
		expected   float64
	}{
		{"minor small low", "minor_pothole", 0.45, 1.0, 1 * 1.0 * 1.0},
		{"medium class medium-large area", "medium_pothole", 0.60, 6.0, 2 * 1.1 * 2.0},
		{"severe large area high conf", "severe_pothole", 0.80, 15.0, 3 * 1.2 * 3.0},
		{"severe very large critical", "severe_pothole", 0.90, 25.0, 3 * 1.5 * 4.0},
		{"unknown class defaults to base 2", "sinkhole", 0.90, 1.0, 2 * 1.0 * 4.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := ClassifySeverity(tc.class, tc.confidence, tc.area)
			assert.InDelta(t, tc.expected, c.Score, 1e-9)
		})
	}
}

func TestClassifyRejectsBelowNoiseFloor(t *testing.T) {
	t.Parallel()

	d := &Detection{Class: "severe_pothole", Confidence: 0.39}
	_, ok := Classify(d)
	assert.False(t, ok)

	d.Confidence = 0.40
	c, ok := Classify(d)
	assert.True(t, ok)
	assert.Equal(t, SeverityLow, c.Severity)
	assert.Equal(t, SeverityLow, d.Severity)
}

func TestClassifyAtConfiguredFloor(t *testing.T) {
	t.Parallel()

	d := &Detection{Class: "severe_pothole", Confidence: 0.6}
	_, ok := ClassifyAt(d, 0.9)
	assert.False(t, ok, "configured floor overrides the default")

	d.Confidence = 0.92
	c, ok := ClassifyAt(d, 0.9)
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, c.Severity)

	// A floor of zero falls back to the default noise floor.
	d.Confidence = 0.39
	_, ok = ClassifyAt(d, 0)
	assert.False(t, ok)
}

func TestBoundingBoxArea(t *testing.T) {
	t.Parallel()

	b := BoundingBox{X1: 10, Y1: 10, X2: 30, Y2: 20}
	assert.InDelta(t, 200.0, b.Area(), 1e-9)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	s := NewSummary()
	s.Add(&Detection{Severity: SeverityCritical})
	s.Add(&Detection{Severity: SeverityHigh})
	s.Add(&Detection{Severity: SeverityHigh})
	s.Add(&Detection{Severity: SeverityLow})

	assert.Equal(t, 3, s.Severe())
	assert.Equal(t, 4, s.Total())
	assert.Equal(t, 0, s[SeverityMedium])
}
