// Package detection defines the detection data model and the severity
// classifier applied to raw model output.
package detection

import "fmt"

// Severity is the primary urgency label on a detection and on an incident record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severity tiers.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// BoundingBox is a normalized box in percent coordinates, 0..100 on both axes.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area returns the box area as percent of image area (width% * height%).
func (b BoundingBox) Area() float64 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Detection represents a single model detection on one image or frame.
// Detections are ephemeral: they are consumed by the ingestion pipeline to
// build incident records and never persisted directly.
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
	Severity   Severity    `json:"severity"`

	// Frame metadata, only set on video frame detections.
	FrameNumber    int     `json:"frame_number,omitempty"`
	FrameTimestamp float64 `json:"frame_timestamp,omitempty"`
	DetectionID    string  `json:"detection_id,omitempty"`
}

// Summary is a severity-tier histogram over a set of detections.
type Summary map[Severity]int

// NewSummary returns a summary with all tiers present at zero.
func NewSummary() Summary {
	return Summary{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
	}
}

// Add counts one detection into the histogram.
func (s Summary) Add(d *Detection) {
	s[d.Severity]++
}

// Severe returns the number of critical plus high detections.
func (s Summary) Severe() int {
	return s[SeverityCritical] + s[SeverityHigh]
}

// Total returns the number of detections counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Describe builds the auto-generated description for a record created from d.
func Describe(d *Detection) string {
	return fmt.Sprintf("Auto-detected %s pothole (%.1f%% confidence)", d.Severity, d.Confidence*100)
}
