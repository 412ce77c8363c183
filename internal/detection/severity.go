package detection

// NoiseFloor is the confidence below which detections are discarded entirely.
const NoiseFloor = 0.4

// Confidence tier boundaries. The emitted severity tier is determined purely
// by the confidence of the detection itself, overriding the model's class
// granularity: confidence in the detection is treated as the dominant urgency
// signal.
const (
	criticalThreshold = 0.85
	highThreshold     = 0.75
	mediumThreshold   = 0.50
)

// baseSeverity maps model class labels to a base severity score 1-3.
// Unknown classes default to 2.
var baseSeverity = map[string]int{
	"minor_pothole":  1,
	"medium_pothole": 2,
	"severe_pothole": 3,
}

// Classification is the result of classifying one detection. Score is a
// diagnostic value only; the Severity tier is authoritative.
type Classification struct {
	Severity Severity
	Score    float64 // base * areaMultiplier * confidenceMultiplier, for diagnostics
}

// ClassifySeverity maps a detected class, its confidence and its normalized
// bounding-box area (percent of image area) to a severity tier.
//
// The numeric score combines a class base severity, an area multiplier and a
// confidence multiplier, but it is retained only for diagnostics: the emitted
// tier depends on confidence alone. Callers are expected to have discarded
// detections below NoiseFloor before classifying.
func ClassifySeverity(class string, confidence, area float64) Classification {
	base, ok := baseSeverity[class]
	if !ok {
		base = 2
	}

	areaMultiplier := 1.0
	switch {
	case area > 20: // very large pothole
		areaMultiplier = 1.5
	case area > 10: // large pothole
		areaMultiplier = 1.2
	case area > 5: // medium-large pothole
		areaMultiplier = 1.1
	}

	var severity Severity
	var confidenceMultiplier float64
	switch {
	case confidence >= criticalThreshold:
		severity = SeverityCritical
		confidenceMultiplier = 4.0
	case confidence >= highThreshold:
		severity = SeverityHigh
		confidenceMultiplier = 3.0
	case confidence >= mediumThreshold:
		severity = SeverityMedium
		confidenceMultiplier = 2.0
	default:
		severity = SeverityLow
		confidenceMultiplier = 1.0
	}

	return Classification{
		Severity: severity,
		Score:    float64(base) * areaMultiplier * confidenceMultiplier,
	}
}

// Classify applies the severity classifier to d in place and reports the
// diagnostic classification. Detections below NoiseFloor are rejected.
func Classify(d *Detection) (Classification, bool) {
	return ClassifyAt(d, NoiseFloor)
}

// ClassifyAt is Classify with a caller-supplied confidence floor. A floor
// of zero or below falls back to NoiseFloor.
func ClassifyAt(d *Detection, floor float64) (Classification, bool) {
	if floor <= 0 {
		floor = NoiseFloor
	}
	if d.Confidence < floor {
		return Classification{}, false
	}
	c := ClassifySeverity(d.Class, d.Confidence, d.Box.Area())
	d.Severity = c.Severity
	return c, true
}
