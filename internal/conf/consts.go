package conf

import "time"

const (
	// SystemReporter is the reporter identity recorded on automatically created incidents.
	SystemReporter = "ai_system"

	// DefaultDedupRadiusMeters is the search radius for duplicate candidates.
	DefaultDedupRadiusMeters = 25.0

	// DefaultConfidenceFloor is the noise floor below which detections are discarded.
	DefaultConfidenceFloor = 0.4

	// DefaultGeocodingTimeout bounds a reverse geocoding call before the static
	// fallback table is used instead.
	DefaultGeocodingTimeout = 10 * time.Second

	// MaxImageDimension caps the longer side of a preprocessed image.
	MaxImageDimension = 1024
)
