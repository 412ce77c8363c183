package imageproc

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/roadwatch/roadwatch-go/internal/errors"
)

// GPS is a coordinate pair extracted from image metadata.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are inside the WGS84 range and not
// the (0, 0) null island placeholder some devices write.
func (g GPS) Valid() bool {
	if g.Latitude == 0 && g.Longitude == 0 {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180
}

// ExtractGPS reads the EXIF GPS tags from an original (pre-processing) image.
// Re-encoded images lose their EXIF block, so callers must pass the raw
// upload bytes. A missing GPS block is an error the caller is expected to
// treat as "no location", not as a failure.
func ExtractGPS(data []byte) (GPS, error) {
	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return GPS{}, errors.New(err).
			Component("imageproc").
			Category(errors.CategoryValidation).
			Context("phase", "exif").
			Build()
	}

	lat, lng, err := meta.LatLong()
	if err != nil {
		return GPS{}, errors.New(err).
			Component("imageproc").
			Category(errors.CategoryValidation).
			Context("phase", "exif_gps").
			Build()
	}

	gps := GPS{Latitude: lat, Longitude: lng}
	if !gps.Valid() {
		return GPS{}, errors.Newf("image carries out-of-range GPS coordinates (%f, %f)", lat, lng).
			Component("imageproc").
			Category(errors.CategoryValidation).
			Build()
	}
	return gps, nil
}
