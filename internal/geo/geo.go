// Package geo provides the great-circle distance math and the proximity
// matching used to spot duplicate reports of the same road defect.
package geo

import (
	"math"
	"sort"

	"github.com/roadwatch/roadwatch-go/internal/conf"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance in meters between two
// WGS84 coordinates.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Candidate is an existing record considered for proximity matching.
// Callers are expected to pre-filter records without coordinates and records
// already marked fixed.
type Candidate struct {
	ID        uint
	Reference string
	Latitude  float64
	Longitude float64
}

// Match is a candidate that fell within the dedup radius.
type Match struct {
	Candidate
	DistanceM float64
}

// Matcher finds existing records close enough to a new report to count as
// the same defect.
type Matcher struct {
	radiusM float64
}

// NewMatcher returns a matcher with the given dedup radius in meters.
// A non-positive radius falls back to the default.
func NewMatcher(radiusM float64) *Matcher {
	if radiusM <= 0 {
		radiusM = conf.DefaultDedupRadiusMeters
	}
	return &Matcher{radiusM: radiusM}
}

// Radius returns the configured dedup radius in meters.
func (m *Matcher) Radius() float64 { return m.radiusM }

// Nearby returns every candidate within the radius of (lat, lng), nearest
// first. Distances are rounded to a tenth of a meter; inclusion is decided
// on the exact distance before rounding.
func (m *Matcher) Nearby(lat, lng float64, candidates []Candidate) []Match {
	var matches []Match
	for _, c := range candidates {
		d := HaversineMeters(lat, lng, c.Latitude, c.Longitude)
		if d > m.radiusM {
			continue
		}
		matches = append(matches, Match{
			Candidate: c,
			DistanceM: math.Round(d*10) / 10,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceM < matches[j].DistanceM
	})
	return matches
}
