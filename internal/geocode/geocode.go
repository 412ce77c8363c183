// Package geocode resolves coordinates to the state, district and mandal
// region tags that scope jurisdiction filtering. It queries a Nominatim-style
// reverse geocoding service and degrades to a coarse coordinate table when
// the service is unreachable.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/httpclient"
	"github.com/roadwatch/roadwatch-go/internal/logging"
)

// Region holds the resolved administrative names for a coordinate.
type Region struct {
	State    string `json:"state"`
	District string `json:"district"`
	Mandal   string `json:"mandal"`
}

// Resolver is the lookup interface the pipeline depends on.
type Resolver interface {
	Reverse(ctx context.Context, lat, lng float64) Region
}

// Client resolves regions against a Nominatim-compatible endpoint.
type Client struct {
	endpoint   string
	httpClient *httpclient.Client
	logger     *slog.Logger
}

// NewClient builds a client from the geocoding settings.
func NewClient(settings *conf.Settings) *Client {
	timeout := settings.Geocoding.Timeout
	if timeout <= 0 {
		timeout = conf.DefaultGeocodingTimeout
	}
	return &Client{
		endpoint: settings.Geocoding.Endpoint,
		httpClient: httpclient.New(&httpclient.Config{
			DefaultTimeout: timeout,
			UserAgent:      settings.Geocoding.UserAgent,
		}),
		logger: logging.ForService("geocode"),
	}
}

// nominatimResponse is the subset of the reverse geocoding payload we read.
// In India the mandal (tehsil/taluk) usually surfaces as the OSM county.
type nominatimResponse struct {
	Address struct {
		County        string `json:"county"`
		Municipality  string `json:"municipality"`
		Town          string `json:"town"`
		Suburb        string `json:"suburb"`
		City          string `json:"city"`
		Village       string `json:"village"`
		StateDistrict string `json:"state_district"`
		District      string `json:"district"`
		State         string `json:"state"`
	} `json:"address"`
}

// Reverse resolves (lat, lng) to region names. It never fails: any lookup
// error falls back to the static coordinate table so that report ingestion
// is not blocked by geocoding outages.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) Region {
	region, err := c.lookup(ctx, lat, lng)
	if err != nil {
		c.logger.Warn("reverse geocoding failed, using fallback table",
			"lat", lat, "lng", lng, "error", err)
		return Fallback(lat, lng)
	}
	return region
}

func (c *Client) lookup(ctx context.Context, lat, lng float64) (Region, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lng))
	query.Set("accept-language", "en")

	resp, err := c.httpClient.Get(ctx, c.endpoint+"?"+query.Encode())
	if err != nil {
		return Region{}, errors.New(err).
			Component("geocode").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Region{}, errors.Newf("reverse geocoding returned status %d", resp.StatusCode).
			Component("geocode").
			Category(errors.CategoryGeocoding).
			Build()
	}

	var payload nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Region{}, errors.New(err).
			Component("geocode").
			Category(errors.CategoryGeocoding).
			Build()
	}

	addr := payload.Address
	region := Region{
		State:    firstNonEmpty(addr.State, "Unknown"),
		District: firstNonEmpty(addr.StateDistrict, addr.District, "Unknown"),
		Mandal: firstNonEmpty(addr.County, addr.Municipality, addr.Town,
			addr.Suburb, addr.City, addr.Village, "Unknown"),
	}
	return region, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fallbackRegion is one entry in the coarse coordinate table.
type fallbackRegion struct {
	latMin, latMax float64
	lngMin, lngMax float64
	region         Region
}

var fallbackTable = []fallbackRegion{
	{12.8, 13.2, 77.4, 77.8, Region{State: "Karnataka", District: "Bengaluru Urban", Mandal: "Bengaluru"}},
	{28.5, 28.8, 77.0, 77.3, Region{State: "Delhi", District: "Central Delhi", Mandal: "Connaught Place"}},
	{12.8, 13.3, 79.8, 80.3, Region{State: "Tamil Nadu", District: "Chennai", Mandal: "Egmore"}},
}

// Fallback maps a coordinate to its region via the static table, synthesizing
// placeholder names for coordinates outside every known box.
func Fallback(lat, lng float64) Region {
	for _, f := range fallbackTable {
		if lat >= f.latMin && lat <= f.latMax && lng >= f.lngMin && lng <= f.lngMax {
			return f.region
		}
	}
	return Region{
		State:    fmt.Sprintf("State_%d", int(lat)),
		District: fmt.Sprintf("District_%d_%d", int(lat), int(lng)),
		Mandal:   fmt.Sprintf("Mandal_%d_%d", int(lat), int(lng)),
	}
}
