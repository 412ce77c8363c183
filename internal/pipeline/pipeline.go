// Package pipeline orchestrates report ingestion: geotag extraction,
// preprocessing, enhancement, detection, severity scoring, proximity dedup
// and persistence, for single images, frame sequences and manual reports.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/detector"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/geo"
	"github.com/roadwatch/roadwatch-go/internal/geocode"
	"github.com/roadwatch/roadwatch-go/internal/imageproc"
	"github.com/roadwatch/roadwatch-go/internal/logging"
	"github.com/roadwatch/roadwatch-go/internal/mediastore"
	"github.com/roadwatch/roadwatch-go/internal/observability"
	"github.com/roadwatch/roadwatch-go/internal/refcode"
)

// Phase names the stage a request is in. Terminal alternates to Persisted
// are Rejected and PendingConfirmation.
type Phase string

const (
	PhaseReceived            Phase = "received"
	PhaseValidated           Phase = "validated"
	PhaseGeotagged           Phase = "geotagged"
	PhasePreprocessed        Phase = "preprocessed"
	PhaseEnhanced            Phase = "enhanced"
	PhaseDetected            Phase = "detected"
	PhaseDedupChecked        Phase = "dedup_checked"
	PhasePersisted           Phase = "persisted"
	PhaseRejected            Phase = "rejected"
	PhasePendingConfirmation Phase = "pending_confirmation"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// Pipeline wires the ingestion collaborators together. Each request runs
// synchronously; phases execute strictly in order. The dedup-check-then-
// persist sequence is not atomic, so two concurrent submissions for the
// same spot can both create records. Duplicate suppression is best effort.
type Pipeline struct {
	settings *conf.Settings
	store    datastore.Interface
	detector detector.Interface
	geocoder geocode.Resolver
	media    *mediastore.Store
	matcher  *geo.Matcher
	refs     *refcode.Generator
	metrics  *observability.Metrics
	logger   *slog.Logger
	// frames samples a video into still frames, ffmpeg in production.
	frames frameExtractor
}

// frameExtractor turns an uploaded video into an ordered frame sequence.
type frameExtractor func(ctx context.Context, data []byte, filename string) ([][]byte, error)

// New assembles a pipeline from its collaborators.
func New(settings *conf.Settings, store datastore.Interface, det detector.Interface,
	geocoder geocode.Resolver, media *mediastore.Store, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		settings: settings,
		store:    store,
		detector: det,
		geocoder: geocoder,
		media:    media,
		matcher:  geo.NewMatcher(settings.Dedup.RadiusMeters),
		refs:     refcode.NewGenerator(store.ReferenceExists),
		metrics:  metrics,
		logger:   logging.ForService("pipeline"),
	}
	p.frames = p.ffmpegExtractFrames
	return p
}

// ImageRequest is a single-photo ingestion request.
type ImageRequest struct {
	Filename string
	Data     []byte
	// Manual coordinates substitute for missing or invalid embedded GPS.
	ManualLatitude  *float64
	ManualLongitude *float64
	ForceCreate     bool
	ReporterEmail   string
}

// Candidate is an existing record surfaced by the dedup check.
type Candidate struct {
	ID            uint    `json:"id"`
	Reference     string  `json:"reference"`
	DistanceM     float64 `json:"distance_m"`
	Severity      string  `json:"severity"`
	Description   string  `json:"description"`
	ReportedAt    string  `json:"reported_at"`
	PriorityScore int     `json:"priority_score"`
	ReportCount   int     `json:"report_count"`
}

// Result is the outcome of an ingestion run. Phase is PhasePersisted on
// success, PhasePendingConfirmation when dedup found candidates.
type Result struct {
	Phase      Phase
	Detections []detection.Detection
	Summary    detection.Summary
	Candidates []Candidate
	Incidents  []datastore.Incident
	// AnnotatedURL points at the stored overlay image, when one was rendered.
	AnnotatedURL string
	Method       string
	Latitude     *float64
	Longitude    *float64
	// PersistenceDegraded flags that detections succeeded but the registry
	// write failed. The detections are still returned.
	PersistenceDegraded bool
}

// ProcessImage runs the full state machine on one photo.
func (p *Pipeline) ProcessImage(ctx context.Context, req *ImageRequest) (*Result, error) {
	p.metrics.ReportsReceived.WithLabelValues(datastore.SourceAI).Inc()

	if err := validateUpload(req.Filename, req.Data, imageExtensions); err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhaseValidated)).Inc()
		return nil, err
	}

	// Geotagged: never blocks, even with no usable coordinate.
	lat, lng, method := p.geotag(req.Data, req.ManualLatitude, req.ManualLongitude)

	prepared, err := p.prepare(req.Data)
	if err != nil {
		return nil, err
	}

	result, err := p.detect(ctx, prepared)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Phase:      PhaseDetected,
		Detections: result.Detections,
		Summary:    summarize(result.Detections),
		Method:     method,
		Latitude:   lat,
		Longitude:  lng,
	}

	if len(result.Detections) == 0 {
		out.Phase = PhasePersisted
		return out, nil
	}

	// DedupChecked: skipped without a coordinate or under force-create.
	if lat != nil && lng != nil && !req.ForceCreate {
		candidates, err := p.dedupCheck(*lat, *lng)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			p.metrics.DuplicatesTotal.Inc()
			out.Phase = PhasePendingConfirmation
			out.Candidates = candidates
			// The overlay is still surfaced so the confirmation UI can
			// show what was detected.
			out.AnnotatedURL = p.storeOverlay(result.Overlay)
			return out, nil
		}
	}

	out.AnnotatedURL = p.storeOverlay(result.Overlay)
	p.persistDetections(ctx, req, out, result.Detections, lat, lng, method)
	return out, nil
}

// geotag resolves the report coordinate: embedded EXIF first, then caller-
// supplied manual coordinates, else none.
func (p *Pipeline) geotag(media []byte, manualLat, manualLng *float64) (lat, lng *float64, method string) {
	if gps, err := imageproc.ExtractGPS(media); err == nil {
		return &gps.Latitude, &gps.Longitude, datastore.MethodAutomatic
	}

	if manualLat != nil && manualLng != nil {
		manual := imageproc.GPS{Latitude: *manualLat, Longitude: *manualLng}
		if manual.Valid() {
			return manualLat, manualLng, datastore.MethodManual
		}
		p.logger.Warn("ignoring out-of-range manual coordinates",
			"lat", *manualLat, "lng", *manualLng)
	}
	return nil, nil, datastore.MethodAutomatic
}

// prepare runs the Preprocessed and Enhanced phases.
func (p *Pipeline) prepare(data []byte) ([]byte, error) {
	prepared, err := imageproc.Prepare(data)
	if err != nil {
		phase := PhasePreprocessed
		if errors.IsCategory(err, errors.CategoryEnhancement) {
			phase = PhaseEnhanced
		}
		p.metrics.PipelineFailures.WithLabelValues(string(phase)).Inc()
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryProcessing).
			Phase(string(phase)).
			Build()
	}
	return prepared, nil
}

// detect invokes the model and drops detections below the noise floor.
func (p *Pipeline) detect(ctx context.Context, prepared []byte) (*detector.Result, error) {
	result, err := p.detector.Detect(ctx, prepared)
	if err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhaseDetected)).Inc()
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryDetection).
			Phase(string(PhaseDetected)).
			Build()
	}
	p.metrics.InferenceSeconds.Observe(result.Elapsed.Seconds())

	kept := result.Detections[:0]
	floor := p.settings.Detector.ConfidenceFloor
	for i := range result.Detections {
		d := &result.Detections[i]
		if _, ok := detection.ClassifyAt(d, floor); !ok {
			continue
		}
		p.metrics.DetectionsTotal.WithLabelValues(string(d.Severity)).Inc()
		kept = append(kept, *d)
	}
	result.Detections = kept
	return result, nil
}

// dedupCheck returns existing active records within the dedup radius.
func (p *Pipeline) dedupCheck(lat, lng float64) ([]Candidate, error) {
	active, err := p.store.ActiveIncidentsWithCoordinates()
	if err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhaseDedupChecked)).Inc()
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryDatabase).
			Phase(string(PhaseDedupChecked)).
			Build()
	}

	candidates := make([]geo.Candidate, 0, len(active))
	byID := make(map[uint]*datastore.Incident, len(active))
	for i := range active {
		inc := &active[i]
		candidates = append(candidates, geo.Candidate{
			ID:        inc.ID,
			Reference: inc.Reference,
			Latitude:  *inc.Latitude,
			Longitude: *inc.Longitude,
		})
		byID[inc.ID] = inc
	}

	var out []Candidate
	for _, m := range p.matcher.Nearby(lat, lng, candidates) {
		inc := byID[m.ID]
		out = append(out, Candidate{
			ID:            inc.ID,
			Reference:     inc.Reference,
			DistanceM:     m.DistanceM,
			Severity:      inc.Severity,
			Description:   inc.Description,
			ReportedAt:    inc.CreatedAt.Format(time.RFC3339),
			PriorityScore: inc.PriorityScore,
			ReportCount:   inc.ReportCount,
		})
	}
	return out, nil
}

// storeOverlay persists the annotated image when available. Overlay storage
// failures are cosmetic and never fail the request.
func (p *Pipeline) storeOverlay(overlay []byte) string {
	if len(overlay) == 0 || p.media == nil {
		return ""
	}
	name, err := p.media.Save(overlay, "jpg")
	if err != nil {
		p.logger.Warn("failed to store annotated image", "error", err)
		return ""
	}
	return p.media.PublicURL(name)
}

// persistDetections writes one record per surviving detection. Write
// failures are logged and surfaced on the result, never as request errors.
func (p *Pipeline) persistDetections(ctx context.Context, req *ImageRequest, out *Result,
	detections []detection.Detection, lat, lng *float64, method string) {
	region := p.resolveRegion(ctx, lat, lng)
	reporter := reporterOrSystem(req.ReporterEmail)

	for i := range detections {
		d := &detections[i]
		incident, err := p.buildIncident(d, lat, lng, region, reporter, method, datastore.SourceAI, out.AnnotatedURL)
		if err == nil {
			err = p.store.SaveIncident(incident)
		}
		if err != nil {
			p.metrics.PipelineFailures.WithLabelValues(string(PhasePersisted)).Inc()
			p.logger.Error("persistence failed, detections still returned",
				"class", d.Class, "severity", d.Severity, "error", err)
			out.PersistenceDegraded = true
			continue
		}
		out.Incidents = append(out.Incidents, *incident)
	}
	out.Phase = PhasePersisted
}

// resolveRegion geocodes the coordinate. The resolver itself degrades to the
// static fallback table, so this never fails the pipeline.
func (p *Pipeline) resolveRegion(ctx context.Context, lat, lng *float64) geocode.Region {
	if lat == nil || lng == nil {
		return geocode.Region{}
	}
	return p.geocoder.Reverse(ctx, *lat, *lng)
}

func (p *Pipeline) buildIncident(d *detection.Detection, lat, lng *float64,
	region geocode.Region, reporter, method, source, imageURL string) (*datastore.Incident, error) {
	reference, err := p.refs.Generate()
	if err != nil {
		return nil, err
	}

	incident := &datastore.Incident{
		Reference:       reference,
		Class:           d.Class,
		Severity:        string(d.Severity),
		Status:          datastore.StatusReported,
		ConfidencePct:   d.Confidence * 100,
		DiagnosticScore: diagnosticScore(d),
		Description:     detection.Describe(d),
		Source:          source,
		Method:          method,
		PriorityScore:   1,
		Latitude:        lat,
		Longitude:       lng,
		State:           region.State,
		District:        region.District,
		Mandal:          region.Mandal,
		ImageURL:        imageURL,
		ReporterEmail:   reporter,
		ReportCount:     1,
	}
	incident.AddReporter(reporter)
	return incident, nil
}

func diagnosticScore(d *detection.Detection) float64 {
	c := detection.ClassifySeverity(d.Class, d.Confidence, d.Box.Area())
	return c.Score
}

func summarize(detections []detection.Detection) detection.Summary {
	summary := detection.NewSummary()
	for i := range detections {
		summary.Add(&detections[i])
	}
	return summary
}

func reporterOrSystem(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return conf.SystemReporter
	}
	return email
}

func validateUpload(filename string, data []byte, allowed map[string]bool) error {
	if len(data) == 0 {
		return errors.ValidationError("file", "upload is empty")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return errors.Newf("unsupported file extension %q", ext).
			Component("pipeline").
			Category(errors.CategoryValidation).
			Phase(string(PhaseValidated)).
			Build()
	}
	return nil
}
