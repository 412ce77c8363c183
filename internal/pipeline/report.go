package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/imageproc"
)

// ManualRequest is a citizen-submitted report: severity and description come
// from the caller, not the model. Confidence is pinned at 100%.
type ManualRequest struct {
	Latitude      float64
	Longitude     float64
	Severity      string
	Description   string
	ReporterEmail string
	ForceCreate   bool
	// Photo optionally attaches an image to the record.
	Photo         []byte
	PhotoFilename string
}

// SubmitManual runs the dedup-then-persist path for a manual report.
// The media phases (geotag, preprocess, enhance, detect) are skipped.
func (p *Pipeline) SubmitManual(ctx context.Context, req *ManualRequest) (*Result, error) {
	p.metrics.ReportsReceived.WithLabelValues(datastore.SourceManual).Inc()

	severity := detection.Severity(strings.ToLower(strings.TrimSpace(req.Severity)))
	if !severity.Valid() {
		return nil, errors.ValidationError("severity", "must be one of low, medium, high, critical")
	}
	gps := imageproc.GPS{Latitude: req.Latitude, Longitude: req.Longitude}
	if !gps.Valid() {
		return nil, errors.ValidationError("coordinates", "latitude/longitude out of range")
	}

	out := &Result{
		Phase:     PhaseDedupChecked,
		Method:    datastore.MethodManual,
		Latitude:  &req.Latitude,
		Longitude: &req.Longitude,
	}

	if !req.ForceCreate {
		candidates, err := p.dedupCheck(req.Latitude, req.Longitude)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			p.metrics.DuplicatesTotal.Inc()
			out.Phase = PhasePendingConfirmation
			out.Candidates = candidates
			return out, nil
		}
	}

	imageURL := p.storePhoto(req.Photo, req.PhotoFilename)
	region := p.geocoder.Reverse(ctx, req.Latitude, req.Longitude)
	reference, err := p.refs.Generate()
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Manually reported " + string(severity) + " pothole"
	}

	incident := &datastore.Incident{
		Reference:     reference,
		Class:         "manual_report",
		Severity:      string(severity),
		Status:        datastore.StatusReported,
		ConfidencePct: 100,
		Description:   description,
		Source:        datastore.SourceManual,
		Method:        datastore.MethodManual,
		PriorityScore: 1,
		Latitude:      &req.Latitude,
		Longitude:     &req.Longitude,
		State:         region.State,
		District:      region.District,
		Mandal:        region.Mandal,
		ImageURL:      imageURL,
		ReporterEmail: reporterOrSystem(req.ReporterEmail),
		ReportCount:   1,
	}
	incident.AddReporter(incident.ReporterEmail)

	if err := p.store.SaveIncident(incident); err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhasePersisted)).Inc()
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryDatabase).
			Phase(string(PhasePersisted)).
			Build()
	}

	out.Phase = PhasePersisted
	out.Incidents = []datastore.Incident{*incident}
	return out, nil
}

// storePhoto saves an optional attached photo. Storage trouble is logged,
// the report still goes through.
func (p *Pipeline) storePhoto(photo []byte, filename string) string {
	if len(photo) == 0 || p.media == nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		ext = "jpg"
	}
	name, err := p.media.Save(photo, ext)
	if err != nil {
		p.logger.Warn("failed to store report photo", "error", err)
		return ""
	}
	return p.media.PublicURL(name)
}
