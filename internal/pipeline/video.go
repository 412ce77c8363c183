package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/errors"
)

// VideoRequest is a frame-sequence ingestion request.
type VideoRequest struct {
	Filename        string
	Data            []byte
	ManualLatitude  *float64
	ManualLongitude *float64
	ReporterEmail   string
}

// VideoResult aggregates per-frame detections for one video.
type VideoResult struct {
	FramesProcessed int
	Detections      []detection.Detection
	Summary         detection.Summary
	// PreviewURL points at the annotated representative frame.
	PreviewURL string
	// Incident is the single persisted record, nil when nothing severe was
	// found or no usable coordinate existed.
	Incident            *datastore.Incident
	Method              string
	Latitude            *float64
	Longitude           *float64
	PersistenceDegraded bool
}

// ProcessVideo runs detection over the video's frames sequentially. The
// model sidecar is a single shared resource, so frames are never fanned out.
// At most one record is persisted per video: severity critical when any
// frame scored critical, high otherwise, and only when severe detections
// exist and a coordinate is known.
func (p *Pipeline) ProcessVideo(ctx context.Context, req *VideoRequest) (*VideoResult, error) {
	p.metrics.ReportsReceived.WithLabelValues(datastore.SourceVideo).Inc()

	if err := validateUpload(req.Filename, req.Data, videoExtensions); err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhaseValidated)).Inc()
		return nil, err
	}

	lat, lng, method := p.geotag(req.Data, req.ManualLatitude, req.ManualLongitude)

	frames, err := p.frames(ctx, req.Data, req.Filename)
	if err != nil {
		p.metrics.PipelineFailures.WithLabelValues(string(PhasePreprocessed)).Inc()
		return nil, err
	}

	out := &VideoResult{
		Summary:   detection.NewSummary(),
		Method:    method,
		Latitude:  lat,
		Longitude: lng,
	}

	interval := p.settings.Video.FrameInterval
	if interval <= 0 {
		interval = 1
	}
	var preview []byte
	bestFrameCount := 0
	for frameNo, frame := range frames {
		prepared, err := p.prepare(frame)
		if err != nil {
			return nil, err
		}
		result, err := p.detect(ctx, prepared)
		if err != nil {
			return nil, err
		}
		out.FramesProcessed++

		for i := range result.Detections {
			d := result.Detections[i]
			d.FrameNumber = frameNo
			d.FrameTimestamp = float64(frameNo) * interval
			d.DetectionID = fmt.Sprintf("f%d-d%d", frameNo, i)
			out.Detections = append(out.Detections, d)
			out.Summary.Add(&d)
		}

		// The representative preview is the busiest annotated frame.
		if len(result.Overlay) > 0 && len(result.Detections) >= bestFrameCount {
			bestFrameCount = len(result.Detections)
			preview = result.Overlay
		}
	}

	out.PreviewURL = p.storeOverlay(preview)

	if out.Summary.Severe() > 0 && lat != nil && lng != nil {
		p.persistVideoRecord(ctx, req, out, lat, lng, method)
	}
	return out, nil
}

// persistVideoRecord writes the aggregate record for a severe video. Write
// failures degrade, the detections are still returned.
func (p *Pipeline) persistVideoRecord(ctx context.Context, req *VideoRequest, out *VideoResult,
	lat, lng *float64, method string) {
	severity := detection.SeverityHigh
	if out.Summary[detection.SeverityCritical] > 0 {
		severity = detection.SeverityCritical
	}

	region := p.resolveRegion(ctx, lat, lng)
	reporter := reporterOrSystem(req.ReporterEmail)
	reference, err := p.refs.Generate()
	if err == nil {
		incident := &datastore.Incident{
			Reference:     reference,
			Class:         "video_analysis",
			Severity:      string(severity),
			Status:        datastore.StatusReported,
			ConfidencePct: 90,
			Description: fmt.Sprintf("Video analysis detected %d potholes across %d frames",
				out.Summary.Total(), out.FramesProcessed),
			Source:        datastore.SourceVideo,
			Method:        method,
			PriorityScore: 1,
			Latitude:      lat,
			Longitude:     lng,
			State:         region.State,
			District:      region.District,
			Mandal:        region.Mandal,
			ImageURL:      out.PreviewURL,
			ReporterEmail: reporter,
			ReportCount:   1,
		}
		incident.AddReporter(reporter)
		if err = p.store.SaveIncident(incident); err == nil {
			out.Incident = incident
			return
		}
	}
	p.metrics.PipelineFailures.WithLabelValues(string(PhasePersisted)).Inc()
	p.logger.Error("failed to persist video record, detections still returned", "error", err)
	out.PersistenceDegraded = true
}

// ffmpegExtractFrames shells out to ffmpeg to sample the video at the
// configured frame interval. It is the default frame extractor.
func (p *Pipeline) ffmpegExtractFrames(ctx context.Context, data []byte, filename string) ([][]byte, error) {
	workDir, err := os.MkdirTemp("", "roadwatch-video-")
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	videoPath := filepath.Join(workDir, "input"+filepath.Ext(filename))
	if err := os.WriteFile(videoPath, data, 0o600); err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Build()
	}

	ffmpeg := p.settings.Video.FfmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	interval := p.settings.Video.FrameInterval
	if interval <= 0 {
		interval = 1
	}

	framePattern := filepath.Join(workDir, "frame_%05d.jpg")
	cmd := exec.CommandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%g", interval),
		"-q:v", "2",
		framePattern,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Newf("ffmpeg frame extraction failed: %v: %s", err, output).
			Component("pipeline").
			Category(errors.CategoryProcessing).
			Phase(string(PhasePreprocessed)).
			Build()
	}

	paths, err := filepath.Glob(filepath.Join(workDir, "frame_*.jpg"))
	if err != nil {
		return nil, errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, errors.Newf("video produced no frames").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}

	frames := make([][]byte, 0, len(paths))
	for _, path := range paths {
		frame, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(err).Component("pipeline").Category(errors.CategoryFileIO).Build()
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
