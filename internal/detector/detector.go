// Package detector talks to the model-serving sidecar that runs pothole
// inference. The sidecar accepts a multipart image upload and returns raw
// detections; severity classification happens in the detection package so
// that the service stays a dumb model host.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/httpclient"
	"github.com/roadwatch/roadwatch-go/internal/logging"
)

// Interface is the inference contract the pipeline depends on.
type Interface interface {
	Detect(ctx context.Context, image []byte) (*Result, error)
	HealthCheck(ctx context.Context) error
}

// Result is one inference round-trip: raw detections plus the annotated
// overlay the sidecar renders with bounding boxes burned in.
type Result struct {
	Detections []detection.Detection
	// Overlay is the annotated JPEG, empty when the sidecar did not render one.
	Overlay []byte
	// ModelVersion identifies the weights that produced the detections.
	ModelVersion string
	Elapsed      time.Duration
}

// Client implements Interface over HTTP.
type Client struct {
	serviceURL string
	httpClient *httpclient.Client
	logger     *slog.Logger
}

// NewClient builds a detector client from the settings.
func NewClient(settings *conf.Settings) *Client {
	timeout := settings.Detector.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: settings.Detector.ServiceURL,
		httpClient: httpclient.New(&httpclient.Config{DefaultTimeout: timeout}),
		logger:     logging.ForService("detector"),
	}
}

// detectResponse mirrors the sidecar's JSON payload.
type detectResponse struct {
	Detections []struct {
		Class      string     `json:"class"`
		Confidence float64    `json:"confidence"`
		BBox       [4]float64 `json:"bbox"`
	} `json:"detections"`
	AnnotatedImage string `json:"annotated_image"`
	ModelVersion   string `json:"model_version"`
}

// HealthCheck verifies the sidecar is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.httpClient.Get(ctx, c.serviceURL+"/health")
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryNetwork).
			Context("url", c.serviceURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("detector service unhealthy: status %d", resp.StatusCode).
			Component("detector").
			Category(errors.CategoryDetection).
			Build()
	}
	return nil
}

// Detect uploads a prepared image and returns the model's findings.
func (c *Client) Detect(ctx context.Context, image []byte) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, errors.New(err).Component("detector").Category(errors.CategoryFileIO).Build()
	}
	if _, err := part.Write(image); err != nil {
		return nil, errors.New(err).Component("detector").Category(errors.CategoryFileIO).Build()
	}
	if err := writer.Close(); err != nil {
		return nil, errors.New(err).Component("detector").Category(errors.CategoryFileIO).Build()
	}

	start := time.Now()
	resp, err := c.httpClient.Post(ctx, c.serviceURL+"/detect", writer.FormDataContentType(), body)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryNetwork).
			Context("url", c.serviceURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("detector service returned status %d: %s", resp.StatusCode, payload).
			Component("detector").
			Category(errors.CategoryDetection).
			Build()
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDetection).
			Context("phase", "decode_response").
			Build()
	}

	result := &Result{
		ModelVersion: decoded.ModelVersion,
		Elapsed:      time.Since(start),
	}
	for _, d := range decoded.Detections {
		result.Detections = append(result.Detections, detection.Detection{
			Class:      d.Class,
			Confidence: d.Confidence,
			Box: detection.BoundingBox{
				X1: d.BBox[0], Y1: d.BBox[1],
				X2: d.BBox[2], Y2: d.BBox[3],
			},
		})
	}

	if decoded.AnnotatedImage != "" {
		overlay, err := base64.StdEncoding.DecodeString(decoded.AnnotatedImage)
		if err != nil {
			// A bad overlay is cosmetic, detections still stand.
			c.logger.Warn("discarding undecodable annotated image", "error", err)
		} else {
			result.Overlay = overlay
		}
	}

	c.logger.Debug("inference complete",
		"detections", len(result.Detections),
		"elapsed", result.Elapsed,
		"model_version", result.ModelVersion)
	return result, nil
}
