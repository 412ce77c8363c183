package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/pipeline"
)

// maxUploadBytes bounds in-memory reads of uploaded media.
const maxUploadBytes = 100 << 20

func (c *Controller) initAnalysisRoutes() {
	c.Group.POST("/analyze", c.AnalyzeImage, c.authenticate())
	c.Group.POST("/analyze-video", c.AnalyzeVideo, c.authenticate())
	c.Group.POST("/report", c.SubmitReport, c.authenticate())
}

func readUpload(file *multipart.FileHeader) (string, []byte, error) {
	src, err := file.Open()
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = src.Close() }()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return "", nil, err
	}
	return file.Filename, data, nil
}

// parseCoord reads an optional coordinate form value.
func parseCoord(value string) *float64 {
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

// AnalyzeImage ingests a photo through the full detection pipeline.
// Responds 409 with the candidate list when dedup requires confirmation.
func (c *Controller) AnalyzeImage(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, errors.ValidationError("image", "file is required"),
			"No image provided", http.StatusBadRequest)
	}
	filename, data, err := readUpload(file)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read upload", http.StatusBadRequest)
	}

	req := &pipeline.ImageRequest{
		Filename:        filename,
		Data:            data,
		ManualLatitude:  parseCoord(ctx.FormValue("manual_latitude")),
		ManualLongitude: parseCoord(ctx.FormValue("manual_longitude")),
		ForceCreate:     ctx.FormValue("force_create") == "true",
		ReporterEmail:   c.caller(ctx).Email,
	}

	result, err := c.Pipeline.ProcessImage(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err, "Image analysis failed", 0)
	}

	if result.Phase == pipeline.PhasePendingConfirmation {
		return ctx.JSON(http.StatusConflict, map[string]any{
			"status":              "duplicate_candidates",
			"message":             "Similar reports exist nearby; resubmit with force_create or boost an existing report",
			"candidates":          result.Candidates,
			"annotated_image_url": result.AnnotatedURL,
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status":               "success",
		"type":                 "image",
		"detections":           result.Detections,
		"detection_summary":    result.Summary,
		"incidents":            incidentViews(result.Incidents),
		"annotated_image_url":  result.AnnotatedURL,
		"detection_method":     result.Method,
		"latitude":             result.Latitude,
		"longitude":            result.Longitude,
		"persistence_degraded": result.PersistenceDegraded,
	})
}

// AnalyzeVideo ingests a video as an ordered frame sequence.
func (c *Controller) AnalyzeVideo(ctx echo.Context) error {
	file, err := ctx.FormFile("video")
	if err != nil {
		return c.HandleError(ctx, errors.ValidationError("video", "file is required"),
			"No video provided", http.StatusBadRequest)
	}
	filename, data, err := readUpload(file)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read upload", http.StatusBadRequest)
	}

	req := &pipeline.VideoRequest{
		Filename:        filename,
		Data:            data,
		ManualLatitude:  parseCoord(ctx.FormValue("manual_latitude")),
		ManualLongitude: parseCoord(ctx.FormValue("manual_longitude")),
		ReporterEmail:   c.caller(ctx).Email,
	}

	result, err := c.Pipeline.ProcessVideo(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err, "Video analysis failed", 0)
	}

	response := map[string]any{
		"status":               "success",
		"type":                 "video",
		"total_detections":     result.Summary.Total(),
		"frames_processed":     result.FramesProcessed,
		"detection_summary":    result.Summary,
		"all_detections":       result.Detections,
		"preview_image_url":    result.PreviewURL,
		"detection_method":     result.Method,
		"persistence_degraded": result.PersistenceDegraded,
	}
	if result.Incident != nil {
		response["incident"] = newIncidentView(*result.Incident)
	}
	return ctx.JSON(http.StatusOK, response)
}

type manualReportRequest struct {
	Latitude    float64 `json:"latitude" form:"latitude"`
	Longitude   float64 `json:"longitude" form:"longitude"`
	Severity    string  `json:"severity" form:"severity"`
	Description string  `json:"description" form:"description"`
	ForceCreate bool    `json:"force_create" form:"force_create"`
}

// SubmitReport files a manual report, with an optional photo attachment.
func (c *Controller) SubmitReport(ctx echo.Context) error {
	var req manualReportRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	manual := &pipeline.ManualRequest{
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Severity:      req.Severity,
		Description:   req.Description,
		ForceCreate:   req.ForceCreate,
		ReporterEmail: c.caller(ctx).Email,
	}
	if file, err := ctx.FormFile("photo"); err == nil {
		if name, data, err := readUpload(file); err == nil {
			manual.Photo = data
			manual.PhotoFilename = name
		}
	}

	result, err := c.Pipeline.SubmitManual(ctx.Request().Context(), manual)
	if err != nil {
		return c.HandleError(ctx, err, "Report submission failed", 0)
	}

	if result.Phase == pipeline.PhasePendingConfirmation {
		return ctx.JSON(http.StatusConflict, map[string]any{
			"status":     "duplicate_candidates",
			"message":    "Similar reports exist nearby; resubmit with force_create or boost an existing report",
			"candidates": result.Candidates,
		})
	}
	return ctx.JSON(http.StatusCreated, map[string]any{
		"status":   "success",
		"incident": newIncidentView(result.Incidents[0]),
	})
}
