package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/detector"
	"github.com/roadwatch/roadwatch-go/internal/geocode"
	"github.com/roadwatch/roadwatch-go/internal/observability"
	"github.com/roadwatch/roadwatch-go/internal/pipeline"
	"github.com/roadwatch/roadwatch-go/internal/security"
)

type stubDetector struct {
	detections []detection.Detection
	err        error
}

func (s *stubDetector) Detect(context.Context, []byte) (*detector.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := &detector.Result{ModelVersion: "test"}
	out.Detections = append(out.Detections, s.detections...)
	return out, nil
}

func (s *stubDetector) HealthCheck(context.Context) error { return s.err }

type stubGeocoder struct{ region geocode.Region }

func (s *stubGeocoder) Reverse(context.Context, float64, float64) geocode.Region {
	return s.region
}

type testHarness struct {
	controller *Controller
	echo       *echo.Echo
	store      datastore.Interface
	security   *security.Manager
	detector   *stubDetector
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	settings := &conf.Settings{}
	settings.Version = "test"
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "api_test.db")
	settings.MediaStore.Path = t.TempDir()
	settings.MediaStore.PublicBaseURL = "http://localhost:8080/media"
	settings.Dedup.RadiusMeters = 25
	settings.Security.JWTSecret = "api-test-secret"

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	sec, err := security.NewManager(settings)
	require.NoError(t, err)

	det := &stubDetector{}
	geocoder := &stubGeocoder{region: geocode.Region{
		State: "Karnataka", District: "Bengaluru Urban", Mandal: "Bengaluru",
	}}
	metrics := observability.NewMetrics()
	p := pipeline.New(settings, store, det, geocoder, nil, metrics)

	e := echo.New()
	c := New(e, settings, store, p, sec, nil, metrics)

	return &testHarness{controller: c, echo: e, store: store, security: sec, detector: det}
}

func (h *testHarness) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) token(t *testing.T, email, role, area string) string {
	t.Helper()
	token, err := h.security.IssueToken(1, email, role, area)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func ptr(f float64) *float64 { return &f }

func seedIncident(t *testing.T, store datastore.Interface, reference, district string, mutate func(*datastore.Incident)) *datastore.Incident {
	t.Helper()
	incident := &datastore.Incident{
		Reference:     reference,
		Class:         "severe_pothole",
		Severity:      string(detection.SeverityHigh),
		Status:        datastore.StatusReported,
		ConfidencePct: 80,
		Description:   "seed",
		Source:        datastore.SourceAI,
		Method:        datastore.MethodAutomatic,
		PriorityScore: 1,
		Reporters:     `["seed@example.com"]`,
		Latitude:      ptr(12.9716),
		Longitude:     ptr(77.5946),
		State:         "Karnataka",
		District:      district,
		Mandal:        "Bengaluru",
		ReportCount:   1,
	}
	if mutate != nil {
		mutate(incident)
	}
	require.NoError(t, store.SaveIncident(incident))
	return incident
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "Citizen@Example.com",
		"password": "hunter22",
		"name":     "Test Citizen",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "citizen@example.com", user["email"])
	assert.Equal(t, "citizen", user["role"])

	rec = h.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "citizen@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "citizen@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")

	// Unknown account gets the identical message.
	rec = h.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
}

func TestPrivilegedRegistrationRequiresInvitation(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "officer@gov.example",
		"password": "secret123",
		"role":     "district_authority",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invitation code required")

	admin := h.token(t, "admin@gov.example", "national_admin", "")
	rec = h.request(t, http.MethodPost, "/api/v1/auth/invitations", admin, map[string]string{
		"role":              "district_authority",
		"jurisdiction_area": "Chennai",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	invitation := decodeBody(t, rec)
	code := invitation["code"].(string)
	assert.Regexp(t, `^GOV-[A-Z0-9]{8}$`, code)

	rec = h.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":           "officer@gov.example",
		"password":        "secret123",
		"role":            "district_authority",
		"invitation_code": code,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "district_authority", user["role"])
	assert.Equal(t, "Chennai", user["jurisdiction_area"])

	// Single use: the same code cannot register a second officer.
	rec = h.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":           "other@gov.example",
		"password":        "secret123",
		"role":            "district_authority",
		"invitation_code": code,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeInvitationRemovesAccount(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	admin := h.token(t, "admin@gov.example", "national_admin", "")
	rec := h.request(t, http.MethodPost, "/api/v1/auth/invitations", admin, map[string]string{
		"role":              "state_authority",
		"jurisdiction_area": "Karnataka",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeBody(t, rec)["code"].(string)

	rec = h.request(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":           "revoked@gov.example",
		"password":        "secret123",
		"role":            "state_authority",
		"invitation_code": code,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.request(t, http.MethodDelete, "/api/v1/auth/invitations/"+code, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := h.store.GetUserByEmail("revoked@gov.example")
	assert.Error(t, err)

	citizen := h.token(t, "citizen@example.com", "citizen", "")
	rec = h.request(t, http.MethodDelete, "/api/v1/auth/invitations/"+code, citizen, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvitationRequiresAdmin(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	authority := h.token(t, "officer@gov.example", "district_authority", "Chennai")
	rec := h.request(t, http.MethodPost, "/api/v1/auth/invitations", authority, map[string]string{
		"role": "district_authority",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.request(t, http.MethodPost, "/api/v1/auth/invitations", "", map[string]string{
		"role": "district_authority",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListIncidentsJurisdictionScoping(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	seedIncident(t, h.store, "PH-2026-AAAAA1", "Bengaluru Urban", nil)
	seedIncident(t, h.store, "PH-2026-AAAAA2", "Chennai", func(i *datastore.Incident) {
		i.State = "Tamil Nadu"
		i.Mandal = "Chennai South"
	})
	seedIncident(t, h.store, "PH-2026-AAAAA3", "Chennai", func(i *datastore.Incident) {
		i.State = "Tamil Nadu"
		i.Mandal = "Chennai North"
	})

	// Anonymous citizens see the full registry.
	rec := h.request(t, http.MethodGet, "/api/v1/potholes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decodeBody(t, rec)["count"])

	// A district authority only sees its own district.
	chennai := h.token(t, "chennai@gov.example", "district_authority", "chennai")
	rec = h.request(t, http.MethodGet, "/api/v1/potholes", chennai, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])
	for _, raw := range body["incidents"].([]any) {
		assert.Equal(t, "Chennai", raw.(map[string]any)["district"])
	}

	// A national authority sees everything.
	national := h.token(t, "national@gov.example", "national_authority", "")
	rec = h.request(t, http.MethodGet, "/api/v1/potholes", national, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decodeBody(t, rec)["count"])
}

func TestUpdateIncident(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	incident := seedIncident(t, h.store, "PH-2026-UPD001", "Bengaluru Urban", nil)

	path := fmt.Sprintf("/api/v1/potholes/%d", incident.ID)

	// Citizens cannot mutate records at all.
	rec := h.request(t, http.MethodPut, path, "", map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// An authority for another district is refused.
	other := h.token(t, "chennai@gov.example", "district_authority", "Chennai")
	rec = h.request(t, http.MethodPut, path, other, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The matching authority can advance the status.
	local := h.token(t, "blr@gov.example", "district_authority", "Bengaluru Urban")
	rec = h.request(t, http.MethodPut, path, local, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in_progress", decodeBody(t, rec)["status"])

	rec = h.request(t, http.MethodPut, path, local, map[string]string{"status": "fixed"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Fixed records are immutable to everyone, including national authorities.
	national := h.token(t, "national@gov.example", "national_authority", "")
	rec = h.request(t, http.MethodPut, path, national, map[string]string{"status": "reported"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBoostPriorityEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	incident := seedIncident(t, h.store, "PH-2026-BST001", "Bengaluru Urban", func(i *datastore.Incident) {
		i.PriorityScore = 3
	})

	token := h.token(t, "again@example.com", "citizen", "")
	rec := h.request(t, http.MethodPost, "/api/v1/update-priority", token, map[string]any{
		"id": incident.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 4, body["priority_score"])
	assert.EqualValues(t, 2, body["report_count"])
	assert.Contains(t, body["reporters"], "again@example.com")
}

func TestTrackByReference(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	seedIncident(t, h.store, "PH-2026-TRK001", "Bengaluru Urban", nil)

	rec := h.request(t, http.MethodGet, "/api/v1/track/ph-2026-trk001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PH-2026-TRK001", body["reference"])
	assert.Equal(t, "reported", body["status"])
	// The public payload never exposes reporter identities.
	assert.NotContains(t, rec.Body.String(), "reporters")

	rec = h.request(t, http.MethodGet, "/api/v1/track/PH-2026-NOPE99", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrioritizeOrdering(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	seedIncident(t, h.store, "PH-2026-PRI001", "Bengaluru Urban", func(i *datastore.Incident) {
		i.Severity = string(detection.SeverityLow)
		i.ConfidencePct = 55
	})
	seedIncident(t, h.store, "PH-2026-PRI002", "Bengaluru Urban", func(i *datastore.Incident) {
		i.Severity = string(detection.SeverityCritical)
		i.ConfidencePct = 91
	})

	rec := h.request(t, http.MethodGet, "/api/v1/prioritize", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	ranking := body["ranking"].([]any)
	require.Len(t, ranking, 2)

	first := ranking[0].(map[string]any)
	assert.Equal(t, "PH-2026-PRI002", first["reference"])
	assert.Equal(t, "urgent", first["level"])
	assert.EqualValues(t, 1, first["rank"])
	assert.InDelta(t, 118.2, first["score"].(float64), 0.001)

	second := ranking[1].(map[string]any)
	assert.Equal(t, "PH-2026-PRI001", second["reference"])
	assert.EqualValues(t, 2, second["rank"])
}

func TestPublicStats(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	seedIncident(t, h.store, "PH-2026-STA001", "Bengaluru Urban", nil)
	seedIncident(t, h.store, "PH-2026-STA002", "Bengaluru Urban", func(i *datastore.Incident) {
		i.Status = datastore.StatusFixed
		i.Severity = string(detection.SeverityCritical)
	})

	rec := h.request(t, http.MethodGet, "/api/v1/public-stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total_reports"])
	assert.EqualValues(t, 1, body["fixed"])

	bySeverity := body["by_severity"].(map[string]any)
	assert.EqualValues(t, 1, bySeverity["high"])
	assert.EqualValues(t, 1, bySeverity["critical"])
}

func TestAnalyticsRequiresAuthority(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/api/v1/analytics", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	token := h.token(t, "officer@gov.example", "state_authority", "Karnataka")
	seedIncident(t, h.store, "PH-2026-ANA001", "Bengaluru Urban", nil)
	rec = h.request(t, http.MethodGet, "/api/v1/analytics", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["total_reports"])
	assert.Len(t, body["recent"].([]any), 1)
}

func testImageJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartUpload(t *testing.T, field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestAnalyzeImageEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	h.detector.detections = []detection.Detection{
		{Class: "severe_pothole", Confidence: 0.91, Box: detection.BoundingBox{X1: 10, Y1: 10, X2: 40, Y2: 40}},
	}

	body, contentType := multipartUpload(t, "image", "pothole.jpg", testImageJPEG(t), map[string]string{
		"manual_latitude":  "12.9716",
		"manual_longitude": "77.5946",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody(t, rec)
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "manual", result["detection_method"])
	incidents := result["incidents"].([]any)
	require.Len(t, incidents, 1)
	view := incidents[0].(map[string]any)
	assert.Equal(t, "critical", view["severity"])
	assert.Regexp(t, `^PH-\d{4}-[A-Z0-9]{6}$`, view["reference"])

	// A second submission at the same spot triggers the dedup gate.
	body, contentType = multipartUpload(t, "image", "pothole.jpg", testImageJPEG(t), map[string]string{
		"manual_latitude":  "12.9716",
		"manual_longitude": "77.5946",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	dup := decodeBody(t, rec)
	assert.Equal(t, "duplicate_candidates", dup["status"])
	assert.NotEmpty(t, dup["candidates"])
}

func TestAnalyzeImageRejectsMissingFile(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/analyze", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No image provided")
}

func TestSubmitManualReportEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	token := h.token(t, "reporter@example.com", "citizen", "")
	rec := h.request(t, http.MethodPost, "/api/v1/report", token, map[string]any{
		"latitude":  12.9716,
		"longitude": 77.5946,
		"severity":  "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	incident := body["incident"].(map[string]any)
	assert.Equal(t, "high", incident["severity"])
	assert.Equal(t, "manual", incident["source"])
	assert.EqualValues(t, 100, incident["confidence"])
	assert.Contains(t, incident["reporters"], "reporter@example.com")

	rec = h.request(t, http.MethodPost, "/api/v1/report", token, map[string]any{
		"latitude":  12.9716,
		"longitude": 77.5946,
		"severity":  "bogus",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/api/v1/potholes", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorResponseShape(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/api/v1/track/PH-2026-MISSIN", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
	assert.False(t, strings.Contains(resp.CorrelationID, " "))
}
