// Package api exposes the REST interface: report ingestion, registry
// queries, priority management and account handling.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roadwatch/roadwatch-go/internal/access"
	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/logging"
	"github.com/roadwatch/roadwatch-go/internal/mediastore"
	"github.com/roadwatch/roadwatch-go/internal/observability"
	"github.com/roadwatch/roadwatch-go/internal/pipeline"
	"github.com/roadwatch/roadwatch-go/internal/security"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	DS       datastore.Interface
	Pipeline *pipeline.Pipeline
	Security *security.Manager
	Media    *mediastore.Store
	Filter   *access.Filter

	metrics   *observability.Metrics
	apiLogger *slog.Logger
	startTime time.Time
}

// New builds the controller and registers every route on e.
func New(e *echo.Echo, settings *conf.Settings, ds datastore.Interface,
	p *pipeline.Pipeline, sec *security.Manager, media *mediastore.Store,
	metrics *observability.Metrics) *Controller {

	c := &Controller{
		Echo:     e,
		Settings: settings,
		DS:       ds,
		Pipeline: p,
		Security: sec,
		Media:    media,
		Filter:   &access.Filter{Strict: settings.Security.StrictJurisdiction},

		metrics:   metrics,
		apiLogger: logging.ForService("api"),
		startTime: time.Now(),
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})))

	if c.Media != nil {
		c.Echo.Static("/media", c.Media.Root())
	}

	c.initAnalysisRoutes()
	c.initIncidentRoutes()
	c.initAnalyticsRoutes()
	c.initAuthRoutes()
}

// LoggingMiddleware logs API requests with structured fields and feeds the
// request counter.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()
			c.metrics.HTTPRequests.WithLabelValues(
				req.Method, ctx.Path(), http.StatusText(res.Status)).Inc()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)
			return err
		}
	}
}

// HealthCheck reports service liveness plus downstream collaborator status.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":     "healthy",
		"version":    c.Settings.Version,
		"build_date": c.Settings.BuildDate,
		"uptime_s":   int(time.Since(c.startTime).Seconds()),
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if _, err := c.DS.TotalIncidents(); err != nil {
		response["status"] = "degraded"
		response["database"] = "unreachable"
	}
	return ctx.JSON(http.StatusOK, response)
}

// ErrorResponse is the uniform error payload. Phase is set when a pipeline
// stage failed, so clients can show where ingestion stopped.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	Phase         string `json:"phase,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes the uniform error payload. The HTTP status
// derives from the error's category when code is zero.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = statusForError(err)
	}

	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		resp.Error = enhanced.Error()
		resp.Phase = enhanced.Phase()
	} else if err != nil {
		resp.Error = err.Error()
	}

	c.apiLogger.Error("API Error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"phase", resp.Phase,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)
	return ctx.JSON(code, resp)
}

// statusForError maps error categories onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryAuthentication):
		return http.StatusUnauthorized
	case errors.IsCategory(err, errors.CategoryAuthorization),
		errors.IsCategory(err, errors.CategoryImmutableState):
		return http.StatusForbidden
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
