package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch-go/internal/access"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detection"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/priority"
)

func (c *Controller) initIncidentRoutes() {
	c.Group.GET("/potholes", c.ListIncidents, c.authenticate())
	c.Group.GET("/potholes/:id", c.GetIncident, c.authenticate())
	c.Group.PUT("/potholes/:id", c.UpdateIncident, c.authenticate(), c.requireAuthority)
	c.Group.POST("/update-priority", c.BoostPriority, c.authenticate())
	c.Group.GET("/track/:reference", c.TrackByReference)
	c.Group.GET("/prioritize", c.Prioritize, c.authenticate())
}

// incidentView is the wire shape of a record.
type incidentView struct {
	ID              uint     `json:"id"`
	Reference       string   `json:"reference"`
	Class           string   `json:"class,omitempty"`
	Severity        string   `json:"severity"`
	Status          string   `json:"status"`
	Confidence      float64  `json:"confidence"`
	DiagnosticScore float64  `json:"diagnostic_score,omitempty"`
	Description     string   `json:"description"`
	Source          string   `json:"source"`
	Method          string   `json:"detection_method"`
	PriorityScore   int      `json:"priority_score"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	State           string   `json:"state"`
	District        string   `json:"district"`
	Mandal          string   `json:"mandal"`
	ImageURL        string   `json:"image_url,omitempty"`
	ReportCount     int      `json:"report_count"`
	Reporters       []string `json:"reporters"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func newIncidentView(i datastore.Incident) incidentView {
	return incidentView{
		ID:              i.ID,
		Reference:       i.Reference,
		Class:           i.Class,
		Severity:        i.Severity,
		Status:          i.Status,
		Confidence:      i.ConfidencePct,
		DiagnosticScore: i.DiagnosticScore,
		Description:     i.Description,
		Source:          i.Source,
		Method:          i.Method,
		PriorityScore:   i.PriorityScore,
		Latitude:        i.Latitude,
		Longitude:       i.Longitude,
		State:           i.State,
		District:        i.District,
		Mandal:          i.Mandal,
		ImageURL:        i.ImageURL,
		ReportCount:     i.ReportCount,
		Reporters:       i.ReporterList(),
		CreatedAt:       i.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       i.UpdatedAt.Format(time.RFC3339),
	}
}

func incidentViews(incidents []datastore.Incident) []incidentView {
	views := make([]incidentView, 0, len(incidents))
	for _, i := range incidents {
		views = append(views, newIncidentView(i))
	}
	return views
}

func regionTags(i *datastore.Incident) access.RegionTags {
	return access.RegionTags{State: i.State, District: i.District, Mandal: i.Mandal}
}

// visibleTo filters a record slice down to what the caller may see.
func (c *Controller) visibleTo(caller access.Caller, incidents []datastore.Incident) []datastore.Incident {
	out := incidents[:0]
	for _, i := range incidents {
		if c.Filter.Visible(caller, regionTags(&i)) {
			out = append(out, i)
		}
	}
	return out
}

// ListIncidents returns registry records, jurisdiction-filtered, with
// optional severity/status/date-range query filters.
func (c *Controller) ListIncidents(ctx echo.Context) error {
	filters := datastore.IncidentFilters{
		Severity: strings.ToLower(ctx.QueryParam("severity")),
		Status:   strings.ToLower(ctx.QueryParam("status")),
		State:    ctx.QueryParam("state"),
		District: ctx.QueryParam("district"),
		Mandal:   ctx.QueryParam("mandal"),
	}
	if from := ctx.QueryParam("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.From = t
		}
	}
	if to := ctx.QueryParam("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.To = t
		}
	}

	incidents, err := c.DS.SearchIncidents(filters)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query incidents", 0)
	}
	incidents = c.visibleTo(c.caller(ctx), incidents)

	return ctx.JSON(http.StatusOK, map[string]any{
		"count":     len(incidents),
		"incidents": incidentViews(incidents),
	})
}

// GetIncident returns one record by id, subject to visibility.
func (c *Controller) GetIncident(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, errors.ValidationError("id", "must be numeric"),
			"Invalid incident id", http.StatusBadRequest)
	}
	incident, err := c.DS.GetIncident(uint(id))
	if err != nil {
		return c.HandleError(ctx, err, "Incident not found", 0)
	}
	if !c.Filter.Visible(c.caller(ctx), regionTags(incident)) {
		return c.HandleError(ctx, errors.NotFoundError("incident", ctx.Param("id")),
			"Incident not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, newIncidentView(*incident))
}

type updateIncidentRequest struct {
	Status   string `json:"status"`
	Severity string `json:"severity"`
}

// UpdateIncident transitions a record's status (and optionally severity).
// Jurisdiction and fixed-state rules are enforced by the access filter.
func (c *Controller) UpdateIncident(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, errors.ValidationError("id", "must be numeric"),
			"Invalid incident id", http.StatusBadRequest)
	}
	var req updateIncidentRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	incident, err := c.DS.GetIncident(uint(id))
	if err != nil {
		return c.HandleError(ctx, err, "Incident not found", 0)
	}

	if err := c.Filter.Mutable(c.caller(ctx), regionTags(incident), incident.IsFixed()); err != nil {
		return c.HandleError(ctx, err, "Not permitted to modify this incident", 0)
	}

	if req.Status != "" {
		status := strings.ToLower(req.Status)
		switch status {
		case datastore.StatusReported, datastore.StatusInProgress, datastore.StatusFixed:
			incident.Status = status
		default:
			return c.HandleError(ctx, errors.ValidationError("status", "unknown status"),
				"Invalid status", http.StatusBadRequest)
		}
	}
	if req.Severity != "" {
		severity := detection.Severity(strings.ToLower(req.Severity))
		if !severity.Valid() {
			return c.HandleError(ctx, errors.ValidationError("severity", "unknown severity"),
				"Invalid severity", http.StatusBadRequest)
		}
		incident.Severity = string(severity)
	}

	if err := c.DS.UpdateIncident(incident); err != nil {
		return c.HandleError(ctx, err, "Failed to update incident", 0)
	}
	return ctx.JSON(http.StatusOK, newIncidentView(*incident))
}

type boostRequest struct {
	ID    uint `json:"id"`
	Delta int  `json:"delta"`
}

// BoostPriority merges a new observation into an existing record instead of
// creating a duplicate.
func (c *Controller) BoostPriority(ctx echo.Context) error {
	var req boostRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Delta <= 0 {
		req.Delta = 1
	}

	reporter := c.caller(ctx).Email
	if reporter == "" {
		reporter = "anonymous"
	}
	incident, err := c.DS.BoostPriority(req.ID, req.Delta, reporter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to boost priority", 0)
	}
	return ctx.JSON(http.StatusOK, newIncidentView(*incident))
}

// TrackByReference is the public, unauthenticated tracking endpoint.
func (c *Controller) TrackByReference(ctx echo.Context) error {
	incident, err := c.DS.GetIncidentByReference(ctx.Param("reference"))
	if err != nil {
		return c.HandleError(ctx, err, "No report found for this reference", 0)
	}
	// Public view exposes status, not reporter identities.
	return ctx.JSON(http.StatusOK, map[string]any{
		"reference":    incident.Reference,
		"severity":     incident.Severity,
		"status":       incident.Status,
		"description":  incident.Description,
		"report_count": incident.ReportCount,
		"created_at":   incident.CreatedAt.Format(time.RFC3339),
		"updated_at":   incident.UpdatedAt.Format(time.RFC3339),
	})
}

// Prioritize returns the caller-visible registry ranked by urgency.
func (c *Controller) Prioritize(ctx echo.Context) error {
	incidents, err := c.DS.SearchIncidents(datastore.IncidentFilters{})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query incidents", 0)
	}
	incidents = c.visibleTo(c.caller(ctx), incidents)

	// Rank in creation order so ties resolve oldest first.
	byID := make(map[uint]datastore.Incident, len(incidents))
	rankables := make([]priority.Rankable, 0, len(incidents))
	for i := len(incidents) - 1; i >= 0; i-- {
		inc := incidents[i]
		byID[inc.ID] = inc
		rankables = append(rankables, priority.Rankable{
			ID:            inc.ID,
			Reference:     inc.Reference,
			Severity:      detection.Severity(inc.Severity),
			ConfidencePct: inc.ConfidencePct,
		})
	}

	type rankedView struct {
		incidentView
		Score float64        `json:"score"`
		Level priority.Level `json:"level"`
		Rank  int            `json:"rank"`
	}
	ranked := priority.Rank(rankables)
	views := make([]rankedView, 0, len(ranked))
	for _, r := range ranked {
		views = append(views, rankedView{
			incidentView: newIncidentView(byID[r.ID]),
			Score:        r.Score,
			Level:        r.Level,
			Rank:         r.Rank,
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"count":   len(views),
		"ranking": views,
	})
}
