package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch-go/internal/datastore"
)

func (c *Controller) initAnalyticsRoutes() {
	c.Group.GET("/public-stats", c.PublicStats)
	c.Group.GET("/analytics", c.Analytics, c.authenticate(), c.requireAuthority)
}

func severityCountMap(counts []datastore.SeverityCount) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Severity] = c.Count
	}
	return out
}

func statusCountMap(counts []datastore.StatusCount) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Status] = c.Count
	}
	return out
}

// PublicStats serves the aggregate counters shown on the public dashboard.
// No record details are exposed here, only totals.
func (c *Controller) PublicStats(ctx echo.Context) error {
	total, err := c.DS.TotalIncidents()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute statistics", 0)
	}
	bySeverity, err := c.DS.CountsBySeverity()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute statistics", 0)
	}
	byStatus, err := c.DS.CountsByStatus()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute statistics", 0)
	}
	avgDays, err := c.DS.AverageResolutionDays()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute statistics", 0)
	}

	statuses := statusCountMap(byStatus)
	return ctx.JSON(http.StatusOK, map[string]any{
		"total_reports":     total,
		"fixed":             statuses[datastore.StatusFixed],
		"in_progress":       statuses[datastore.StatusInProgress],
		"by_severity":       severityCountMap(bySeverity),
		"by_status":         statuses,
		"avg_response_days": avgDays,
	})
}

// Analytics serves the authority dashboard: the public aggregates plus the
// most recent records, jurisdiction-filtered for the caller.
func (c *Controller) Analytics(ctx echo.Context) error {
	total, err := c.DS.TotalIncidents()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute analytics", 0)
	}
	bySeverity, err := c.DS.CountsBySeverity()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute analytics", 0)
	}
	byStatus, err := c.DS.CountsByStatus()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute analytics", 0)
	}
	recent, err := c.DS.RecentIncidents(25)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute analytics", 0)
	}
	recent = c.visibleTo(c.caller(ctx), recent)

	return ctx.JSON(http.StatusOK, map[string]any{
		"total_reports": total,
		"by_severity":   severityCountMap(bySeverity),
		"by_status":     statusCountMap(byStatus),
		"recent":        incidentViews(recent),
	})
}
