package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mosas2000/sprintfund/internal/models"
	"github.com/Mosas2000/sprintfund/internal/services"
)

// snapshotOr503 fetches the latest snapshot or writes a 503 when no refresh
// has succeeded yet. The last load error, if any, rides along so clients can
// distinguish "starting up" from "upstream broken".
func (h *Handler) snapshotOr503(c *gin.Context) (*services.Snapshot, bool) {
	snapshot, ok := h.Pipeline.Snapshot()
	if ok {
		return snapshot, true
	}

	body := gin.H{"error": "no analysis snapshot available yet"}
	if err := h.Pipeline.LastError(); err != nil {
		body["last_error"] = err.Error()
	}
	c.JSON(http.StatusServiceUnavailable, body)
	return nil, false
}

// GetTimeSeries returns aggregated buckets at ?interval=day|week|month
// (default week), re-bucketed on demand from the latest snapshot.
func (h *Handler) GetTimeSeries(c *gin.Context) {
	interval := models.AggregationInterval(c.DefaultQuery("interval", string(models.IntervalWeek)))
	switch interval {
	case models.IntervalDay, models.IntervalWeek, models.IntervalMonth:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "interval must be day, week or month"})
		return
	}

	data, ok := h.Pipeline.AggregateSeries(interval)
	if !ok {
		h.snapshotOr503(c)
		return
	}
	c.JSON(http.StatusOK, data)
}

// GetAnomalies returns flagged proposals, ordered by severity then id.
// Supports ?severity= and ?type= filters.
func (h *Handler) GetAnomalies(c *gin.Context) {
	snapshot, ok := h.snapshotOr503(c)
	if !ok {
		return
	}

	anomalies := snapshot.Anomalies
	if severity := c.Query("severity"); severity != "" {
		filtered := make([]models.Anomaly, 0, len(anomalies))
		for _, a := range anomalies {
			if string(a.Severity) == severity {
				filtered = append(filtered, a)
			}
		}
		anomalies = filtered
	}
	if typ := c.Query("type"); typ != "" {
		filtered := make([]models.Anomaly, 0, len(anomalies))
		for _, a := range anomalies {
			if string(a.Type) == typ {
				filtered = append(filtered, a)
			}
		}
		anomalies = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"anomalies":    anomalies,
		"total":        len(anomalies),
		"refreshed_at": snapshot.RefreshedAt,
	})
}

// GetInsights returns generated findings, highest priority first.
func (h *Handler) GetInsights(c *gin.Context) {
	snapshot, ok := h.snapshotOr503(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"insights":     snapshot.Insights,
		"total":        len(snapshot.Insights),
		"refreshed_at": snapshot.RefreshedAt,
	})
}

// GetRecommendations returns scored follow-up actions, best first.
// Supports ?limit= on top of the configured recommendation limit.
func (h *Handler) GetRecommendations(c *gin.Context) {
	snapshot, ok := h.snapshotOr503(c)
	if !ok {
		return
	}

	recommendations := snapshot.Recommendations
	total := len(recommendations)

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(recommendations) {
			recommendations = recommendations[:limit]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": recommendations,
		"total":           total,
		"refreshed_at":    snapshot.RefreshedAt,
	})
}

// TriggerRefresh recomputes the snapshot synchronously. A failed refresh
// keeps the previous snapshot serving and reports the failure.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	started := time.Now()
	if err := h.Pipeline.Refresh(c.Request.Context()); err != nil {
		status := http.StatusBadGateway
		body := gin.H{"error": err.Error()}
		if snapshot, ok := h.Pipeline.Snapshot(); ok {
			body["serving_snapshot_from"] = snapshot.RefreshedAt
		}
		c.JSON(status, body)
		return
	}

	snapshot, _ := h.Pipeline.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"proposals":    len(snapshot.Proposals),
		"duration_ms":  time.Since(started).Milliseconds(),
		"refreshed_at": snapshot.RefreshedAt,
	})
}
