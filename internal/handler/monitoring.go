package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Duinho/SignalWatch/internal/monitor"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
	"github.com/Duinho/SignalWatch/internal/repository"
)

type MonitoringHandler struct {
	BaseCtx   context.Context
	Scheduler *monitor.Scheduler
	Adaptive  *monitor.Controller
	Policies  *monitor.PolicySet
	Runs      repository.RunStore
	Alerts    repository.AlertStore
	Feed      *newsfeed.Client
}

func (h *MonitoringHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/monitoring")
	group.GET("/status", h.status)
	group.POST("/start", h.start)
	group.POST("/stop", h.stop)
	group.POST("/run-once", h.runOnce)
	group.GET("/runs", h.listRuns)
	group.GET("/metrics", h.metrics)
	group.GET("/policies", h.listPolicies)
	group.GET("/adaptive", h.adaptiveState)
	group.POST("/adaptive/enabled", h.setAdaptiveEnabled)
	group.GET("/adaptive/:policy", h.policyState)
	group.PUT("/adaptive/:policy", h.updateProfile)
	group.POST("/adaptive/:policy/reset", h.resetProfile)

	r.GET("/api/v1/alerts", h.listAlerts)
}

func (h *MonitoringHandler) status(c *gin.Context) {
	Ok(c, h.Scheduler.Status(), nil)
}

func (h *MonitoringHandler) start(c *gin.Context) {
	base := h.BaseCtx
	if base == nil {
		base = context.Background()
	}
	h.Scheduler.Start(base)
	Ok(c, gin.H{"running": h.Scheduler.Running()}, nil)
}

func (h *MonitoringHandler) stop(c *gin.Context) {
	h.Scheduler.Stop()
	Ok(c, gin.H{"running": h.Scheduler.Running()}, nil)
}

func (h *MonitoringHandler) runOnce(c *gin.Context) {
	record, err := h.Scheduler.RunOnce(c.Request.Context())
	if errors.Is(err, monitor.ErrRunInProgress) {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, record, nil)
}

func (h *MonitoringHandler) listRuns(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	source := strings.TrimSpace(c.Query("source"))
	records, used, err := h.Scheduler.RecentRuns(c.Request.Context(), limit, source)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, records, map[string]any{"source": used, "count": len(records)})
}

func (h *MonitoringHandler) metrics(c *gin.Context) {
	var since *time.Time
	if hours := intQuery(c, "hours", 0); hours > 0 {
		t := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		since = &t
	}
	payload := gin.H{}
	if h.Runs != nil {
		runMetrics, err := h.Runs.RunMetrics(c.Request.Context(), since)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		payload["runs"] = runMetrics
	}
	if h.Alerts != nil {
		alertMetrics, err := h.Alerts.AlertMetrics(c.Request.Context(), since)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		payload["alerts"] = alertMetrics
	}
	if h.Feed != nil {
		payload["newsfeed"] = h.Feed.MetricsSnapshot()
	}
	Ok(c, payload, nil)
}

func (h *MonitoringHandler) listPolicies(c *gin.Context) {
	windows := h.Policies.Windows()
	out := make([]gin.H, 0, len(windows))
	for _, window := range windows {
		out = append(out, gin.H{
			"name":     window.Name,
			"start":    formatDayMinute(window.StartMin),
			"end":      formatDayMinute(window.EndMin),
			"interval": window.Interval.String(),
		})
	}
	Ok(c, out, nil)
}

func (h *MonitoringHandler) adaptiveState(c *gin.Context) {
	Ok(c, gin.H{
		"enabled":  h.Adaptive.Enabled(),
		"policies": h.Adaptive.Snapshot(),
	}, nil)
}

func (h *MonitoringHandler) setAdaptiveEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	h.Adaptive.SetEnabled(body.Enabled)
	Ok(c, gin.H{"enabled": h.Adaptive.Enabled()}, nil)
}

func (h *MonitoringHandler) policyState(c *gin.Context) {
	state, err := h.Adaptive.State(c.Param("policy"))
	if errors.Is(err, monitor.ErrUnknownPolicy) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, state, nil)
}

func (h *MonitoringHandler) updateProfile(c *gin.Context) {
	var profile monitor.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err := h.Adaptive.Update(c.Param("policy"), profile)
	if errors.Is(err, monitor.ErrUnknownPolicy) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if errors.Is(err, monitor.ErrInvalidProfile) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	state, _ := h.Adaptive.State(c.Param("policy"))
	Ok(c, state, nil)
}

func (h *MonitoringHandler) resetProfile(c *gin.Context) {
	err := h.Adaptive.Reset(c.Param("policy"))
	if errors.Is(err, monitor.ErrUnknownPolicy) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	state, _ := h.Adaptive.State(c.Param("policy"))
	Ok(c, state, nil)
}

func (h *MonitoringHandler) listAlerts(c *gin.Context) {
	if h.Alerts == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListAlertsParams{
		Limit:     limit,
		Offset:    offset,
		RunID:     strQueryPtr(c, "run_id"),
		StockCode: strQueryPtr(c, "stock_code"),
		Channel:   strQueryPtr(c, "channel"),
		MinScore:  intQueryPtr(c, "min_score"),
	}
	if hours := intQuery(c, "hours", 0); hours > 0 {
		t := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		params.Since = &t
	}
	items, err := h.Alerts.ListAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Alerts.CountAlerts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func formatDayMinute(minute int) string {
	return time.Date(2000, 1, 1, minute/60, minute%60, 0, 0, time.UTC).Format("15:04")
}
