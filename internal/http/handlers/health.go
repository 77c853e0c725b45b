package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curator-backend/internal/http/response"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
)

type QueueMonitor interface {
	Collect(ctx context.Context, now time.Time) (health.Snapshot, error)
	Assess(snap health.Snapshot, schedule *health.ScheduleSummary) health.Report
}

type HealthHandler struct {
	monitor QueueMonitor
	now     func() time.Time
}

func NewHealthHandler(monitor QueueMonitor) *HealthHandler {
	return &HealthHandler{monitor: monitor, now: time.Now}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/health
func (h *HealthHandler) QueueHealth(c *gin.Context) {
	if h.monitor == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "monitor_not_configured", nil)
		return
	}
	snap, err := h.monitor.Collect(c.Request.Context(), h.now().UTC())
	if err != nil {
		response.RespondServiceError(c, err, "collect_health_failed")
		return
	}
	response.RespondOK(c, gin.H{"health": h.monitor.Assess(snap, nil)})
}
