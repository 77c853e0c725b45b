package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/curator-backend/internal/http/response"
	"github.com/yungbote/curator-backend/internal/jobs/pipeline/curation_cycle"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/services"
)

type CycleHandler struct {
	jobs services.JobService
}

func NewCycleHandler(jobs services.JobService) *CycleHandler {
	return &CycleHandler{jobs: jobs}
}

type cycleRequest struct {
	Now           *time.Time `json:"now"`
	Day           string     `json:"day"`
	Budget        *int       `json:"budget"`
	BalanceBudget *int       `json:"balance_budget"`
	ForceApproval bool       `json:"force_approval"`
	SkipSchedule  bool       `json:"skip_schedule"`
	Window        string     `json:"window"`
}

func (r cycleRequest) payload() (map[string]any, error) {
	p := map[string]any{}
	if r.Now != nil {
		p["now"] = r.Now.UTC().Format(time.RFC3339)
	}
	if day := strings.TrimSpace(r.Day); day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, fmt.Errorf("day must be YYYY-MM-DD")
		}
		p["day"] = day
	}
	if r.Budget != nil {
		if *r.Budget < 0 {
			return nil, fmt.Errorf("budget must be >= 0")
		}
		p["budget"] = *r.Budget
	}
	if r.BalanceBudget != nil {
		p["balance_budget"] = *r.BalanceBudget
	}
	if w := strings.TrimSpace(r.Window); w != "" {
		if _, err := time.ParseDuration(w); err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		p["window"] = w
	}
	if r.ForceApproval {
		p["force_approval"] = true
	}
	if r.SkipSchedule {
		p["skip_schedule"] = true
	}
	return p, nil
}

// POST /api/cycles
func (h *CycleHandler) StartCycle(c *gin.Context) {
	var req cycleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dedupe := ""
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		dedupe = curation_cycle.JobType + ":manual:" + key
	}
	job, created, err := h.jobs.EnqueueCycleIfNeeded(dbctx.Context{Ctx: c.Request.Context()}, "api", dedupe, payload)
	if errors.Is(err, services.ErrCycleRunning) {
		response.RespondError(c, http.StatusConflict, "cycle_running", err)
		return
	}
	if err != nil {
		response.RespondServiceError(c, err, "enqueue_cycle_failed")
		return
	}
	if !created {
		response.RespondOK(c, gin.H{"job": job, "created": false})
		return
	}
	response.RespondAccepted(c, gin.H{"job": job, "created": true})
}

// GET /api/cycles
func (h *CycleHandler) ListCycles(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	jobs, err := h.jobs.ListRecent(dbctx.Context{Ctx: c.Request.Context()}, curation_cycle.JobType, limit)
	if err != nil {
		response.RespondServiceError(c, err, "list_cycles_failed")
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/cycles/:id
func (h *CycleHandler) GetCycle(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	job, err := h.jobs.GetByID(dbc, jobID)
	if err != nil {
		response.RespondServiceError(c, err, "load_cycle_failed")
		return
	}
	events, err := h.jobs.Events(dbc, jobID)
	if err != nil {
		response.RespondServiceError(c, err, "load_cycle_events_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job, "events": events})
}

// POST /api/cycles/:id/cancel
func (h *CycleHandler) CancelCycle(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Cancel(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondServiceError(c, err, "cancel_cycle_failed")
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
