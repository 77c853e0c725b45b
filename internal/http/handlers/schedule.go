package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curator-backend/internal/http/response"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/services"
)

type ScheduleHandler struct {
	schedule services.ScheduleService
}

func NewScheduleHandler(schedule services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// GET /api/schedule/:day
func (h *ScheduleHandler) GetDay(c *gin.Context) {
	view, err := h.schedule.Day(dbctx.Context{Ctx: c.Request.Context()}, c.Param("day"))
	if err != nil {
		response.RespondServiceError(c, err, "load_schedule_failed")
		return
	}
	response.RespondOK(c, gin.H{"schedule": view})
}

// POST /api/publications records that the publisher posted a slot's item.
// Replays of the same publication succeed.
func (h *ScheduleHandler) RecordPublication(c *gin.Context) {
	var in services.PublicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	slot, err := h.schedule.RecordPublication(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		response.RespondServiceError(c, err, "record_publication_failed")
		return
	}
	response.RespondOK(c, gin.H{"slot": slot})
}
