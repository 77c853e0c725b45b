package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curator-backend/internal/http/response"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/services"
)

type ItemHandler struct {
	items services.ItemService
}

func NewItemHandler(items services.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

// POST /api/items
func (h *ItemHandler) InsertCandidate(c *gin.Context) {
	var in services.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	item, err := h.items.InsertCandidate(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		response.RespondServiceError(c, err, "insert_item_failed")
		return
	}
	response.RespondCreated(c, gin.H{"item": item})
}

// GET /api/items/:id
func (h *ItemHandler) GetItem(c *gin.Context) {
	item, err := h.items.GetByID(dbctx.Context{Ctx: c.Request.Context()}, c.Param("id"))
	if err != nil {
		response.RespondServiceError(c, err, "load_item_failed")
		return
	}
	response.RespondOK(c, gin.H{"item": item})
}
