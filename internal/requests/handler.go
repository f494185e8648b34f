package requests

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// CreateRequest is the body for POST /users/me/requests.
type CreateRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
}

// StatusUpdateRequest is the body for PATCH /users/me/events/:id/requests.
type StatusUpdateRequest struct {
	RequestIDs []string `json:"request_ids" binding:"required,min=1,dive,uuid"`
	Status     string   `json:"status" binding:"required"`
}

// Handler serves participation request endpoints.
type Handler struct {
	alloc *Allocator
}

// NewHandler creates a participation request handler.
func NewHandler(alloc *Allocator) *Handler {
	return &Handler{alloc: alloc}
}

// Create handles POST /users/me/requests.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	pr, err := h.alloc.Create(c.Request.Context(), middleware.UserID(c), uuid.MustParse(req.EventID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pr)
}

// ListMine handles GET /users/me/requests.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.alloc.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Cancel handles PATCH /users/me/requests/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	pr, err := h.alloc.Cancel(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pr)
}

// ListForEvent handles GET /users/me/events/:id/requests.
func (h *Handler) ListForEvent(c *gin.Context) {
	eventID, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.alloc.ListForEvent(c.Request.Context(), middleware.UserID(c), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateStatuses handles PATCH /users/me/events/:id/requests.
func (h *Handler) UpdateStatuses(c *gin.Context) {
	eventID, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ids := make([]uuid.UUID, len(req.RequestIDs))
	for i, raw := range req.RequestIDs {
		ids[i] = uuid.MustParse(raw)
	}
	res, err := h.alloc.UpdateStatuses(c.Request.Context(), middleware.UserID(c), eventID, StatusUpdate{
		RequestIDs: ids,
		Status:     models.RequestStatus(req.Status),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
