package compilations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/pkg/paging"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// CreateRequest is the body for POST /admin/compilations.
type CreateRequest struct {
	Title  string   `json:"title" binding:"required,min=1,max=50"`
	Pinned bool     `json:"pinned"`
	Events []string `json:"events" binding:"omitempty,dive,uuid"`
}

// UpdateRequest is the body for PATCH /admin/compilations/:id.
type UpdateRequest struct {
	Title  *string   `json:"title" binding:"omitempty,min=1,max=50"`
	Pinned *bool     `json:"pinned"`
	Events *[]string `json:"events" binding:"omitempty,dive,uuid"`
}

// Handler serves compilation endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a compilation handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
}

// Create handles POST /admin/compilations.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.svc.Create(c.Request.Context(), Input{Title: req.Title, Pinned: req.Pinned, EventIDs: parseIDs(req.Events)})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// Update handles PATCH /admin/compilations/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := Patch{Title: req.Title, Pinned: req.Pinned}
	if req.Events != nil {
		ids := parseIDs(*req.Events)
		p.EventIDs = &ids
	}
	v, err := h.svc.Update(c.Request.Context(), id, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// Delete handles DELETE /admin/compilations/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get handles GET /compilations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// List handles GET /compilations?pinned=&from=&size=.
func (h *Handler) List(c *gin.Context) {
	pinned, err := utils.QueryBool(c, "pinned")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), pinned, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
