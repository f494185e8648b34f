package categories

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/paging"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// Store is the category persistence the handler needs.
type Store interface {
	Create(ctx context.Context, c *models.Category) error
	Rename(ctx context.Context, id uuid.UUID, name string) (*models.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context, page paging.Params) ([]models.Category, error)
}

// CategoryRequest is the body for creating or renaming a category.
type CategoryRequest struct {
	Name string `json:"name" binding:"required,min=1,max=50"`
}

// Handler serves category endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a category handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Create handles POST /admin/categories.
func (h *Handler) Create(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat := &models.Category{Name: req.Name}
	if err := h.store.Create(c.Request.Context(), cat); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cat)
}

// Update handles PATCH /admin/categories/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.store.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cat)
}

// Delete handles DELETE /admin/categories/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get handles GET /categories/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	cat, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cat)
}

// List handles GET /categories?from&size.
func (h *Handler) List(c *gin.Context) {
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.store.List(c.Request.Context(), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
