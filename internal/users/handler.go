package users

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/paging"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// Store is the user persistence the admin handler needs.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	List(ctx context.Context, ids []uuid.UUID, page paging.Params) ([]models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewUserRequest is the body for POST /admin/users.
type NewUserRequest struct {
	Email string `json:"email" binding:"required,email,max=254"`
	Name  string `json:"name" binding:"required,min=2,max=250"`
}

// Handler serves admin user management.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a user handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Create handles POST /admin/users. The account has no password until the user registers a login.
func (h *Handler) Create(c *gin.Context) {
	var req NewUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u := &models.User{Email: req.Email, Name: req.Name, Role: models.RoleUser}
	if err := h.store.Create(c.Request.Context(), u); err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("user created", zap.String("user_id", u.ID.String()))
	response.Created(c, u)
}

// List handles GET /admin/users?ids&from&size.
func (h *Handler) List(c *gin.Context) {
	ids, err := utils.QueryUUIDs(c, "ids")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.store.List(c.Request.Context(), ids, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /admin/users/:id.
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
	h.logger.Info("user deleted", zap.String("user_id", id.String()))
	response.NoContent(c)
}
