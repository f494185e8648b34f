package comments

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/pkg/paging"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// CommentRequest is the body for creating or editing a comment.
type CommentRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// ReportRequest is the body for POST .../comments/:commentId/report.
type ReportRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Handler serves comment endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a comment handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func ids(c *gin.Context) (eventID, commentID uuid.UUID, err error) {
	if eventID, err = utils.ParamUUID(c, "id"); err != nil {
		return
	}
	commentID, err = utils.ParamUUID(c, "commentId")
	return
}

// Create handles POST /users/me/events/:id/comments.
func (h *Handler) Create(c *gin.Context) {
	eventID, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cm, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), eventID, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cm)
}

// Update handles PATCH /users/me/events/:id/comments/:commentId.
func (h *Handler) Update(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cm, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), eventID, commentID, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cm)
}

// Delete handles DELETE /users/me/events/:id/comments/:commentId.
func (h *Handler) Delete(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), eventID, commentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Report handles POST /users/me/events/:id/comments/:commentId/report.
func (h *Handler) Report(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req ReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	res, err := h.svc.Report(c.Request.Context(), middleware.UserID(c), eventID, commentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ListMine handles GET /users/me/events/:id/comments.
func (h *Handler) ListMine(c *gin.Context) {
	eventID, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListByAuthor(c.Request.Context(), middleware.UserID(c), &eventID, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id/comments/:commentId.
func (h *Handler) Get(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	cm, err := h.svc.Get(c.Request.Context(), eventID, commentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cm)
}

// ListByEvent handles GET /events/:id/comments.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListReported handles GET /admin/comments/reported.
func (h *Handler) ListReported(c *gin.Context) {
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListReported(c.Request.Context(), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListDeleted handles GET /admin/comments/deleted.
func (h *Handler) ListDeleted(c *gin.Context) {
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListDeleted(c.Request.Context(), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// AdminDelete handles DELETE /admin/events/:id/comments/:commentId.
func (h *Handler) AdminDelete(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.svc.AdminDelete(c.Request.Context(), eventID, commentID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore handles PATCH /admin/events/:id/comments/:commentId/restore.
func (h *Handler) Restore(c *gin.Context) {
	eventID, commentID, err := ids(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.svc.Restore(c.Request.Context(), eventID, commentID); err != nil {
		response.Error(c, err)
		return
	}
	cm, err := h.svc.Get(c.Request.Context(), eventID, commentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cm)
}
