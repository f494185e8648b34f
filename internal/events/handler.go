package events

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/paging"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/utils"
)

// CreateEventRequest is the body for POST /users/me/events. EventDate uses models.DateTimeLayout or RFC3339.
type CreateEventRequest struct {
	Title             string          `json:"title" binding:"required,min=3,max=120"`
	Annotation        string          `json:"annotation" binding:"required,min=20,max=2000"`
	Description       string          `json:"description" binding:"required,min=20,max=7000"`
	CategoryID        string          `json:"category_id" binding:"required,uuid"`
	EventDate         string          `json:"event_date" binding:"required"`
	Location          models.Location `json:"location"`
	Paid              bool            `json:"paid"`
	ParticipantLimit  int             `json:"participant_limit"`
	RequestModeration *bool           `json:"request_moderation"`
}

// UpdateEventRequest is the body for PATCH on an event. Absent fields are left unchanged.
type UpdateEventRequest struct {
	Title             *string          `json:"title" binding:"omitempty,min=3,max=120"`
	Annotation        *string          `json:"annotation" binding:"omitempty,min=20,max=2000"`
	Description       *string          `json:"description" binding:"omitempty,min=20,max=7000"`
	CategoryID        *string          `json:"category_id" binding:"omitempty,uuid"`
	EventDate         *string          `json:"event_date"`
	Location          *models.Location `json:"location"`
	Paid              *bool            `json:"paid"`
	ParticipantLimit  *int             `json:"participant_limit"`
	RequestModeration *bool            `json:"request_moderation"`
	StateAction       *string          `json:"state_action"`
}

func (r UpdateEventRequest) patch() (Patch, error) {
	p := Patch{
		Title:             r.Title,
		Annotation:        r.Annotation,
		Description:       r.Description,
		Location:          r.Location,
		Paid:              r.Paid,
		ParticipantLimit:  r.ParticipantLimit,
		RequestModeration: r.RequestModeration,
	}
	if r.CategoryID != nil {
		id := uuid.MustParse(*r.CategoryID)
		p.CategoryID = &id
	}
	if r.EventDate != nil {
		t, err := models.ParseDateTime(*r.EventDate)
		if err != nil {
			return Patch{}, apperr.Validationf("invalid event_date %q", *r.EventDate)
		}
		p.EventDate = &t
	}
	if r.StateAction != nil {
		a, err := ParseStateAction(*r.StateAction)
		if err != nil {
			return Patch{}, err
		}
		p.StateAction = &a
	}
	return p, nil
}

// Handler serves event endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an event handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /users/me/events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := models.ParseDateTime(req.EventDate)
	if err != nil {
		response.BadRequest(c, "invalid event_date")
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), NewEvent{
		Title:             req.Title,
		Annotation:        req.Annotation,
		Description:       req.Description,
		CategoryID:        uuid.MustParse(req.CategoryID),
		EventDate:         date,
		Location:          req.Location,
		Paid:              req.Paid,
		ParticipantLimit:  req.ParticipantLimit,
		RequestModeration: req.RequestModeration,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ev)
}

// ListMine handles GET /users/me/events.
func (h *Handler) ListMine(c *gin.Context) {
	page, err := paging.Parse(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListByInitiator(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetMine handles GET /users/me/events/:id.
func (h *Handler) GetMine(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	ev, err := h.svc.GetByInitiator(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// UpdateMine handles PATCH /users/me/events/:id.
func (h *Handler) UpdateMine(c *gin.Context) {
	id, p, ok := h.bindPatch(c)
	if !ok {
		return
	}
	ev, err := h.svc.UpdateByUser(c.Request.Context(), middleware.UserID(c), id, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// AdminUpdate handles PATCH /admin/events/:id.
func (h *Handler) AdminUpdate(c *gin.Context) {
	id, p, ok := h.bindPatch(c)
	if !ok {
		return
	}
	ev, err := h.svc.UpdateByAdmin(c.Request.Context(), id, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

func (h *Handler) bindPatch(c *gin.Context) (uuid.UUID, Patch, bool) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return uuid.Nil, Patch{}, false
	}
	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return uuid.Nil, Patch{}, false
	}
	p, err := req.patch()
	if err != nil {
		response.Error(c, err)
		return uuid.Nil, Patch{}, false
	}
	return id, p, true
}

// AdminSearch handles GET /admin/events?users=&states=&categories=&rangeStart=&rangeEnd=&from=&size=.
func (h *Handler) AdminSearch(c *gin.Context) {
	var f AdminFilter
	var err error
	if f.Users, err = utils.QueryUUIDs(c, "users"); err != nil {
		response.Error(c, err)
		return
	}
	if f.States, err = ParseStates(utils.QueryList(c, "states")); err != nil {
		response.Error(c, err)
		return
	}
	if f.Categories, err = utils.QueryUUIDs(c, "categories"); err != nil {
		response.Error(c, err)
		return
	}
	if f.RangeStart, f.RangeEnd, err = queryRange(c); err != nil {
		response.Error(c, err)
		return
	}
	if f.Page, err = paging.Parse(c); err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.AdminSearch(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// PublicSearch handles GET /events?text=&categories=&paid=&rangeStart=&rangeEnd=&onlyAvailable=&sort=&from=&size=.
func (h *Handler) PublicSearch(c *gin.Context) {
	f := PublicFilter{Text: c.Query("text")}
	var err error
	if f.Categories, err = utils.QueryUUIDs(c, "categories"); err != nil {
		response.Error(c, err)
		return
	}
	if f.Paid, err = utils.QueryBool(c, "paid"); err != nil {
		response.Error(c, err)
		return
	}
	if f.RangeStart, f.RangeEnd, err = queryRange(c); err != nil {
		response.Error(c, err)
		return
	}
	onlyAvailable, err := utils.QueryBool(c, "onlyAvailable")
	if err != nil {
		response.Error(c, err)
		return
	}
	f.OnlyAvailable = onlyAvailable != nil && *onlyAvailable
	if f.Sort, err = ParseSortOrder(c.Query("sort")); err != nil {
		response.Error(c, err)
		return
	}
	if f.Page, err = paging.Parse(c); err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.PublicSearch(c.Request.Context(), f, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// PublicGet handles GET /events/:id.
func (h *Handler) PublicGet(c *gin.Context) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	ev, err := h.svc.PublicGet(c.Request.Context(), id, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

func queryRange(c *gin.Context) (start, end *time.Time, err error) {
	if start, err = utils.QueryTime(c, "rangeStart"); err != nil {
		return nil, nil, err
	}
	if end, err = utils.QueryTime(c, "rangeEnd"); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
