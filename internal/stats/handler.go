package stats

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

// HitStore is the persistence the stats service needs.
type HitStore interface {
	Save(ctx context.Context, h *models.EndpointHit) error
	Aggregate(ctx context.Context, start, end time.Time, uris []string, unique bool) ([]models.ViewStats, error)
}

// Handler serves the stats service endpoints.
type Handler struct {
	store  HitStore
	logger *zap.Logger
}

// NewHandler creates a stats handler.
func NewHandler(store HitStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Hit handles POST /hit.
func (h *Handler) Hit(c *gin.Context) {
	var req HitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ts, err := models.ParseDateTime(req.Timestamp)
	if err != nil {
		response.BadRequest(c, "invalid timestamp")
		return
	}
	hit := &models.EndpointHit{App: req.App, URI: req.URI, IP: req.IP, Timestamp: ts}
	if err := h.store.Save(c.Request.Context(), hit); err != nil {
		h.logger.Error("save hit", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Created(c, hit)
}

// Stats handles GET /stats?start&end&uris&unique.
func (h *Handler) Stats(c *gin.Context) {
	start, end, err := parseRange(c.Query("start"), c.Query("end"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var uris []string
	for _, raw := range c.QueryArray("uris") {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				uris = append(uris, u)
			}
		}
	}
	unique := false
	if v := c.Query("unique"); v != "" {
		unique, err = strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "invalid unique")
			return
		}
	}
	list, err := h.store.Aggregate(c.Request.Context(), start, end, uris, unique)
	if err != nil {
		h.logger.Error("aggregate hits", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, apperr.Validation("start and end are required")
	}
	start, err := models.ParseDateTime(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid start")
	}
	end, err := models.ParseDateTime(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid end")
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperr.Validation("start must not be after end")
	}
	return start, end, nil
}
