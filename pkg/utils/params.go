package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
)

// ParamUUID parses the path parameter name as a UUID.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validationf("invalid %s", name)
	}
	return id, nil
}

// QueryList collects key from repeated and comma-separated query values.
func QueryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// QueryUUIDs parses QueryList(c, key) as UUIDs.
func QueryUUIDs(c *gin.Context, key string) ([]uuid.UUID, error) {
	raw := QueryList(c, key)
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, apperr.Validationf("invalid %s value %q", key, v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// QueryTime parses an optional date-time query value.
func QueryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := models.ParseDateTime(v)
	if err != nil {
		return nil, apperr.Validationf("invalid %s, expected %s", key, models.DateTimeLayout)
	}
	return &t, nil
}

// QueryBool parses an optional boolean query value.
func QueryBool(c *gin.Context, key string) (*bool, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validationf("invalid %s", key)
	}
	return &b, nil
}
