// Package paging parses offset-based page parameters from query strings.
package paging

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/backend/internal/apperr"
)

const (
	DefaultSize = 10
	MaxSize     = 1000
)

// Params is an offset window: skip From rows, return at most Size.
type Params struct {
	From int
	Size int
}

// Parse reads ?from and ?size. Missing values take defaults; negative from or non-positive size is a validation error.
func Parse(c *gin.Context) (Params, error) {
	p := Params{From: 0, Size: DefaultSize}
	if v := c.Query("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Params{}, apperr.Validationf("from must be a non-negative integer, got %q", v)
		}
		p.From = n
	}
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Params{}, apperr.Validationf("size must be a positive integer, got %q", v)
		}
		if n > MaxSize {
			n = MaxSize
		}
		p.Size = n
	}
	return p, nil
}

// Slice returns the window p of items.
func Slice[T any](items []T, p Params) []T {
	if p.From >= len(items) {
		return []T{}
	}
	end := p.From + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[p.From:end]
}
