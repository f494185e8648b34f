package events

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/pkg/paging"
)

// SortOrder selects how public search results are ranked.
type SortOrder string

const (
	SortByEventDate SortOrder = "EVENT_DATE"
	SortByViews     SortOrder = "VIEWS"
)

var ErrUnknownSort = apperr.Validation("sort must be EVENT_DATE or VIEWS")

// ParseSortOrder maps a query value to a SortOrder. Empty means by event date.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return SortByEventDate, nil
	case SortByEventDate, SortByViews:
		return o, nil
	default:
		return "", ErrUnknownSort
	}
}

// PublicFilter narrows the public search. Only published events are ever returned.
type PublicFilter struct {
	Text          string
	Categories    []uuid.UUID
	Paid          *bool
	RangeStart    *time.Time
	RangeEnd      *time.Time
	OnlyAvailable bool
	Sort          SortOrder
	Page          paging.Params
}

// PublicSearch returns one page of published events matching f and records the listing view.
// Without a date range only upcoming events match.
func (s *Service) PublicSearch(ctx context.Context, f PublicFilter, clientIP string) ([]EventView, error) {
	if f.RangeStart != nil && f.RangeEnd != nil && f.RangeStart.After(*f.RangeEnd) {
		return nil, ErrInvalidRange
	}
	if f.Sort == "" {
		f.Sort = SortByEventDate
	}
	if f.Sort != SortByEventDate && f.Sort != SortByViews {
		return nil, ErrUnknownSort
	}
	if f.RangeStart == nil && f.RangeEnd == nil {
		now := s.now()
		f.RangeStart = &now
	}

	s.recordHit(ctx, stats.EventsURI, clientIP)

	if f.Sort == SortByEventDate {
		list, err := s.store.SearchPublic(ctx, f, true)
		if err != nil {
			return nil, err
		}
		return s.Enrich(ctx, list)
	}

	// Popularity lives outside the database, so rank the whole match set before paging.
	list, err := s.store.SearchPublic(ctx, f, false)
	if err != nil {
		return nil, err
	}
	views, err := s.Enrich(ctx, list)
	if err != nil {
		return nil, err
	}
	rankByViews(views)
	return paging.Slice(views, f.Page), nil
}

// rankByViews orders most viewed first; ties keep the earlier event first.
func rankByViews(list []EventView) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Views != list[j].Views {
			return list[i].Views > list[j].Views
		}
		return list[i].EventDate.Before(list[j].EventDate)
	})
}

// ParseStates maps state tokens, rejecting unknown ones.
func ParseStates(raw []string) ([]models.EventState, error) {
	out := make([]models.EventState, 0, len(raw))
	for _, r := range raw {
		st := models.EventState(r)
		if !st.Valid() {
			return nil, apperr.Validationf("unknown event state %q", r)
		}
		out = append(out, st)
	}
	return out, nil
}
