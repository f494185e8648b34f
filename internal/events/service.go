package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/pkg/paging"
)

// MinLeadTime is how far ahead of now an initiator must schedule an event.
const MinLeadTime = 2 * time.Hour

var (
	ErrEventDateTooSoon = apperr.Validation("event date must be at least 2 hours in the future")
	ErrEventDateInPast  = apperr.Validation("event date must not be in the past")
	ErrNegativeLimit    = apperr.Validation("participant limit must not be negative")
	ErrInvalidRange     = apperr.Validation("range start must not be after range end")

	ErrLimitBelowConfirmed = apperr.Conflict("participant limit is below the number of confirmed requests")
)

// Store is the event persistence the service needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetByIDIfState(ctx context.Context, id uuid.UUID, state models.EventState) (*models.Event, error)
	ListByInitiator(ctx context.Context, userID uuid.UUID, page paging.Params) ([]models.Event, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Event, error)
	Save(ctx context.Context, e *models.Event) error
	SearchAdmin(ctx context.Context, f AdminFilter) ([]models.Event, error)
	SearchPublic(ctx context.Context, f PublicFilter, paginate bool) ([]models.Event, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExistenceChecker reports whether a referenced row exists.
type ExistenceChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ConfirmedCounter counts CONFIRMED requests for many events in one query.
type ConfirmedCounter interface {
	CountConfirmedByEventIDs(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// EventView is an event with its live participation and popularity numbers.
type EventView struct {
	models.Event
	ConfirmedRequests int   `json:"confirmed_requests"`
	Views             int64 `json:"views"`
}

// NewEvent is the initiator's input for a new event.
type NewEvent struct {
	Title             string
	Annotation        string
	Description       string
	CategoryID        uuid.UUID
	EventDate         time.Time
	Location          models.Location
	Paid              bool
	ParticipantLimit  int
	RequestModeration *bool
}

// Patch holds optional edits. Blank strings leave the field unchanged.
type Patch struct {
	Title             *string
	Annotation        *string
	Description       *string
	CategoryID        *uuid.UUID
	EventDate         *time.Time
	Location          *models.Location
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool
	StateAction       *StateAction
}

// AdminFilter narrows the moderator's event search. Empty slices match everything.
type AdminFilter struct {
	Users      []uuid.UUID
	States     []models.EventState
	Categories []uuid.UUID
	RangeStart *time.Time
	RangeEnd   *time.Time
	Page       paging.Params
}

// Deps wires a Service.
type Deps struct {
	Store      Store
	Tx         Transactor
	Categories ExistenceChecker
	Users      ExistenceChecker
	Confirmed  ConfirmedCounter
	Views      stats.ViewCounter
	AppName    string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service implements the event lifecycle and public queries.
type Service struct {
	store      Store
	tx         Transactor
	categories ExistenceChecker
	users      ExistenceChecker
	confirmed  ConfirmedCounter
	views      stats.ViewCounter
	appName    string
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates an event service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Service{
		store:      d.Store,
		tx:         d.Tx,
		categories: d.Categories,
		users:      d.Users,
		confirmed:  d.Confirmed,
		views:      d.Views,
		appName:    d.AppName,
		now:        d.Clock,
		logger:     d.Logger,
	}
}

// Create stores a PENDING event owned by userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in NewEvent) (*EventView, error) {
	if in.EventDate.Before(s.now().Add(MinLeadTime)) {
		return nil, ErrEventDateTooSoon
	}
	if in.ParticipantLimit < 0 {
		return nil, ErrNegativeLimit
	}
	if err := s.mustExist(ctx, s.users, userID, ErrUserNotFound); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, s.categories, in.CategoryID, ErrCategoryNotFound); err != nil {
		return nil, err
	}
	e := &models.Event{
		Title:             in.Title,
		Annotation:        in.Annotation,
		Description:       in.Description,
		CategoryID:        in.CategoryID,
		InitiatorID:       userID,
		EventDate:         in.EventDate,
		Location:          in.Location,
		Paid:              in.Paid,
		ParticipantLimit:  in.ParticipantLimit,
		RequestModeration: true,
		State:             models.EventStatePending,
	}
	if in.RequestModeration != nil {
		e.RequestModeration = *in.RequestModeration
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("initiator_id", userID.String()))
	return &EventView{Event: *e}, nil
}

// ListByInitiator pages through the events userID created.
func (s *Service) ListByInitiator(ctx context.Context, userID uuid.UUID, page paging.Params) ([]EventView, error) {
	if err := s.mustExist(ctx, s.users, userID, ErrUserNotFound); err != nil {
		return nil, err
	}
	list, err := s.store.ListByInitiator(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	return s.Enrich(ctx, list)
}

// GetByInitiator returns one of userID's events. Other users' events are reported as missing.
func (s *Service) GetByInitiator(ctx context.Context, userID, eventID uuid.UUID) (*EventView, error) {
	e, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.InitiatorID != userID {
		return nil, ErrEventNotFound
	}
	return s.enrichOne(ctx, e)
}

// UpdateByUser applies an initiator's edits and optional transition atomically.
func (s *Service) UpdateByUser(ctx context.Context, userID, eventID uuid.UUID, p Patch) (*EventView, error) {
	now := s.now()
	if p.EventDate != nil && p.EventDate.Before(now.Add(MinLeadTime)) {
		return nil, ErrEventDateTooSoon
	}
	var updated *models.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.store.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if e.InitiatorID != userID {
			return ErrEventNotFound
		}
		if e.State == models.EventStatePublished {
			return ErrPublishedReadOnly
		}
		if err := s.applyPatch(ctx, e, p); err != nil {
			return err
		}
		if p.StateAction != nil {
			if err := ApplyUserAction(e, *p.StateAction); err != nil {
				return err
			}
		}
		if err := s.store.Save(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event updated by initiator", zap.String("event_id", eventID.String()), zap.String("state", string(updated.State)))
	return s.enrichOne(ctx, updated)
}

// UpdateByAdmin applies a moderator's edits and optional transition atomically.
func (s *Service) UpdateByAdmin(ctx context.Context, eventID uuid.UUID, p Patch) (*EventView, error) {
	now := s.now()
	if p.EventDate != nil && p.EventDate.Before(now) {
		return nil, ErrEventDateInPast
	}
	var updated *models.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.store.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if p.StateAction != nil {
			if err := ApplyAdminAction(e, *p.StateAction, now); err != nil {
				return err
			}
		}
		if err := s.applyPatch(ctx, e, p); err != nil {
			return err
		}
		if err := s.store.Save(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event updated by admin", zap.String("event_id", eventID.String()), zap.String("state", string(updated.State)))
	return s.enrichOne(ctx, updated)
}

// AdminSearch lists events in any state, latest event date first.
func (s *Service) AdminSearch(ctx context.Context, f AdminFilter) ([]EventView, error) {
	if f.RangeStart != nil && f.RangeEnd != nil && f.RangeStart.After(*f.RangeEnd) {
		return nil, ErrInvalidRange
	}
	list, err := s.store.SearchAdmin(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.Enrich(ctx, list)
}

// PublicGet returns a published event and records the view.
func (s *Service) PublicGet(ctx context.Context, eventID uuid.UUID, clientIP string) (*EventView, error) {
	e, err := s.store.GetByIDIfState(ctx, eventID, models.EventStatePublished)
	if err != nil {
		return nil, err
	}
	s.recordHit(ctx, stats.EventURI(eventID), clientIP)
	return s.enrichOne(ctx, e)
}

// EnrichByIDs loads the events among ids with their numbers.
func (s *Service) EnrichByIDs(ctx context.Context, ids []uuid.UUID) ([]EventView, error) {
	list, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.Enrich(ctx, list)
}

// Enrich attaches confirmed counts and views, one batched lookup each.
// A failing view counter yields zero views; a failing count query is an error.
func (s *Service) Enrich(ctx context.Context, list []models.Event) ([]EventView, error) {
	out := make([]EventView, len(list))
	if len(list) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(list))
	uris := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID
		uris[i] = stats.EventURI(e.ID)
	}
	confirmed, err := s.confirmed.CountConfirmedByEventIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := s.lookupViews(ctx, uris)
	for i, e := range list {
		out[i] = EventView{
			Event:             e,
			ConfirmedRequests: confirmed[e.ID],
			Views:             views[uris[i]],
		}
	}
	return out, nil
}

func (s *Service) enrichOne(ctx context.Context, e *models.Event) (*EventView, error) {
	list, err := s.Enrich(ctx, []models.Event{*e})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Service) lookupViews(ctx context.Context, uris []string) map[string]int64 {
	if s.views == nil {
		return map[string]int64{}
	}
	hits, err := s.views.GetHits(ctx, uris, true, stats.WindowUntil(s.now()))
	if err != nil {
		s.logger.Warn("view counts unavailable", zap.Int("uris", len(uris)), zap.Error(err))
		return map[string]int64{}
	}
	if hits == nil {
		return map[string]int64{}
	}
	return hits
}

func (s *Service) recordHit(ctx context.Context, uri, clientIP string) {
	if s.views == nil {
		return
	}
	s.views.RecordHit(ctx, stats.Hit{App: s.appName, URI: uri, IP: clientIP, Timestamp: s.now()})
}

func (s *Service) applyPatch(ctx context.Context, e *models.Event, p Patch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		e.Title = *p.Title
	}
	if p.Annotation != nil && strings.TrimSpace(*p.Annotation) != "" {
		e.Annotation = *p.Annotation
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) != "" {
		e.Description = *p.Description
	}
	if p.CategoryID != nil && *p.CategoryID != e.CategoryID {
		if err := s.mustExist(ctx, s.categories, *p.CategoryID, ErrCategoryNotFound); err != nil {
			return err
		}
		e.CategoryID = *p.CategoryID
	}
	if p.EventDate != nil {
		e.EventDate = *p.EventDate
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Paid != nil {
		e.Paid = *p.Paid
	}
	if p.ParticipantLimit != nil {
		limit := *p.ParticipantLimit
		if limit < 0 {
			return ErrNegativeLimit
		}
		if limit > 0 && limit != e.ParticipantLimit {
			// Runs under the event row lock, so no confirmation can land between count and save.
			counts, err := s.confirmed.CountConfirmedByEventIDs(ctx, []uuid.UUID{e.ID})
			if err != nil {
				return err
			}
			if counts[e.ID] > limit {
				return ErrLimitBelowConfirmed
			}
		}
		e.ParticipantLimit = limit
	}
	if p.RequestModeration != nil {
		e.RequestModeration = *p.RequestModeration
	}
	return nil
}

func (s *Service) mustExist(ctx context.Context, c ExistenceChecker, id uuid.UUID, missing *apperr.Error) error {
	ok, err := c.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return missing
	}
	return nil
}
