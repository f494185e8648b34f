// Package compilations manages admin-curated event collections.
package compilations

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/paging"
)

var ErrBlankTitle = apperr.Validation("compilation title must not be blank")

// Store is the compilation persistence the service needs.
type Store interface {
	Create(ctx context.Context, c *models.Compilation) error
	Update(ctx context.Context, c *models.Compilation) error
	ReplaceEvents(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Compilation, error)
	List(ctx context.Context, pinned *bool, page paging.Params) ([]models.Compilation, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventEnricher loads events with their confirmed counts and views.
type EventEnricher interface {
	EnrichByIDs(ctx context.Context, ids []uuid.UUID) ([]events.EventView, error)
}

// View is a compilation with its events expanded.
type View struct {
	ID     uuid.UUID          `json:"id"`
	Title  string             `json:"title"`
	Pinned bool               `json:"pinned"`
	Events []events.EventView `json:"events"`
}

// Input describes a new compilation.
type Input struct {
	Title    string
	Pinned   bool
	EventIDs []uuid.UUID
}

// Patch holds optional compilation edits. A non-nil EventIDs replaces the whole set.
type Patch struct {
	Title    *string
	Pinned   *bool
	EventIDs *[]uuid.UUID
}

// Service implements compilation management.
type Service struct {
	store  Store
	tx     Transactor
	events EventEnricher
	logger *zap.Logger
}

// NewService creates a compilation service.
func NewService(store Store, tx Transactor, ev EventEnricher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tx: tx, events: ev, logger: logger}
}

// Create stores a compilation and its event links.
func (s *Service) Create(ctx context.Context, in Input) (*View, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrBlankTitle
	}
	c := &models.Compilation{Title: in.Title, Pinned: in.Pinned, EventIDs: dedupe(in.EventIDs)}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, c); err != nil {
			return err
		}
		return s.store.ReplaceEvents(ctx, c.ID, c.EventIDs)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("compilation created", zap.String("compilation_id", c.ID.String()), zap.Int("events", len(c.EventIDs)))
	return s.view(ctx, c)
}

// Update applies p to compilation id.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*View, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, ErrBlankTitle
	}
	var c *models.Compilation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.store.GetByID(ctx, id); err != nil {
			return err
		}
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.Pinned != nil {
			c.Pinned = *p.Pinned
		}
		if err := s.store.Update(ctx, c); err != nil {
			return err
		}
		if p.EventIDs != nil {
			c.EventIDs = dedupe(*p.EventIDs)
			return s.store.ReplaceEvents(ctx, id, c.EventIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// Delete removes compilation id.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("compilation deleted", zap.String("compilation_id", id.String()))
	return nil
}

// Get returns one compilation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// List pages through compilations. Events of the whole page are loaded in one batch.
func (s *Service) List(ctx context.Context, pinned *bool, page paging.Params) ([]View, error) {
	list, err := s.store.List(ctx, pinned, page)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, c := range list {
		ids = append(ids, c.EventIDs...)
	}
	byID, err := s.loadEvents(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	out := make([]View, len(list))
	for i := range list {
		out[i] = assemble(&list[i], byID)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, c *models.Compilation) (*View, error) {
	byID, err := s.loadEvents(ctx, c.EventIDs)
	if err != nil {
		return nil, err
	}
	v := assemble(c, byID)
	return &v, nil
}

func (s *Service) loadEvents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]events.EventView, error) {
	byID := map[uuid.UUID]events.EventView{}
	if len(ids) == 0 {
		return byID, nil
	}
	list, err := s.events.EnrichByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		byID[e.ID] = e
	}
	return byID, nil
}

func assemble(c *models.Compilation, byID map[uuid.UUID]events.EventView) View {
	v := View{ID: c.ID, Title: c.Title, Pinned: c.Pinned, Events: []events.EventView{}}
	for _, id := range c.EventIDs {
		if e, ok := byID[id]; ok {
			v.Events = append(v.Events, e)
		}
	}
	return v
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
