// Package requests admits users to events. Every decision that reads an event's occupancy and
// then writes request statuses runs in one transaction holding the event's row lock.
package requests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
)

var (
	ErrRequestNotFound    = apperr.NotFound("participation request not found")
	ErrEventNotFound      = apperr.NotFound("event not found")
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrInitiatorRequest   = apperr.Conflict("initiator cannot request participation in own event")
	ErrEventNotPublished  = apperr.Conflict("event is not published")
	ErrDuplicateRequest   = apperr.Conflict("participation request already exists")
	ErrParticipantLimit   = apperr.Conflict("participant limit reached")
	ErrRequestNotPending  = apperr.Conflict("request must have status PENDING")
	ErrCancelConfirmed    = apperr.Conflict("confirmed participation cannot be canceled")
	ErrInvalidTarget      = apperr.Validation("status must be CONFIRMED or REJECTED")
	ErrDuplicateRequestID = apperr.Validation("request ids must be unique")
	ErrNoRequestIDs       = apperr.Validation("request ids must not be empty")
)

// Transactor runs fn as one atomic unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventLocker reads an event and holds its lock for the rest of the transaction.
type EventLocker interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ExistsByIDAndInitiator(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// UserChecker reports whether a user exists.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Store is the request persistence the allocator needs.
type Store interface {
	Create(ctx context.Context, r *models.ParticipationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ParticipationRequest, error)
	CountByEventAndStatus(ctx context.Context, eventID uuid.UUID, statuses ...models.RequestStatus) (int, error)
	FindByIDsAndEvent(ctx context.Context, ids []uuid.UUID, eventID uuid.UUID) ([]models.ParticipationRequest, error)
	ExistsByRequesterAndEvent(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
	SaveAll(ctx context.Context, list []models.ParticipationRequest) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.ParticipationRequest, error)
	ListByRequester(ctx context.Context, userID uuid.UUID) ([]models.ParticipationRequest, error)
}

// StatusUpdate is the initiator's batch decision.
type StatusUpdate struct {
	RequestIDs []uuid.UUID
	Status     models.RequestStatus
}

// StatusUpdateResult splits a batch by outcome, each list in the caller's order.
type StatusUpdateResult struct {
	Confirmed []models.ParticipationRequest `json:"confirmed_requests"`
	Rejected  []models.ParticipationRequest `json:"rejected_requests"`
}

// Allocator creates, confirms and cancels participation requests without exceeding event capacity.
type Allocator struct {
	tx     Transactor
	events EventLocker
	users  UserChecker
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewAllocator creates an allocator.
func NewAllocator(tx Transactor, events EventLocker, users UserChecker, store Store, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{tx: tx, events: events, users: users, store: store, now: time.Now, logger: logger}
}

// Create files userID's request for eventID. Unlimited events and events without moderation
// confirm immediately; otherwise the request waits as PENDING.
func (a *Allocator) Create(ctx context.Context, userID, eventID uuid.UUID) (*models.ParticipationRequest, error) {
	ok, err := a.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	var created *models.ParticipationRequest
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := a.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.InitiatorID == userID {
			return ErrInitiatorRequest
		}
		if e.State != models.EventStatePublished {
			return ErrEventNotPublished
		}
		dup, err := a.store.ExistsByRequesterAndEvent(ctx, userID, eventID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateRequest
		}
		if !e.Unlimited() {
			held, err := a.store.CountByEventAndStatus(ctx, eventID, models.RequestStatusPending, models.RequestStatusConfirmed)
			if err != nil {
				return err
			}
			if held >= e.ParticipantLimit {
				return ErrParticipantLimit
			}
		}

		r := &models.ParticipationRequest{
			EventID:     eventID,
			RequesterID: userID,
			Created:     a.now(),
			Status:      models.RequestStatusPending,
		}
		if e.Unlimited() || !e.RequestModeration {
			r.Status = models.RequestStatusConfirmed
		}
		if err := a.store.Create(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("participation requested",
		zap.String("request_id", created.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("status", string(created.Status)))
	return created, nil
}

// UpdateStatuses applies the initiator's decision to a batch of PENDING requests. The whole
// batch fails if any request is missing or not PENDING.
func (a *Allocator) UpdateStatuses(ctx context.Context, initiatorID, eventID uuid.UUID, upd StatusUpdate) (*StatusUpdateResult, error) {
	if upd.Status != models.RequestStatusConfirmed && upd.Status != models.RequestStatusRejected {
		return nil, ErrInvalidTarget
	}
	if len(upd.RequestIDs) == 0 {
		return nil, ErrNoRequestIDs
	}
	seen := make(map[uuid.UUID]struct{}, len(upd.RequestIDs))
	for _, id := range upd.RequestIDs {
		if _, ok := seen[id]; ok {
			return nil, ErrDuplicateRequestID
		}
		seen[id] = struct{}{}
	}

	var result *StatusUpdateResult
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := a.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.InitiatorID != initiatorID {
			return ErrEventNotFound
		}
		remaining := -1
		if !e.Unlimited() {
			confirmed, err := a.store.CountByEventAndStatus(ctx, eventID, models.RequestStatusConfirmed)
			if err != nil {
				return err
			}
			remaining = e.ParticipantLimit - confirmed
			if remaining <= 0 {
				return ErrParticipantLimit
			}
		}

		found, err := a.store.FindByIDsAndEvent(ctx, upd.RequestIDs, eventID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]models.ParticipationRequest, len(found))
		for _, r := range found {
			byID[r.ID] = r
		}
		ordered := make([]models.ParticipationRequest, 0, len(upd.RequestIDs))
		for _, id := range upd.RequestIDs {
			r, ok := byID[id]
			if !ok {
				return ErrRequestNotFound
			}
			if r.Status != models.RequestStatusPending {
				return ErrRequestNotPending
			}
			ordered = append(ordered, r)
		}

		result = allocate(ordered, upd.Status, remaining)
		changed := append(append([]models.ParticipationRequest{}, result.Confirmed...), result.Rejected...)
		return a.store.SaveAll(ctx, changed)
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("participation requests updated",
		zap.String("event_id", eventID.String()),
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("rejected", len(result.Rejected)))
	return result, nil
}

// allocate walks requests in order. For CONFIRMED it confirms while capacity remains and
// rejects the rest; remaining < 0 means unlimited. For REJECTED everything is rejected.
func allocate(requests []models.ParticipationRequest, target models.RequestStatus, remaining int) *StatusUpdateResult {
	res := &StatusUpdateResult{
		Confirmed: []models.ParticipationRequest{},
		Rejected:  []models.ParticipationRequest{},
	}
	for _, r := range requests {
		if target == models.RequestStatusConfirmed && remaining != 0 {
			r.Status = models.RequestStatusConfirmed
			res.Confirmed = append(res.Confirmed, r)
			if remaining > 0 {
				remaining--
			}
			continue
		}
		r.Status = models.RequestStatusRejected
		res.Rejected = append(res.Rejected, r)
	}
	return res
}

// Cancel withdraws userID's own request. Confirmed participation stays.
func (a *Allocator) Cancel(ctx context.Context, userID, requestID uuid.UUID) (*models.ParticipationRequest, error) {
	r, err := a.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.RequesterID != userID {
		return nil, ErrRequestNotFound
	}

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := a.lockEvent(ctx, r.EventID); err != nil {
			return err
		}
		current, err := a.store.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status == models.RequestStatusConfirmed {
			return ErrCancelConfirmed
		}
		if current.Status == models.RequestStatusCanceled {
			r = current
			return nil
		}
		if err := a.store.UpdateStatus(ctx, requestID, models.RequestStatusCanceled); err != nil {
			return err
		}
		current.Status = models.RequestStatusCanceled
		r = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("participation request canceled", zap.String("request_id", requestID.String()))
	return r, nil
}

// ListForEvent returns all requests on an event the caller initiated.
func (a *Allocator) ListForEvent(ctx context.Context, initiatorID, eventID uuid.UUID) ([]models.ParticipationRequest, error) {
	ok, err := a.events.ExistsByIDAndInitiator(ctx, eventID, initiatorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEventNotFound
	}
	return a.store.ListByEvent(ctx, eventID)
}

// ListForUser returns the requests userID filed.
func (a *Allocator) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ParticipationRequest, error) {
	ok, err := a.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return a.store.ListByRequester(ctx, userID)
}

func (a *Allocator) lockEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := a.events.GetForUpdate(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, ErrEventNotFound
	}
	return e, err
}
