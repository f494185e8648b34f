package events

import (
	"fmt"
	"time"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
)

// StateAction is a requested lifecycle transition.
type StateAction string

const (
	ActionPublish      StateAction = "PUBLISH_EVENT"
	ActionReject       StateAction = "REJECT_EVENT"
	ActionSendToReview StateAction = "SEND_TO_REVIEW"
	ActionCancelReview StateAction = "CANCEL_REVIEW"
)

var (
	ErrUnknownAction     = apperr.Validation("unknown state action")
	ErrAdminOnlyAction   = apperr.Validation("state action is reserved for administrators")
	ErrUserOnlyAction    = apperr.Validation("state action is reserved for the event initiator")
	ErrPublishedReadOnly = apperr.Conflict("published event cannot be changed")
	ErrPublishNotPending = apperr.Conflict("only pending events can be published")
	ErrRejectPublished   = apperr.Conflict("published event cannot be rejected")
)

// ParseStateAction maps a wire token to a StateAction.
func ParseStateAction(s string) (StateAction, error) {
	switch a := StateAction(s); a {
	case ActionPublish, ActionReject, ActionSendToReview, ActionCancelReview:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// ApplyUserAction applies an initiator transition. Initiators may not touch a published event.
func ApplyUserAction(e *models.Event, a StateAction) error {
	if e.State == models.EventStatePublished {
		return ErrPublishedReadOnly
	}
	switch a {
	case ActionSendToReview:
		e.State = models.EventStatePending
	case ActionCancelReview:
		e.State = models.EventStateCanceled
	case ActionPublish, ActionReject:
		return ErrAdminOnlyAction
	default:
		return ErrUnknownAction
	}
	e.PublishedOn = nil
	return nil
}

// ApplyAdminAction applies a moderator transition at time now.
func ApplyAdminAction(e *models.Event, a StateAction, now time.Time) error {
	switch a {
	case ActionPublish:
		if e.State != models.EventStatePending {
			return ErrPublishNotPending
		}
		e.State = models.EventStatePublished
		e.PublishedOn = &now
	case ActionReject:
		if e.State == models.EventStatePublished {
			return ErrRejectPublished
		}
		e.State = models.EventStateCanceled
		e.PublishedOn = nil
	case ActionSendToReview, ActionCancelReview:
		return ErrUserOnlyAction
	default:
		return ErrUnknownAction
	}
	return nil
}
