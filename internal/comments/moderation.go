package comments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/paging"
)

// ReportThreshold is the number of distinct reports that hides a comment.
const ReportThreshold = 10

var (
	ErrCommentNotFound   = apperr.NotFound("comment not found")
	ErrEventNotFound     = apperr.NotFound("event not found")
	ErrUserNotFound      = apperr.NotFound("user not found")
	ErrEventNotPublished = apperr.Conflict("comments are allowed only on published events")
	ErrCommentHidden     = apperr.Conflict("hidden comment cannot be edited")
	ErrSelfReport        = apperr.Conflict("cannot report own comment")
	ErrAlreadyReported   = apperr.Conflict("comment already reported by this user")
	ErrNotAuthor         = apperr.Forbidden("only the author can change the comment")
	ErrEmptyText         = apperr.Validation("comment text must not be blank")
)

// Store is the comment persistence the service needs.
type Store interface {
	Create(ctx context.Context, c *models.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	Save(ctx context.Context, c *models.Comment) error
	ListVisibleByEvent(ctx context.Context, eventID uuid.UUID, page paging.Params) ([]models.Comment, error)
	ListByAuthor(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, page paging.Params) ([]models.Comment, error)
	ListReported(ctx context.Context, page paging.Params) ([]models.Comment, error)
	ListDeleted(ctx context.Context, page paging.Params) ([]models.Comment, error)
	HasReport(ctx context.Context, commentID, userID uuid.UUID) (bool, error)
	CreateReport(ctx context.Context, r *models.CommentReport) error
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventReader loads events.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// UserChecker reports whether a user exists.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReportResult is the state of a comment right after a report was recorded.
type ReportResult struct {
	CommentID   uuid.UUID `json:"comment_id"`
	ReportCount int       `json:"report_count"`
	Hidden      bool      `json:"hidden"`
}

// Service manages comments and their report-driven moderation.
type Service struct {
	store  Store
	tx     Transactor
	events EventReader
	users  UserChecker
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a comment service.
func NewService(store Store, tx Transactor, events EventReader, users UserChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tx: tx, events: events, users: users, now: time.Now, logger: logger}
}

// Create adds userID's comment to a published event.
func (s *Service) Create(ctx context.Context, userID, eventID uuid.UUID, text string) (*models.Comment, error) {
	if isBlank(text) {
		return nil, ErrEmptyText
	}
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	e, err := s.events.GetByID(ctx, eventID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.State != models.EventStatePublished {
		return nil, ErrEventNotPublished
	}
	now := s.now()
	c := &models.Comment{EventID: eventID, AuthorID: userID, Text: text, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the text of the author's own visible comment.
func (s *Service) Update(ctx context.Context, userID, eventID, commentID uuid.UUID, text string) (*models.Comment, error) {
	if isBlank(text) {
		return nil, ErrEmptyText
	}
	var out *models.Comment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, eventID, commentID)
		if err != nil {
			return err
		}
		if c.AuthorID != userID {
			return ErrNotAuthor
		}
		if c.IsDeleted {
			return ErrCommentHidden
		}
		c.Text = text
		c.IsEdited = true
		c.UpdatedAt = s.now()
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Delete hides the author's own comment.
func (s *Service) Delete(ctx context.Context, userID, eventID, commentID uuid.UUID) error {
	return s.setDeleted(ctx, eventID, commentID, true, func(c *models.Comment) error {
		if c.AuthorID != userID {
			return ErrNotAuthor
		}
		return nil
	})
}

// AdminDelete hides any comment.
func (s *Service) AdminDelete(ctx context.Context, eventID, commentID uuid.UUID) error {
	return s.setDeleted(ctx, eventID, commentID, true, nil)
}

// Restore makes a hidden comment visible again. The report count is kept, so the next
// report re-hides a comment that had reached the threshold.
func (s *Service) Restore(ctx context.Context, eventID, commentID uuid.UUID) error {
	return s.setDeleted(ctx, eventID, commentID, false, nil)
}

// Report records userID's report on a visible comment and hides it once the threshold is reached.
func (s *Service) Report(ctx context.Context, userID, eventID, commentID uuid.UUID, reason string) (*ReportResult, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	var res *ReportResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, eventID, commentID)
		if err != nil {
			return err
		}
		if c.IsDeleted {
			return ErrCommentNotFound
		}
		if c.AuthorID == userID {
			return ErrSelfReport
		}
		reported, err := s.store.HasReport(ctx, commentID, userID)
		if err != nil {
			return err
		}
		if reported {
			return ErrAlreadyReported
		}
		if err := s.store.CreateReport(ctx, &models.CommentReport{
			CommentID:  commentID,
			UserID:     userID,
			ReportedAt: s.now(),
			Reason:     reason,
		}); err != nil {
			return err
		}
		c.ReportCount++
		if c.ReportCount >= ReportThreshold {
			c.IsDeleted = true
		}
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
		res = &ReportResult{CommentID: c.ID, ReportCount: c.ReportCount, Hidden: c.IsDeleted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Hidden {
		s.logger.Info("comment hidden by reports", zap.String("comment_id", commentID.String()), zap.Int("reports", res.ReportCount))
	}
	return res, nil
}

// Get returns a visible comment of eventID.
func (s *Service) Get(ctx context.Context, eventID, commentID uuid.UUID) (*models.Comment, error) {
	c, err := s.store.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.EventID != eventID || c.IsDeleted {
		return nil, ErrCommentNotFound
	}
	return c, nil
}

// ListByEvent pages through visible comments of eventID.
func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID, page paging.Params) ([]models.Comment, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return s.store.ListVisibleByEvent(ctx, eventID, page)
}

// ListByAuthor pages through userID's comments, optionally on one event. Authors see their hidden comments too.
func (s *Service) ListByAuthor(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, page paging.Params) ([]models.Comment, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListByAuthor(ctx, userID, eventID, page)
}

// ListReported pages through visible comments with at least one report, most reported first.
func (s *Service) ListReported(ctx context.Context, page paging.Params) ([]models.Comment, error) {
	return s.store.ListReported(ctx, page)
}

// ListDeleted pages through hidden comments.
func (s *Service) ListDeleted(ctx context.Context, page paging.Params) ([]models.Comment, error) {
	return s.store.ListDeleted(ctx, page)
}

func (s *Service) setDeleted(ctx context.Context, eventID, commentID uuid.UUID, deleted bool, allow func(*models.Comment) error) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, eventID, commentID)
		if err != nil {
			return err
		}
		if allow != nil {
			if err := allow(c); err != nil {
				return err
			}
		}
		if c.IsDeleted == deleted {
			return nil
		}
		c.IsDeleted = deleted
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
		s.logger.Info("comment visibility changed", zap.String("comment_id", commentID.String()), zap.Bool("deleted", deleted))
		return nil
	})
}

func (s *Service) lock(ctx context.Context, eventID, commentID uuid.UUID) (*models.Comment, error) {
	c, err := s.store.GetForUpdate(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.EventID != eventID {
		return nil, ErrCommentNotFound
	}
	return c, nil
}

func (s *Service) userExists(ctx context.Context, id uuid.UUID) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
