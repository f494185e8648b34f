package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a user's remark on a published event. IsDeleted hides it from non-admin readers.
type Comment struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	AuthorID    uuid.UUID `json:"author_id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ReportCount int       `json:"report_count"`
	IsEdited    bool      `json:"is_edited"`
	IsDeleted   bool      `json:"is_deleted"`
}

// CommentReport records that a user flagged a comment. One per (comment, user).
type CommentReport struct {
	CommentID  uuid.UUID `json:"comment_id"`
	UserID     uuid.UUID `json:"user_id"`
	ReportedAt time.Time `json:"reported_at"`
	Reason     string    `json:"reason"`
}
