package comments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/paging"
)

const commentColumns = `id, event_id, user_id, text, created_at, updated_at, report_count, is_edited, is_deleted`

// Repository handles comment and report persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a comment repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.EventID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.UpdatedAt, &c.ReportCount, &c.IsEdited, &c.IsDeleted)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) one(ctx context.Context, q string, args ...any) (*models.Comment, error) {
	c, err := scanComment(database.Conn(ctx, r.pool).QueryRow(ctx, q, args...))
	if database.IsNoRows(err) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.Comment, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	list := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// Create inserts c and fills its ID.
func (r *Repository) Create(ctx context.Context, c *models.Comment) error {
	const q = `INSERT INTO event_comments (event_id, user_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := database.Conn(ctx, r.pool).QueryRow(ctx, q, c.EventID, c.AuthorID, c.Text, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if database.IsForeignKeyViolation(err) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetByID returns a comment by ID, hidden or not.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return r.one(ctx, `SELECT `+commentColumns+` FROM event_comments WHERE id = $1`, id)
}

// GetForUpdate reads a comment and locks it until the transaction ends, serializing reports on it.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return r.one(ctx, `SELECT `+commentColumns+` FROM event_comments WHERE id = $1 FOR UPDATE`, id)
}

// Save writes the mutable fields of c.
func (r *Repository) Save(ctx context.Context, c *models.Comment) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `UPDATE event_comments
		SET text = $2, updated_at = $3, report_count = $4, is_edited = $5, is_deleted = $6 WHERE id = $1`,
		c.ID, c.Text, c.UpdatedAt, c.ReportCount, c.IsEdited, c.IsDeleted)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// ListVisibleByEvent pages through an event's visible comments, oldest first.
func (r *Repository) ListVisibleByEvent(ctx context.Context, eventID uuid.UUID, page paging.Params) ([]models.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM event_comments
		WHERE event_id = $1 AND NOT is_deleted ORDER BY created_at, id OFFSET $2 LIMIT $3`, eventID, page.From, page.Size)
}

// ListByAuthor pages through a user's comments, newest first, optionally on one event.
func (r *Repository) ListByAuthor(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, page paging.Params) ([]models.Comment, error) {
	if eventID != nil {
		return r.list(ctx, `SELECT `+commentColumns+` FROM event_comments
			WHERE user_id = $1 AND event_id = $2 ORDER BY created_at DESC, id OFFSET $3 LIMIT $4`, userID, *eventID, page.From, page.Size)
	}
	return r.list(ctx, `SELECT `+commentColumns+` FROM event_comments
		WHERE user_id = $1 ORDER BY created_at DESC, id OFFSET $2 LIMIT $3`, userID, page.From, page.Size)
}

// ListReported pages through visible comments with reports, most reported first.
func (r *Repository) ListReported(ctx context.Context, page paging.Params) ([]models.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM event_comments
		WHERE report_count > 0 AND NOT is_deleted ORDER BY report_count DESC, created_at, id OFFSET $1 LIMIT $2`, page.From, page.Size)
}

// ListDeleted pages through hidden comments, newest first.
func (r *Repository) ListDeleted(ctx context.Context, page paging.Params) ([]models.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM event_comments
		WHERE is_deleted ORDER BY created_at DESC, id OFFSET $1 LIMIT $2`, page.From, page.Size)
}

// HasReport reports whether userID already reported commentID.
func (r *Repository) HasReport(ctx context.Context, commentID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM comment_reports WHERE comment_id = $1 AND user_id = $2)`, commentID, userID).Scan(&ok)
	return ok, err
}

// CreateReport inserts a report. The (comment, user) key makes a repeat report a conflict.
func (r *Repository) CreateReport(ctx context.Context, rep *models.CommentReport) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO comment_reports (comment_id, user_id, reported_at, reason) VALUES ($1, $2, $3, $4)`,
		rep.CommentID, rep.UserID, rep.ReportedAt, rep.Reason)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyReported
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}
