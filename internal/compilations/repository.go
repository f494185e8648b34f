package compilations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/paging"
)

var (
	ErrCompilationNotFound = apperr.NotFound("compilation not found")
	ErrEventNotFound       = apperr.NotFound("event not found")
)

const selectCompilation = `SELECT c.id, c.title, c.pinned,
	COALESCE(array_agg(ce.event_id) FILTER (WHERE ce.event_id IS NOT NULL), '{}')
	FROM compilations c LEFT JOIN compilation_events ce ON ce.compilation_id = c.id`

// Repository handles compilation persistence. Event links are written in the caller's transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a compilation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCompilation(row pgx.Row) (*models.Compilation, error) {
	var c models.Compilation
	if err := row.Scan(&c.ID, &c.Title, &c.Pinned, &c.EventIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts c and fills its ID.
func (r *Repository) Create(ctx context.Context, c *models.Compilation) error {
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO compilations (title, pinned) VALUES ($1, $2) RETURNING id`, c.Title, c.Pinned).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert compilation: %w", err)
	}
	return nil
}

// Update writes title and pinned of c.
func (r *Repository) Update(ctx context.Context, c *models.Compilation) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE compilations SET title = $2, pinned = $3 WHERE id = $1`, c.ID, c.Title, c.Pinned)
	if err != nil {
		return fmt.Errorf("update compilation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCompilationNotFound
	}
	return nil
}

// ReplaceEvents sets the event set of compilation id to eventIDs.
func (r *Repository) ReplaceEvents(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID) error {
	conn := database.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `DELETE FROM compilation_events WHERE compilation_id = $1`, id); err != nil {
		return fmt.Errorf("clear compilation events: %w", err)
	}
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := conn.Exec(ctx, `INSERT INTO compilation_events (compilation_id, event_id)
		SELECT $1, e FROM unnest($2::uuid[]) AS e ON CONFLICT DO NOTHING`, id, eventIDs)
	if database.IsForeignKeyViolation(err) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("link compilation events: %w", err)
	}
	return nil
}

// Delete removes compilation id and its event links.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM compilations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete compilation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCompilationNotFound
	}
	return nil
}

// GetByID returns a compilation with its event ids.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Compilation, error) {
	c, err := scanCompilation(database.Conn(ctx, r.pool).QueryRow(ctx,
		selectCompilation+` WHERE c.id = $1 GROUP BY c.id`, id))
	if database.IsNoRows(err) {
		return nil, ErrCompilationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get compilation: %w", err)
	}
	return c, nil
}

// List pages through compilations, optionally only pinned or unpinned ones.
func (r *Repository) List(ctx context.Context, pinned *bool, page paging.Params) ([]models.Compilation, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		selectCompilation+` WHERE $1::boolean IS NULL OR c.pinned = $1 GROUP BY c.id ORDER BY c.title, c.id OFFSET $2 LIMIT $3`,
		pinned, page.From, page.Size)
	if err != nil {
		return nil, fmt.Errorf("list compilations: %w", err)
	}
	defer rows.Close()
	list := []models.Compilation{}
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}
