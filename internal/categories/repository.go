package categories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/paging"
)

var (
	ErrCategoryNotFound = apperr.NotFound("category not found")
	ErrNameTaken        = apperr.Conflict("category name already exists")
	ErrCategoryInUse    = apperr.Conflict("category is referenced by events")
)

// Repository handles category persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a category repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts c and fills its ID.
func (r *Repository) Create(ctx context.Context, c *models.Category) error {
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
	if database.IsUniqueViolation(err) {
		return ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// Rename changes the name of category id.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Category, error) {
	c := models.Category{ID: id}
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE categories SET name = $2 WHERE id = $1 RETURNING name`, id, name).Scan(&c.Name)
	switch {
	case database.IsNoRows(err):
		return nil, ErrCategoryNotFound
	case database.IsUniqueViolation(err):
		return nil, ErrNameTaken
	case err != nil:
		return nil, fmt.Errorf("rename category: %w", err)
	}
	return &c, nil
}

// Delete removes category id. Categories still used by events cannot be removed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if database.IsForeignKeyViolation(err) {
		return ErrCategoryInUse
	}
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// GetByID returns a category by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c := models.Category{ID: id}
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT name FROM categories WHERE id = $1`, id).Scan(&c.Name)
	if database.IsNoRows(err) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Exists reports whether category id exists.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// List pages through categories by name.
func (r *Repository) List(ctx context.Context, page paging.Params) ([]models.Category, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, name FROM categories ORDER BY name OFFSET $1 LIMIT $2`, page.From, page.Size)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	list := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
