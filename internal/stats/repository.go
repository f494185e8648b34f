package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
)

// Repository stores endpoint hits for the stats service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts one hit and fills its ID.
func (r *Repository) Save(ctx context.Context, h *models.EndpointHit) error {
	const q = `INSERT INTO endpoint_hits (app, uri, ip, timestamp) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.pool.QueryRow(ctx, q, h.App, h.URI, h.IP, h.Timestamp).Scan(&h.ID); err != nil {
		return fmt.Errorf("insert hit: %w", err)
	}
	return nil
}

// Aggregate counts hits per (app, uri) between start and end inclusive, most hits first.
// uris narrows the result when non-empty; unique counts distinct IPs.
func (r *Repository) Aggregate(ctx context.Context, start, end time.Time, uris []string, unique bool) ([]models.ViewStats, error) {
	count := "COUNT(*)"
	if unique {
		count = "COUNT(DISTINCT ip)"
	}
	q := `SELECT app, uri, ` + count + ` AS hits FROM endpoint_hits WHERE timestamp BETWEEN $1 AND $2`
	args := []any{start, end}
	if len(uris) > 0 {
		q += ` AND uri = ANY($3)`
		args = append(args, uris)
	}
	q += ` GROUP BY app, uri ORDER BY hits DESC, uri`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	list := []models.ViewStats{}
	for rows.Next() {
		var s models.ViewStats
		if err := rows.Scan(&s.App, &s.URI, &s.Hits); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
