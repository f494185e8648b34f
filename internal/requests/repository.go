package requests

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/database"
)

const requestColumns = `id, event_id, requester_id, created, status`

// Repository handles participation request persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a request repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRequest(row pgx.Row) (*models.ParticipationRequest, error) {
	var r models.ParticipationRequest
	var status string
	if err := row.Scan(&r.ID, &r.EventID, &r.RequesterID, &r.Created, &status); err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	return &r, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.ParticipationRequest, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	list := []models.ParticipationRequest{}
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *pr)
	}
	return list, rows.Err()
}

// Create inserts pr and fills its ID. A second live request for the same pair is a conflict.
func (r *Repository) Create(ctx context.Context, pr *models.ParticipationRequest) error {
	const q = `INSERT INTO participation_requests (event_id, requester_id, created, status)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err := database.Conn(ctx, r.pool).QueryRow(ctx, q, pr.EventID, pr.RequesterID, pr.Created, string(pr.Status)).Scan(&pr.ID)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetByID returns a request by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ParticipationRequest, error) {
	pr, err := scanRequest(database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestColumns+` FROM participation_requests WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return pr, nil
}

// CountByEventAndStatus counts the event's requests in any of statuses.
func (r *Repository) CountByEventAndStatus(ctx context.Context, eventID uuid.UUID, statuses ...models.RequestStatus) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var n int
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM participation_requests WHERE event_id = $1 AND status = ANY($2)`, eventID, names).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// FindByIDsAndEvent returns the requests among ids that belong to eventID.
func (r *Repository) FindByIDsAndEvent(ctx context.Context, ids []uuid.UUID, eventID uuid.UUID) ([]models.ParticipationRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM participation_requests
		WHERE id = ANY($1) AND event_id = $2`, ids, eventID)
}

// ExistsByRequesterAndEvent reports whether userID holds a non-canceled request for eventID.
func (r *Repository) ExistsByRequesterAndEvent(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var ok bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM participation_requests
		WHERE requester_id = $1 AND event_id = $2 AND status <> $3)`, userID, eventID, string(models.RequestStatusCanceled)).Scan(&ok)
	return ok, err
}

// SaveAll writes the status of every request in one round trip.
func (r *Repository) SaveAll(ctx context.Context, list []models.ParticipationRequest) error {
	if len(list) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pr := range list {
		batch.Queue(`UPDATE participation_requests SET status = $2 WHERE id = $1`, pr.ID, string(pr.Status))
	}
	br := database.Conn(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()
	for range list {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("save requests: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRequestNotFound
		}
	}
	return nil
}

// UpdateStatus sets the status of one request.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error {
	tag, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE participation_requests SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListByEvent returns every request on eventID, oldest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.ParticipationRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM participation_requests WHERE event_id = $1 ORDER BY created, id`, eventID)
}

// ListByRequester returns every request userID filed, oldest first.
func (r *Repository) ListByRequester(ctx context.Context, userID uuid.UUID) ([]models.ParticipationRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM participation_requests WHERE requester_id = $1 ORDER BY created, id`, userID)
}

// CountConfirmedByEventIDs counts CONFIRMED requests per event in one query. Events without any are absent.
func (r *Repository) CountConfirmedByEventIDs(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(eventIDs))
	if len(eventIDs) == 0 {
		return counts, nil
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx, `SELECT event_id, COUNT(*) FROM participation_requests
		WHERE event_id = ANY($1) AND status = $2 GROUP BY event_id`, eventIDs, string(models.RequestStatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("count confirmed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
