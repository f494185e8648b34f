package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/paging"
)

var (
	ErrEventNotFound    = apperr.NotFound("event not found")
	ErrCategoryNotFound = apperr.NotFound("category not found")
	ErrUserNotFound     = apperr.NotFound("user not found")
)

const eventColumns = `id, title, annotation, description, category_id, initiator_id, event_date, created_on,
	published_on, lat, lon, paid, participant_limit, request_moderation, state`

// Repository handles event persistence. Calls made with a transactional ctx join that transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var state string
	err := row.Scan(&e.ID, &e.Title, &e.Annotation, &e.Description, &e.CategoryID, &e.InitiatorID, &e.EventDate,
		&e.CreatedOn, &e.PublishedOn, &e.Location.Lat, &e.Location.Lon, &e.Paid, &e.ParticipantLimit,
		&e.RequestModeration, &state)
	if err != nil {
		return nil, err
	}
	e.State = models.EventState(state)
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]models.Event, error) {
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

func (r *Repository) getOne(ctx context.Context, q string, args ...any) (*models.Event, error) {
	e, err := scanEvent(database.Conn(ctx, r.pool).QueryRow(ctx, q, args...))
	if database.IsNoRows(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Create inserts e and fills its ID and CreatedOn.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, annotation, description, category_id, initiator_id, event_date,
		lat, lon, paid, participant_limit, request_moderation, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_on`
	err := database.Conn(ctx, r.pool).QueryRow(ctx, q, e.Title, e.Annotation, e.Description, e.CategoryID,
		e.InitiatorID, e.EventDate, e.Location.Lat, e.Location.Lon, e.Paid, e.ParticipantLimit,
		e.RequestModeration, string(e.State)).Scan(&e.ID, &e.CreatedOn)
	if database.IsForeignKeyViolation(err) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// GetForUpdate reads the event and locks its row until the surrounding transaction ends.
// Every admission decision for the event is made under this lock.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
}

// GetByIDIfState returns the event only when it is in state.
func (r *Repository) GetByIDIfState(ctx context.Context, id uuid.UUID, state models.EventState) (*models.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND state = $2`, id, string(state))
}

// ExistsByIDAndInitiator reports whether userID initiated event id.
func (r *Repository) ExistsByIDAndInitiator(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	var ok bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND initiator_id = $2)`, id, userID).Scan(&ok)
	return ok, err
}

// ListByInitiator pages through a user's events, newest first.
func (r *Repository) ListByInitiator(ctx context.Context, userID uuid.UUID, page paging.Params) ([]models.Event, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE initiator_id = $1 ORDER BY created_on DESC, id OFFSET $2 LIMIT $3`,
		userID, page.From, page.Size)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// ListByIDs returns the events among ids, ordered by event date.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Event, error) {
	if len(ids) == 0 {
		return []models.Event{}, nil
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ANY($1) ORDER BY event_date, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// Save writes every mutable field of e.
func (r *Repository) Save(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET title = $2, annotation = $3, description = $4, category_id = $5, event_date = $6,
		published_on = $7, lat = $8, lon = $9, paid = $10, participant_limit = $11, request_moderation = $12, state = $13
		WHERE id = $1`
	tag, err := database.Conn(ctx, r.pool).Exec(ctx, q, e.ID, e.Title, e.Annotation, e.Description, e.CategoryID,
		e.EventDate, e.PublishedOn, e.Location.Lat, e.Location.Lon, e.Paid, e.ParticipantLimit, e.RequestModeration,
		string(e.State))
	if database.IsForeignKeyViolation(err) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SearchAdmin filters across all states, latest event date first.
func (r *Repository) SearchAdmin(ctx context.Context, f AdminFilter) ([]models.Event, error) {
	var w where
	if len(f.Users) > 0 {
		w.add("initiator_id = ANY(?)", f.Users)
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		w.add("state = ANY(?)", states)
	}
	if len(f.Categories) > 0 {
		w.add("category_id = ANY(?)", f.Categories)
	}
	if f.RangeStart != nil {
		w.add("event_date >= ?", *f.RangeStart)
	}
	if f.RangeEnd != nil {
		w.add("event_date <= ?", *f.RangeEnd)
	}
	q := `SELECT ` + eventColumns + ` FROM events` + w.sql() + ` ORDER BY event_date DESC, id` + w.page(f.Page)
	rows, err := database.Conn(ctx, r.pool).Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	return collectEvents(rows)
}

// SearchPublic filters published events by event date ascending. With paginate false the whole
// match set is returned so the caller can rank it.
func (r *Repository) SearchPublic(ctx context.Context, f PublicFilter, paginate bool) ([]models.Event, error) {
	var w where
	w.add("state = ?", string(models.EventStatePublished))
	if text := strings.TrimSpace(f.Text); text != "" {
		pattern := containsPattern(text)
		w.add(`(annotation ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if len(f.Categories) > 0 {
		w.add("category_id = ANY(?)", f.Categories)
	}
	if f.Paid != nil {
		w.add("paid = ?", *f.Paid)
	}
	if f.RangeStart != nil {
		w.add("event_date >= ?", *f.RangeStart)
	}
	if f.RangeEnd != nil {
		w.add("event_date <= ?", *f.RangeEnd)
	}
	if f.OnlyAvailable {
		w.add(`(participant_limit = 0 OR participant_limit > (SELECT COUNT(*) FROM participation_requests pr
			WHERE pr.event_id = events.id AND pr.status = ?))`, string(models.RequestStatusConfirmed))
	}
	q := `SELECT ` + eventColumns + ` FROM events` + w.sql() + ` ORDER BY event_date, id`
	if paginate {
		q += w.page(f.Page)
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	return collectEvents(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching text literally anywhere in a column.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

// where accumulates AND-ed conditions written with ? placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	var b strings.Builder
	i := 0
	for _, ch := range clause {
		if ch == '?' && i < len(args) {
			w.args = append(w.args, args[i])
			i++
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			continue
		}
		b.WriteRune(ch)
	}
	w.clauses = append(w.clauses, b.String())
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(p paging.Params) string {
	w.args = append(w.args, p.From, p.Size)
	n := len(w.args)
	return " OFFSET $" + strconv.Itoa(n-1) + " LIMIT $" + strconv.Itoa(n)
}
