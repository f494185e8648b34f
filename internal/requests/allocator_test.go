package requests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/testing/txtest"
)

type memoryEvents struct {
	mu     sync.Mutex
	events map[uuid.UUID]models.Event
}

func (m *memoryEvents) GetForUpdate(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, apperr.NotFound("event not found")
	}
	return &e, nil
}

func (m *memoryEvents) ExistsByIDAndInitiator(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	return ok && e.InitiatorID == userID, nil
}

type memoryUsers map[uuid.UUID]bool

func (m memoryUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) { return m[id], nil }

type memoryRequests struct {
	mu    sync.Mutex
	order []uuid.UUID
	byID  map[uuid.UUID]models.ParticipationRequest
	saves int
}

func newMemoryRequests() *memoryRequests {
	return &memoryRequests{byID: map[uuid.UUID]models.ParticipationRequest{}}
}

func (m *memoryRequests) Create(_ context.Context, r *models.ParticipationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	m.byID[r.ID] = *r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memoryRequests) seed(eventID uuid.UUID, status models.RequestStatus) uuid.UUID {
	r := &models.ParticipationRequest{EventID: eventID, RequesterID: uuid.New(), Created: time.Now(), Status: status}
	_ = m.Create(context.Background(), r)
	return r.ID
}

func (m *memoryRequests) status(id uuid.UUID) models.RequestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

func (m *memoryRequests) GetByID(_ context.Context, id uuid.UUID) (*models.ParticipationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (m *memoryRequests) CountByEventAndStatus(_ context.Context, eventID uuid.UUID, statuses ...models.RequestStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.byID {
		if r.EventID != eventID {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				n++
			}
		}
	}
	return n, nil
}

func (m *memoryRequests) FindByIDsAndEvent(_ context.Context, ids []uuid.UUID, eventID uuid.UUID) ([]models.ParticipationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ParticipationRequest
	for _, id := range ids {
		if r, ok := m.byID[id]; ok && r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRequests) ExistsByRequesterAndEvent(_ context.Context, userID, eventID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.RequesterID == userID && r.EventID == eventID && r.Status != models.RequestStatusCanceled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRequests) SaveAll(_ context.Context, list []models.ParticipationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	for _, r := range list {
		m.byID[r.ID] = r
	}
	return nil
}

func (m *memoryRequests) UpdateStatus(_ context.Context, id uuid.UUID, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrRequestNotFound
	}
	r.Status = status
	m.byID[id] = r
	return nil
}

func (m *memoryRequests) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.ParticipationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ParticipationRequest{}
	for _, id := range m.order {
		if r := m.byID[id]; r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRequests) ListByRequester(_ context.Context, userID uuid.UUID) ([]models.ParticipationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ParticipationRequest{}
	for _, id := range m.order {
		if r := m.byID[id]; r.RequesterID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fixture struct {
	alloc     *Allocator
	events    *memoryEvents
	users     memoryUsers
	store     *memoryRequests
	tx        *txtest.SerialTx
	initiator uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		events:    &memoryEvents{events: map[uuid.UUID]models.Event{}},
		users:     memoryUsers{},
		store:     newMemoryRequests(),
		tx:        &txtest.SerialTx{},
		initiator: uuid.New(),
	}
	f.users[f.initiator] = true
	f.alloc = NewAllocator(f.tx, f.events, f.users, f.store, nil)
	return f
}

func (f *fixture) event(limit int, moderation bool, state models.EventState) uuid.UUID {
	id := uuid.New()
	f.events.events[id] = models.Event{
		ID:                id,
		InitiatorID:       f.initiator,
		ParticipantLimit:  limit,
		RequestModeration: moderation,
		State:             state,
	}
	return id
}

func (f *fixture) user() uuid.UUID {
	id := uuid.New()
	f.users[id] = true
	return id
}

func TestCreateRejections(t *testing.T) {
	f := newFixture()
	published := f.event(1, true, models.EventStatePublished)
	pending := f.event(0, true, models.EventStatePending)
	full := f.event(1, true, models.EventStatePublished)
	f.store.seed(full, models.RequestStatusPending)
	requester := f.user()

	_, err := f.alloc.Create(context.Background(), requester, published)
	require.NoError(t, err)

	tests := []struct {
		name    string
		user    uuid.UUID
		event   uuid.UUID
		wantErr error
	}{
		{"unknown user", uuid.New(), published, ErrUserNotFound},
		{"unknown event", requester, uuid.New(), ErrEventNotFound},
		{"initiator", f.initiator, published, ErrInitiatorRequest},
		{"not published", requester, pending, ErrEventNotPublished},
		{"duplicate", requester, published, ErrDuplicateRequest},
		{"pending requests fill the limit", f.user(), full, ErrParticipantLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.alloc.Create(context.Background(), tt.user, tt.event)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateInitialStatus(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name       string
		limit      int
		moderation bool
		want       models.RequestStatus
	}{
		{"unlimited ignores moderation", 0, true, models.RequestStatusConfirmed},
		{"no moderation", 5, false, models.RequestStatusConfirmed},
		{"moderated", 5, true, models.RequestStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := f.event(tt.limit, tt.moderation, models.EventStatePublished)
			pr, err := f.alloc.Create(context.Background(), f.user(), event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pr.Status)
			assert.Equal(t, tt.want, f.store.status(pr.ID))
		})
	}
}

func TestCreateAfterCancel(t *testing.T) {
	f := newFixture()
	event := f.event(1, true, models.EventStatePublished)
	user := f.user()

	pr, err := f.alloc.Create(context.Background(), user, event)
	require.NoError(t, err)
	_, err = f.alloc.Cancel(context.Background(), user, pr.ID)
	require.NoError(t, err)

	again, err := f.alloc.Create(context.Background(), user, event)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, again.Status)
}

func TestBatchConfirmPreservesCallerOrder(t *testing.T) {
	f := newFixture()
	event := f.event(2, true, models.EventStatePublished)
	a := f.store.seed(event, models.RequestStatusPending)
	b := f.store.seed(event, models.RequestStatusPending)
	c := f.store.seed(event, models.RequestStatusPending)
	d := f.store.seed(event, models.RequestStatusPending)

	res, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{c, a, d, b},
		Status:     models.RequestStatusConfirmed,
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{c, a}, ids(res.Confirmed))
	assert.Equal(t, []uuid.UUID{d, b}, ids(res.Rejected))
	assert.Equal(t, models.RequestStatusConfirmed, f.store.status(a))
	assert.Equal(t, models.RequestStatusRejected, f.store.status(b))
	assert.Equal(t, 1, f.store.saves)
}

func TestBatchConfirmCountsExistingConfirmations(t *testing.T) {
	f := newFixture()
	event := f.event(3, true, models.EventStatePublished)
	f.store.seed(event, models.RequestStatusConfirmed)
	a := f.store.seed(event, models.RequestStatusPending)
	b := f.store.seed(event, models.RequestStatusPending)
	c := f.store.seed(event, models.RequestStatusPending)

	res, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{a, b, c},
		Status:     models.RequestStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids(res.Confirmed))
	assert.Equal(t, []uuid.UUID{c}, ids(res.Rejected))
}

func TestBatchConfirmUnlimited(t *testing.T) {
	f := newFixture()
	event := f.event(0, true, models.EventStatePublished)
	var list []uuid.UUID
	for i := 0; i < 5; i++ {
		list = append(list, f.store.seed(event, models.RequestStatusPending))
	}

	res, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: list,
		Status:     models.RequestStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Len(t, res.Confirmed, 5)
	assert.Empty(t, res.Rejected)
}

func TestBatchReject(t *testing.T) {
	f := newFixture()
	event := f.event(10, true, models.EventStatePublished)
	a := f.store.seed(event, models.RequestStatusPending)
	b := f.store.seed(event, models.RequestStatusPending)

	res, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{a, b},
		Status:     models.RequestStatusRejected,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Confirmed)
	assert.Equal(t, []uuid.UUID{a, b}, ids(res.Rejected))
}

func TestBatchFailsWithoutPartialEffect(t *testing.T) {
	f := newFixture()
	event := f.event(5, true, models.EventStatePublished)
	pending := f.store.seed(event, models.RequestStatusPending)
	rejected := f.store.seed(event, models.RequestStatusRejected)
	other := f.store.seed(f.event(5, true, models.EventStatePublished), models.RequestStatusPending)

	_, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{pending, rejected},
		Status:     models.RequestStatusConfirmed,
	})
	assert.ErrorIs(t, err, ErrRequestNotPending)

	_, err = f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{pending, other},
		Status:     models.RequestStatusConfirmed,
	})
	assert.ErrorIs(t, err, ErrRequestNotFound)

	assert.Equal(t, models.RequestStatusPending, f.store.status(pending))
	assert.Zero(t, f.store.saves)
}

func TestBatchPreconditions(t *testing.T) {
	f := newFixture()
	event := f.event(1, true, models.EventStatePublished)
	f.store.seed(event, models.RequestStatusConfirmed)
	pending := f.store.seed(event, models.RequestStatusPending)

	tests := []struct {
		name      string
		initiator uuid.UUID
		upd       StatusUpdate
		wantErr   error
	}{
		{"full event", f.initiator, StatusUpdate{RequestIDs: []uuid.UUID{pending}, Status: models.RequestStatusConfirmed}, ErrParticipantLimit},
		{"not initiator", uuid.New(), StatusUpdate{RequestIDs: []uuid.UUID{pending}, Status: models.RequestStatusConfirmed}, ErrEventNotFound},
		{"bad target", f.initiator, StatusUpdate{RequestIDs: []uuid.UUID{pending}, Status: models.RequestStatusCanceled}, ErrInvalidTarget},
		{"repeated id", f.initiator, StatusUpdate{RequestIDs: []uuid.UUID{pending, pending}, Status: models.RequestStatusRejected}, ErrDuplicateRequestID},
		{"empty", f.initiator, StatusUpdate{Status: models.RequestStatusRejected}, ErrNoRequestIDs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.alloc.UpdateStatuses(context.Background(), tt.initiator, event, tt.upd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, models.RequestStatusPending, f.store.status(pending))
}

func TestCancel(t *testing.T) {
	f := newFixture()
	event := f.event(0, true, models.EventStatePublished)
	user := f.user()
	confirmed, err := f.alloc.Create(context.Background(), user, event)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusConfirmed, confirmed.Status)

	_, err = f.alloc.Cancel(context.Background(), user, confirmed.ID)
	assert.ErrorIs(t, err, ErrCancelConfirmed)
	assert.Equal(t, models.RequestStatusConfirmed, f.store.status(confirmed.ID))

	moderated := f.event(3, true, models.EventStatePublished)
	pending, err := f.alloc.Create(context.Background(), user, moderated)
	require.NoError(t, err)

	_, err = f.alloc.Cancel(context.Background(), f.user(), pending.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	canceled, err := f.alloc.Cancel(context.Background(), user, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCanceled, canceled.Status)

	_, err = f.alloc.Cancel(context.Background(), user, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListForEventRequiresInitiator(t *testing.T) {
	f := newFixture()
	event := f.event(0, true, models.EventStatePublished)
	_, err := f.alloc.Create(context.Background(), f.user(), event)
	require.NoError(t, err)

	list, err := f.alloc.ListForEvent(context.Background(), f.initiator, event)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.alloc.ListForEvent(context.Background(), uuid.New(), event)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

// Two users race for the single slot of a moderated event: one request is admitted and later
// confirmed. The loser is refused at creation with ErrParticipantLimit, so its REJECTED outcome
// is a Conflict response and no request row is stored for it.
func TestSingleSlotRaceLoserRefusedAtCreation(t *testing.T) {
	f := newFixture()
	event := f.event(1, true, models.EventStatePublished)
	users := []uuid.UUID{f.user(), f.user()}

	var wg sync.WaitGroup
	results := make([]*models.ParticipationRequest, 2)
	errs := make([]error, 2)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.alloc.Create(context.Background(), users[i], event)
		}(i)
	}
	wg.Wait()

	var admitted *models.ParticipationRequest
	limitErrs := 0
	for i := range users {
		if errs[i] == nil {
			admitted = results[i]
			continue
		}
		assert.ErrorIs(t, errs[i], ErrParticipantLimit)
		limitErrs++
	}
	require.NotNil(t, admitted)
	assert.Equal(t, 1, limitErrs)
	assert.Equal(t, models.RequestStatusPending, admitted.Status)

	stored, err := f.store.ListByEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, admitted.ID, stored[0].ID)

	res, err := f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
		RequestIDs: []uuid.UUID{admitted.ID},
		Status:     models.RequestStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Len(t, res.Confirmed, 1)

	n, err := f.store.CountByEventAndStatus(context.Background(), event, models.RequestStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentCreatesNeverExceedLimit(t *testing.T) {
	const limit = 3
	f := newFixture()
	event := f.event(limit, false, models.EventStatePublished)

	users := make([]uuid.UUID, 25)
	for i := range users {
		users[i] = f.user()
	}

	var wg sync.WaitGroup
	for _, user := range users {
		user := user
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.alloc.Create(context.Background(), user, event)
			if err != nil {
				assert.ErrorIs(t, err, ErrParticipantLimit)
			}
		}()
	}
	wg.Wait()

	n, err := f.store.CountByEventAndStatus(context.Background(), event, models.RequestStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}

func TestConcurrentBatchesNeverExceedLimit(t *testing.T) {
	const limit = 3
	f := newFixture()
	event := f.event(limit, true, models.EventStatePublished)
	var pending []uuid.UUID
	for i := 0; i < 12; i++ {
		pending = append(pending, f.store.seed(event, models.RequestStatusPending))
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		batch := []uuid.UUID{pending[2*i], pending[2*i+1]}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
				RequestIDs: batch,
				Status:     models.RequestStatusConfirmed,
			})
		}()
	}
	wg.Wait()

	n, err := f.store.CountByEventAndStatus(context.Background(), event, models.RequestStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}

// Creates, cancellations and confirmations interleave on one moderated event. Whatever the
// ordering, confirmations stay within the limit and every failure is a documented conflict.
func TestMixedOperationsRaceNeverExceedLimit(t *testing.T) {
	const limit = 3
	f := newFixture()
	event := f.event(limit, true, models.EventStatePublished)

	users := make([]uuid.UUID, 20)
	for i := range users {
		users[i] = f.user()
	}

	allowed := func(err error) bool {
		for _, target := range []error{ErrParticipantLimit, ErrRequestNotPending, ErrCancelConfirmed, ErrRequestNotFound} {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var unexpected []error
	report := func(err error) {
		if err == nil || allowed(err) {
			return
		}
		mu.Lock()
		unexpected = append(unexpected, err)
		mu.Unlock()
	}

	for i, user := range users {
		i, user := i, user
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.alloc.Create(context.Background(), user, event)
			report(err)
			if err != nil || i%2 == 0 {
				return
			}
			_, err = f.alloc.Cancel(context.Background(), user, r.ID)
			report(err)
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := f.alloc.ListForEvent(context.Background(), f.initiator, event)
			report(err)
			var pending []uuid.UUID
			for _, r := range list {
				if r.Status == models.RequestStatusPending {
					pending = append(pending, r.ID)
				}
			}
			if len(pending) == 0 {
				return
			}
			_, err = f.alloc.UpdateStatuses(context.Background(), f.initiator, event, StatusUpdate{
				RequestIDs: pending,
				Status:     models.RequestStatusConfirmed,
			})
			report(err)
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	confirmed, err := f.store.CountByEventAndStatus(context.Background(), event, models.RequestStatusConfirmed)
	require.NoError(t, err)
	assert.LessOrEqual(t, confirmed, limit)
	held, err := f.store.CountByEventAndStatus(context.Background(), event, models.RequestStatusPending, models.RequestStatusConfirmed)
	require.NoError(t, err)
	assert.LessOrEqual(t, held, limit)
}

func TestAllocate(t *testing.T) {
	reqs := func(n int) []models.ParticipationRequest {
		out := make([]models.ParticipationRequest, n)
		for i := range out {
			out[i] = models.ParticipationRequest{ID: uuid.New(), Status: models.RequestStatusPending}
		}
		return out
	}

	in := reqs(4)
	res := allocate(in, models.RequestStatusConfirmed, 2)
	assert.Equal(t, []uuid.UUID{in[0].ID, in[1].ID}, ids(res.Confirmed))
	assert.Equal(t, []uuid.UUID{in[2].ID, in[3].ID}, ids(res.Rejected))
	assert.Equal(t, models.RequestStatusPending, in[0].Status, "input is not mutated")

	res = allocate(reqs(3), models.RequestStatusConfirmed, -1)
	assert.Len(t, res.Confirmed, 3)

	res = allocate(reqs(3), models.RequestStatusRejected, 5)
	assert.Empty(t, res.Confirmed)
	assert.Len(t, res.Rejected, 3)
}

func ids(list []models.ParticipationRequest) []uuid.UUID {
	out := make([]uuid.UUID, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
