package events

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/internal/testing/txtest"
	"github.com/aura-events/backend/pkg/paging"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu     sync.Mutex
	order  []uuid.UUID
	events map[uuid.UUID]models.Event
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: map[uuid.UUID]models.Event{}}
}

func (m *memoryStore) Create(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedOn = testNow
	m.events[e.ID] = *e
	m.order = append(m.order, e.ID)
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (m *memoryStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryStore) GetByIDIfState(ctx context.Context, id uuid.UUID, state models.EventState) (*models.Event, error) {
	e, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State != state {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (m *memoryStore) all(keep func(models.Event) bool) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, id := range m.order {
		if e := m.events[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *memoryStore) ListByInitiator(_ context.Context, userID uuid.UUID, page paging.Params) ([]models.Event, error) {
	return paging.Slice(m.all(func(e models.Event) bool { return e.InitiatorID == userID }), page), nil
}

func (m *memoryStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]models.Event, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.all(func(e models.Event) bool { return want[e.ID] }), nil
}

func (m *memoryStore) Save(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = *e
	return nil
}

func (m *memoryStore) SearchAdmin(_ context.Context, f AdminFilter) ([]models.Event, error) {
	list := m.all(func(e models.Event) bool {
		return len(f.States) == 0 || containsState(f.States, e.State)
	})
	return paging.Slice(list, f.Page), nil
}

func (m *memoryStore) SearchPublic(_ context.Context, f PublicFilter, paginate bool) ([]models.Event, error) {
	text := strings.ToLower(f.Text)
	list := m.all(func(e models.Event) bool {
		if e.State != models.EventStatePublished {
			return false
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Annotation+" "+e.Description), text) {
			return false
		}
		if f.RangeStart != nil && e.EventDate.Before(*f.RangeStart) {
			return false
		}
		if f.RangeEnd != nil && e.EventDate.After(*f.RangeEnd) {
			return false
		}
		return f.Paid == nil || e.Paid == *f.Paid
	})
	sort.SliceStable(list, func(i, j int) bool { return list[i].EventDate.Before(list[j].EventDate) })
	if paginate {
		return paging.Slice(list, f.Page), nil
	}
	return list, nil
}

func containsState(states []models.EventState, s models.EventState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

type existsAll struct{ missing map[uuid.UUID]bool }

func (e existsAll) Exists(_ context.Context, id uuid.UUID) (bool, error) { return !e.missing[id], nil }

type fixedConfirmed map[uuid.UUID]int

func (f fixedConfirmed) CountConfirmedByEventIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	for _, id := range ids {
		out[id] = f[id]
	}
	return out, nil
}

type fakeViews struct {
	mu      sync.Mutex
	views   map[string]int64
	err     error
	hits    []stats.Hit
	lookups int
	windows []stats.Window
	unique  []bool
}

func (v *fakeViews) RecordHit(_ context.Context, hit stats.Hit) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hits = append(v.hits, hit)
}

func (v *fakeViews) GetHits(_ context.Context, uris []string, unique bool, w stats.Window) (map[string]int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lookups++
	v.windows = append(v.windows, w)
	v.unique = append(v.unique, unique)
	if v.err != nil {
		return nil, v.err
	}
	out := map[string]int64{}
	for _, u := range uris {
		if n, ok := v.views[u]; ok {
			out[u] = n
		}
	}
	return out, nil
}

type serviceFixture struct {
	svc       *Service
	store     *memoryStore
	views     *fakeViews
	confirmed fixedConfirmed
	user      uuid.UUID
	category  uuid.UUID
	logs      *observer.ObservedLogs
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	f := &serviceFixture{
		store:     newMemoryStore(),
		views:     &fakeViews{views: map[string]int64{}},
		confirmed: fixedConfirmed{},
		user:      uuid.New(),
		category:  uuid.New(),
		logs:      logs,
	}
	f.svc = NewService(Deps{
		Store:      f.store,
		Tx:         &txtest.SerialTx{},
		Categories: existsAll{},
		Users:      existsAll{},
		Confirmed:  f.confirmed,
		Views:      f.views,
		AppName:    "ewm-main-service",
		Clock:      func() time.Time { return testNow },
		Logger:     zap.New(core),
	})
	return f
}

func (f *serviceFixture) newEvent(t *testing.T, date time.Time) *EventView {
	t.Helper()
	ev, err := f.svc.Create(context.Background(), f.user, NewEvent{
		Title:            "Go meetup",
		Annotation:       "An evening of talks about Go in production",
		Description:      "Three talks, pizza, and a long discussion about generics",
		CategoryID:       f.category,
		EventDate:        date,
		ParticipantLimit: 10,
	})
	require.NoError(t, err)
	return ev
}

func (f *serviceFixture) published(t *testing.T, date time.Time) *EventView {
	t.Helper()
	ev := f.newEvent(t, date)
	pub := ActionPublish
	out, err := f.svc.UpdateByAdmin(context.Background(), ev.ID, Patch{StateAction: &pub})
	require.NoError(t, err)
	return out
}

func TestCreateEvent(t *testing.T) {
	f := newServiceFixture(t)
	ev := f.newEvent(t, testNow.Add(MinLeadTime))

	assert.Equal(t, models.EventStatePending, ev.State)
	assert.True(t, ev.RequestModeration)
	assert.Nil(t, ev.PublishedOn)
	assert.Equal(t, f.user, ev.InitiatorID)
}

func TestCreateEventRejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	base := NewEvent{CategoryID: f.category, EventDate: testNow.Add(3 * time.Hour)}

	in := base
	in.EventDate = testNow.Add(MinLeadTime - time.Minute)
	_, err := f.svc.Create(ctx, f.user, in)
	assert.ErrorIs(t, err, ErrEventDateTooSoon)

	in = base
	in.ParticipantLimit = -1
	_, err = f.svc.Create(ctx, f.user, in)
	assert.ErrorIs(t, err, ErrNegativeLimit)

	missing := uuid.New()
	f.svc.categories = existsAll{missing: map[uuid.UUID]bool{missing: true}}
	in = base
	in.CategoryID = missing
	_, err = f.svc.Create(ctx, f.user, in)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestUpdateByUserLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ev := f.newEvent(t, testNow.Add(24*time.Hour))

	cancel := ActionCancelReview
	title := "Go meetup, second edition"
	out, err := f.svc.UpdateByUser(ctx, f.user, ev.ID, Patch{Title: &title, StateAction: &cancel})
	require.NoError(t, err)
	assert.Equal(t, models.EventStateCanceled, out.State)
	assert.Equal(t, title, out.Title)

	review := ActionSendToReview
	out, err = f.svc.UpdateByUser(ctx, f.user, ev.ID, Patch{StateAction: &review})
	require.NoError(t, err)
	assert.Equal(t, models.EventStatePending, out.State)

	_, err = f.svc.UpdateByUser(ctx, uuid.New(), ev.ID, Patch{Title: &title})
	assert.ErrorIs(t, err, ErrEventNotFound)

	publish := ActionPublish
	_, err = f.svc.UpdateByUser(ctx, f.user, ev.ID, Patch{StateAction: &publish})
	assert.ErrorIs(t, err, ErrAdminOnlyAction)

	soon := testNow.Add(time.Hour)
	_, err = f.svc.UpdateByUser(ctx, f.user, ev.ID, Patch{EventDate: &soon})
	assert.ErrorIs(t, err, ErrEventDateTooSoon)
}

func TestPublishedEventIsReadOnlyForInitiator(t *testing.T) {
	f := newServiceFixture(t)
	ev := f.published(t, testNow.Add(24*time.Hour))
	assert.Equal(t, models.EventStatePublished, ev.State)
	require.NotNil(t, ev.PublishedOn)
	assert.Equal(t, testNow, *ev.PublishedOn)

	title := "renamed"
	_, err := f.svc.UpdateByUser(context.Background(), f.user, ev.ID, Patch{Title: &title})
	assert.ErrorIs(t, err, ErrPublishedReadOnly)

	stored, _ := f.store.GetByID(context.Background(), ev.ID)
	assert.Equal(t, "Go meetup", stored.Title)
}

func TestUpdateByAdminFailedTransitionLeavesEventUnchanged(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ev := f.published(t, testNow.Add(24*time.Hour))

	reject := ActionReject
	title := "should not stick"
	_, err := f.svc.UpdateByAdmin(ctx, ev.ID, Patch{Title: &title, StateAction: &reject})
	assert.ErrorIs(t, err, ErrRejectPublished)

	publish := ActionPublish
	_, err = f.svc.UpdateByAdmin(ctx, ev.ID, Patch{StateAction: &publish})
	assert.ErrorIs(t, err, ErrPublishNotPending)

	stored, _ := f.store.GetByID(ctx, ev.ID)
	assert.Equal(t, models.EventStatePublished, stored.State)
	assert.Equal(t, "Go meetup", stored.Title)

	past := testNow.Add(-time.Minute)
	_, err = f.svc.UpdateByAdmin(ctx, ev.ID, Patch{EventDate: &past})
	assert.ErrorIs(t, err, ErrEventDateInPast)
}

func TestUpdateByAdminKeepsLimitAboveConfirmed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ev := f.published(t, testNow.Add(24*time.Hour))
	f.confirmed[ev.ID] = 5

	one := 1
	_, err := f.svc.UpdateByAdmin(ctx, ev.ID, Patch{ParticipantLimit: &one})
	assert.ErrorIs(t, err, ErrLimitBelowConfirmed)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	stored, _ := f.store.GetByID(ctx, ev.ID)
	assert.Equal(t, 10, stored.ParticipantLimit)

	unlimited := 0
	out, err := f.svc.UpdateByAdmin(ctx, ev.ID, Patch{ParticipantLimit: &unlimited})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ParticipantLimit)

	four := 4
	_, err = f.svc.UpdateByAdmin(ctx, ev.ID, Patch{ParticipantLimit: &four})
	assert.ErrorIs(t, err, ErrLimitBelowConfirmed)

	five := 5
	out, err = f.svc.UpdateByAdmin(ctx, ev.ID, Patch{ParticipantLimit: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, out.ParticipantLimit)
	assert.Equal(t, 5, out.ConfirmedRequests)
}

func TestPublicGetRecordsHitAndEnriches(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ev := f.published(t, testNow.Add(24*time.Hour))
	f.views.views[stats.EventURI(ev.ID)] = 7
	f.confirmed[ev.ID] = 3

	got, err := f.svc.PublicGet(ctx, ev.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Views)
	assert.Equal(t, 3, got.ConfirmedRequests)

	require.Len(t, f.views.hits, 1)
	hit := f.views.hits[0]
	assert.Equal(t, "ewm-main-service", hit.App)
	assert.Equal(t, stats.EventURI(ev.ID), hit.URI)
	assert.Equal(t, "10.0.0.1", hit.IP)

	assert.Equal(t, stats.WindowUntil(testNow), f.views.windows[len(f.views.windows)-1])
	assert.True(t, f.views.unique[len(f.views.unique)-1])
}

func TestPublicGetHidesUnpublished(t *testing.T) {
	f := newServiceFixture(t)
	ev := f.newEvent(t, testNow.Add(24*time.Hour))

	_, err := f.svc.PublicGet(context.Background(), ev.ID, "10.0.0.1")
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Empty(t, f.views.hits)
}

func TestViewFailureDegradesToZero(t *testing.T) {
	f := newServiceFixture(t)
	ev := f.published(t, testNow.Add(24*time.Hour))
	f.views.err = errors.New("stats down")

	got, err := f.svc.PublicGet(context.Background(), ev.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, got.Views)
	assert.Equal(t, 1, f.logs.FilterMessage("view counts unavailable").Len())
}

func TestEnrichUsesOneLookup(t *testing.T) {
	f := newServiceFixture(t)
	for i := 0; i < 5; i++ {
		f.newEvent(t, testNow.Add(time.Duration(24+i)*time.Hour))
	}
	before := f.views.lookups

	list, err := f.svc.ListByInitiator(context.Background(), f.user, paging.Params{Size: 10})
	require.NoError(t, err)
	assert.Len(t, list, 5)
	assert.Equal(t, before+1, f.views.lookups)
}

func TestAdminSearchRejectsInvertedRange(t *testing.T) {
	f := newServiceFixture(t)
	start, end := testNow.Add(time.Hour), testNow
	_, err := f.svc.AdminSearch(context.Background(), AdminFilter{RangeStart: &start, RangeEnd: &end})
	assert.ErrorIs(t, err, ErrInvalidRange)
}
