package binding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
)

// fakeStore implements repository.Store with only EventCameras/Events
// backed by in-memory maps; every other repo is unreachable from this
// package's tests and panics if called.
type fakeStore struct {
	events       map[uuid.UUID]models.Event
	eventCameras map[uuid.UUID][]models.EventCamera // keyed by cameraID
}

func (s *fakeStore) Organizations() repository.OrganizationRepo { panic("unused") }
func (s *fakeStore) Persons() repository.PersonRepo             { panic("unused") }
func (s *fakeStore) PersonFaces() repository.PersonFaceRepo     { panic("unused") }
func (s *fakeStore) Cameras() repository.CameraRepo             { panic("unused") }
func (s *fakeStore) Detections() repository.DetectionRepo       { panic("unused") }
func (s *fakeStore) Ping(ctx context.Context) error             { return nil }
func (s *fakeStore) Close()                                     {}

func (s *fakeStore) Events() repository.EventRepo             { return fakeEventRepo{s} }
func (s *fakeStore) EventCameras() repository.EventCameraRepo { return fakeEventCameraRepo{s} }

type fakeEventRepo struct{ s *fakeStore }

func (r fakeEventRepo) Create(ctx context.Context, e *models.Event) error { panic("unused") }
func (r fakeEventRepo) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if e, ok := r.s.events[id]; ok {
		return &e, nil
	}
	return nil, nil
}
func (r fakeEventRepo) ListScheduled(ctx context.Context) ([]models.Event, error) { panic("unused") }
func (r fakeEventRepo) UpdateActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	panic("unused")
}

type fakeEventCameraRepo struct{ s *fakeStore }

func (r fakeEventCameraRepo) Create(ctx context.Context, ec *models.EventCamera) error {
	panic("unused")
}
func (r fakeEventCameraRepo) FindActiveByEventID(ctx context.Context, eventID uuid.UUID) ([]models.EventCamera, error) {
	panic("unused")
}
func (r fakeEventCameraRepo) FindByCameraID(ctx context.Context, cameraID uuid.UUID) ([]models.EventCamera, error) {
	return r.s.eventCameras[cameraID], nil
}

var _ repository.Store = (*fakeStore)(nil)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestActiveEventForCameraPrefersMostRecentlyCreated(t *testing.T) {
	camID := uuid.New()
	older := models.Event{
		ID: uuid.New(), Type: "scheduled", IsScheduled: true, IsActive: true,
		RecurrenceType: models.RecurrenceDaily, StartTime: "00:00", EndTime: "23:59",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := models.Event{
		ID: uuid.New(), Type: "scheduled", IsScheduled: true, IsActive: true,
		RecurrenceType: models.RecurrenceDaily, StartTime: "00:00", EndTime: "23:59",
		CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	store := &fakeStore{
		events: map[uuid.UUID]models.Event{older.ID: older, newer.ID: newer},
		eventCameras: map[uuid.UUID][]models.EventCamera{
			camID: {
				{ID: uuid.New(), EventID: older.ID, CameraID: camID, IsActive: true},
				{ID: uuid.New(), EventID: newer.ID, CameraID: camID, IsActive: true},
			},
		},
	}
	r := New(store, fixedClock(time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)))

	id, ok, err := r.ActiveEventForCamera(context.Background(), camID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newer.ID, id)
}

func TestActiveEventForCameraSkipsInactiveBinding(t *testing.T) {
	camID := uuid.New()
	ev := models.Event{
		ID: uuid.New(), Type: "scheduled", IsScheduled: true, IsActive: true,
		RecurrenceType: models.RecurrenceDaily, StartTime: "00:00", EndTime: "23:59",
		CreatedAt: time.Now(),
	}
	store := &fakeStore{
		events: map[uuid.UUID]models.Event{ev.ID: ev},
		eventCameras: map[uuid.UUID][]models.EventCamera{
			camID: {{ID: uuid.New(), EventID: ev.ID, CameraID: camID, IsActive: false}},
		},
	}
	r := New(store, fixedClock(time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)))

	_, ok, err := r.ActiveEventForCamera(context.Background(), camID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestActiveEventForCameraNoBindings(t *testing.T) {
	store := &fakeStore{events: map[uuid.UUID]models.Event{}, eventCameras: map[uuid.UUID][]models.EventCamera{}}
	r := New(store, nil)

	_, ok, err := r.ActiveEventForCamera(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShouldBeActiveOnceMatchesExactDate(t *testing.T) {
	date := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	e := models.Event{
		Type: "scheduled", IsScheduled: true, RecurrenceType: models.RecurrenceOnce,
		ScheduledDate: &date, StartTime: "09:00", EndTime: "17:00",
	}
	require.True(t, ShouldBeActive(e, time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)))
	require.False(t, ShouldBeActive(e, time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)))
}

func TestShouldBeActiveWeeklyRequiresMatchingDay(t *testing.T) {
	e := models.Event{
		Type: "scheduled", IsScheduled: true, RecurrenceType: models.RecurrenceWeekly,
		WeekDays: []models.WeekDay{models.Wednesday}, StartTime: "00:00", EndTime: "23:59",
	}
	wednesday := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC) // a Wednesday
	thursday := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	require.True(t, ShouldBeActive(e, wednesday))
	require.False(t, ShouldBeActive(e, thursday))
}

func TestShouldBeActiveOutsideTimeWindow(t *testing.T) {
	e := models.Event{
		Type: "scheduled", IsScheduled: true, RecurrenceType: models.RecurrenceDaily,
		StartTime: "09:00", EndTime: "17:00",
	}
	require.False(t, ShouldBeActive(e, time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC)))
	require.True(t, ShouldBeActive(e, time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)))
	require.False(t, ShouldBeActive(e, time.Date(2026, 7, 29, 17, 0, 0, 0, time.UTC)))
}

func TestShouldBeActiveMonthlyAlwaysFalse(t *testing.T) {
	e := models.Event{
		Type: "scheduled", IsScheduled: true, RecurrenceType: models.RecurrenceMonthly,
		StartTime: "00:00", EndTime: "23:59",
	}
	require.False(t, ShouldBeActive(e, time.Now()))
}

func TestShouldBeActiveNonScheduledType(t *testing.T) {
	e := models.Event{Type: "manual", IsScheduled: true, StartTime: "00:00", EndTime: "23:59"}
	require.False(t, ShouldBeActive(e, time.Now()))
}
