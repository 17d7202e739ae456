package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/schedule-api/internal/models"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type mockBookingRepo struct {
	bookings map[string]models.Booking
	nextID   int
	failSave bool
}

func (m *mockBookingRepo) store(b models.Booking) {
	if m.bookings == nil {
		m.bookings = make(map[string]models.Booking)
	}
	m.bookings[b.ID] = b
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := m.bookings[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error) {
	for _, b := range m.bookings {
		if b.TeacherID == teacherID && b.Slot == slot && b.Active() {
			return &b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if filter.TeacherID != "" && b.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *mockBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if m.failSave {
		return sql.ErrConnDone
	}
	if booking.ID == "" {
		m.nextID++
		booking.ID = fmt.Sprintf("bk-%d", m.nextID)
	}
	m.store(*booking)
	return nil
}

func (m *mockBookingRepo) UpdateDetails(ctx context.Context, booking *models.Booking) error {
	if m.failSave {
		return sql.ErrConnDone
	}
	m.store(*booking)
	return nil
}

func (m *mockBookingRepo) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, declineReason *string) error {
	if m.failSave {
		return sql.ErrConnDone
	}
	b := m.bookings[id]
	b.Status = status
	b.DeclineReason = declineReason
	m.store(b)
	return nil
}

func (m *mockBookingRepo) UpdateSlot(ctx context.Context, id string, slot models.Slot) error {
	if m.failSave {
		return sql.ErrConnDone
	}
	b := m.bookings[id]
	b.Slot = slot
	m.store(b)
	return nil
}

type mockListingRepo struct {
	listings map[string]models.Listing
}

func (m *mockListingRepo) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	if l, ok := m.listings[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

type mockPublisher struct {
	events []Event
}

func (m *mockPublisher) Publish(event Event) {
	m.events = append(m.events, event)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newBookingFixture() (*BookingService, *mockBookingRepo, *mockPublisher) {
	repo := &mockBookingRepo{}
	listings := &mockListingRepo{listings: map[string]models.Listing{
		"lst-1": {ID: "lst-1", TeacherID: "t-1", Subject: "Math", ClassKind: models.ClassKindIndividual, HourlyRate: 40},
	}}
	publisher := &mockPublisher{}
	svc := NewBookingService(repo, listings, publisher, nil, nil, nil, nil, time.UTC).
		WithClock(fixedClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)))
	return svc, repo, publisher
}

func createRequest() CreateBookingRequest {
	return CreateBookingRequest{
		TeacherID:       "t-1",
		StudentID:       "s-1",
		ListingID:       "lst-1",
		Date:            "2025-01-20",
		Time:            "11:00",
		DurationMinutes: 90,
		Format:          models.FormatOnline,
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, code, appErr.Code)
}

func TestBookingCreateFreezesPrice(t *testing.T) {
	svc, _, publisher := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusPending, view.Status)
	assert.Equal(t, models.BookingStatusPending, view.EffectiveStatus)
	assert.Equal(t, 60.0, view.Price) // 40/h * 90min
	assert.Equal(t, "Math", view.Subject)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, EventBookingRequested, publisher.events[0].Type)
}

func TestBookingCreateOccupiedSlot(t *testing.T) {
	svc, _, _ := newBookingFixture()

	_, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	req := createRequest()
	req.StudentID = "s-2"
	_, err = svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrSlotConflict.Code)
}

func TestBookingCreateOfflineRequiresLocation(t *testing.T) {
	svc, repo, _ := newBookingFixture()

	req := createRequest()
	req.Format = models.FormatOffline
	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrValidation.Code)
	assert.Empty(t, repo.bookings)

	req.Location = "Room 12"
	view, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, view.Location)
	assert.Equal(t, "Room 12", *view.Location)
	assert.Nil(t, view.MeetingLink)
}

func TestBookingCreatePersistenceFailure(t *testing.T) {
	svc, repo, _ := newBookingFixture()
	repo.failSave = true

	_, err := svc.Create(context.Background(), createRequest())
	assertCode(t, err, appErrors.ErrPersistence.Code)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 503, appErr.Status)
}

func TestBookingApprove(t *testing.T) {
	svc, _, publisher := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, approved.Status)
	assert.Equal(t, models.BookingStatusUpcoming, approved.EffectiveStatus)
	assert.Equal(t, EventBookingApproved, publisher.events[len(publisher.events)-1].Type)

	_, err = svc.Approve(context.Background(), view.ID)
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestBookingDeclineRequiresReason(t *testing.T) {
	svc, repo, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "   "})
	assertCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, models.BookingStatusPending, repo.bookings[view.ID].Status)

	declined, err := svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "schedule conflict"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusDeclined, declined.Status)
	require.NotNil(t, declined.DeclineReason)
	assert.Equal(t, "schedule conflict", *declined.DeclineReason)
}

func TestBookingDeclineApprovedRejected(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), view.ID)
	require.NoError(t, err)

	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "too late"})
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestBookingCancel(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), view.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), view.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusDeclined, cancelled.Status)
	require.NotNil(t, cancelled.DeclineReason)
	assert.Equal(t, "cancelled by teacher", *cancelled.DeclineReason)

	_, err = svc.Cancel(context.Background(), view.ID, "")
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestBookingDeclineFreesSlot(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "busy"})
	require.NoError(t, err)

	// The slot is free again for a new request.
	req := createRequest()
	req.StudentID = "s-2"
	_, err = svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestBookingReschedule(t *testing.T) {
	svc, repo, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	moved, err := svc.Reschedule(context.Background(), view.ID, RescheduleBookingRequest{Date: "2025-01-22", Time: "15:00"})
	require.NoError(t, err)
	assert.Equal(t, models.Slot{Date: "2025-01-22", Time: "15:00"}, moved.Slot)

	// Old slot is free, new one is occupied.
	_, err = repo.FindActiveBySlot(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "11:00"})
	assert.Equal(t, sql.ErrNoRows, err)
	occupant, err := repo.FindActiveBySlot(context.Background(), "t-1", models.Slot{Date: "2025-01-22", Time: "15:00"})
	require.NoError(t, err)
	assert.Equal(t, view.ID, occupant.ID)
}

func TestBookingRescheduleConflictLeavesOriginal(t *testing.T) {
	svc, repo, _ := newBookingFixture()

	first, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	req := createRequest()
	req.StudentID = "s-2"
	req.Date = "2025-01-21"
	second, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), second.ID, RescheduleBookingRequest{Date: first.Slot.Date, Time: first.Slot.Time})
	assertCode(t, err, appErrors.ErrSlotConflict.Code)
	assert.Equal(t, models.Slot{Date: "2025-01-21", Time: "11:00"}, repo.bookings[second.ID].Slot)
}

func TestBookingRescheduleOwnSlotNoop(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)

	same, err := svc.Reschedule(context.Background(), view.ID, RescheduleBookingRequest{Date: view.Slot.Date, Time: view.Slot.Time})
	require.NoError(t, err)
	assert.Equal(t, view.Slot, same.Slot)
}

func TestBookingRescheduleDeclinedRejected(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "busy"})
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), view.ID, RescheduleBookingRequest{Date: "2025-01-23", Time: "10:00"})
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestBookingUpdatePreservesStatus(t *testing.T) {
	svc, repo, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), view.ID)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), view.ID, UpdateBookingRequest{
		DurationMinutes: 120,
		Subject:         "Advanced Math",
		Format:          models.FormatOnline,
		MeetingLink:     "https://meet.example/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, updated.Status)
	assert.Equal(t, 120, updated.DurationMinutes)
	// Price stays frozen regardless of the edited duration.
	assert.Equal(t, 60.0, updated.Price)

	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "x"})
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
	assert.Equal(t, models.BookingStatusApproved, repo.bookings[view.ID].Status)
}

func TestBookingUpdateDeclinedRejected(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Decline(context.Background(), view.ID, DeclineBookingRequest{Reason: "busy"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), view.ID, UpdateBookingRequest{
		DurationMinutes: 60,
		Subject:         "Math",
		Format:          models.FormatOnline,
	})
	assertCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestBookingGetNotFound(t *testing.T) {
	svc, _, _ := newBookingFixture()

	_, err := svc.Get(context.Background(), "missing")
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestBookingEffectiveStatusInList(t *testing.T) {
	svc, _, _ := newBookingFixture()

	view, err := svc.Create(context.Background(), createRequest())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), view.ID)
	require.NoError(t, err)

	// Move the clock past the lesson end: the stored status stays APPROVED,
	// the derived one flips to FINISHED.
	svc.WithClock(fixedClock(time.Date(2025, 1, 20, 13, 0, 0, 0, time.UTC)))
	got, err := svc.Get(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, got.Status)
	assert.Equal(t, models.BookingStatusFinished, got.EffectiveStatus)
}
