package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/schedule-api/internal/models"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type mockAvailabilityRepo struct {
	slots    map[string]models.AvailabilitySlot
	failRead bool
}

func availKey(teacherID string, slot models.Slot) string {
	return teacherID + "|" + slot.Key()
}

func (m *mockAvailabilityRepo) Exists(ctx context.Context, teacherID string, slot models.Slot) (bool, error) {
	if m.failRead {
		return false, sql.ErrConnDone
	}
	_, ok := m.slots[availKey(teacherID, slot)]
	return ok, nil
}

func (m *mockAvailabilityRepo) Insert(ctx context.Context, entry *models.AvailabilitySlot) error {
	if m.slots == nil {
		m.slots = make(map[string]models.AvailabilitySlot)
	}
	m.slots[availKey(entry.TeacherID, entry.Slot)] = *entry
	return nil
}

func (m *mockAvailabilityRepo) Delete(ctx context.Context, teacherID string, slot models.Slot) error {
	delete(m.slots, availKey(teacherID, slot))
	return nil
}

func (m *mockAvailabilityRepo) ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	var out []models.AvailabilitySlot
	for _, s := range m.slots {
		if s.TeacherID == teacherID && s.Slot.Date >= fromDate && s.Slot.Date <= toDate {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestAvailabilityToggle(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	bookings := &mockBookingRepo{}
	svc := NewAvailabilityService(repo, bookings, nil, nil)

	slot := models.Slot{Date: "2025-01-20", Time: "11:00"}

	available, err := svc.Toggle(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.True(t, available)

	available, err = svc.Toggle(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.False(t, available)
	assert.Empty(t, repo.slots)
}

func TestAvailabilityToggleOccupiedSlot(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	bookings := &mockBookingRepo{}
	bookings.store(models.Booking{
		ID:        "bk-1",
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-20", Time: "11:00"},
		Status:    models.BookingStatusPending,
	})
	svc := NewAvailabilityService(repo, bookings, nil, nil)

	_, err := svc.Toggle(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "11:00"})
	assertCode(t, err, appErrors.ErrOccupiedSlot.Code)
	assert.Empty(t, repo.slots)
}

func TestAvailabilityToggleDeclinedSlotIsFree(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	bookings := &mockBookingRepo{}
	bookings.store(models.Booking{
		ID:        "bk-1",
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-20", Time: "11:00"},
		Status:    models.BookingStatusDeclined,
	})
	svc := NewAvailabilityService(repo, bookings, nil, nil)

	available, err := svc.Toggle(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "11:00"})
	require.NoError(t, err)
	assert.True(t, available)
}

func TestAvailabilityToggleInvalidSlot(t *testing.T) {
	svc := NewAvailabilityService(&mockAvailabilityRepo{}, &mockBookingRepo{}, nil, nil)

	_, err := svc.Toggle(context.Background(), "t-1", models.Slot{Date: "tomorrow", Time: "11:00"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAvailabilityTogglePersistenceFailure(t *testing.T) {
	repo := &mockAvailabilityRepo{failRead: true}
	svc := NewAvailabilityService(repo, &mockBookingRepo{}, nil, nil)

	_, err := svc.Toggle(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "11:00"})
	assertCode(t, err, appErrors.ErrPersistence.Code)
}

func TestAvailabilityIsAvailable(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	svc := NewAvailabilityService(repo, &mockBookingRepo{}, nil, nil)

	slot := models.Slot{Date: "2025-01-20", Time: "11:00"}
	open, err := svc.IsAvailable(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.False(t, open)

	_, err = svc.Toggle(context.Background(), "t-1", slot)
	require.NoError(t, err)
	open, err = svc.IsAvailable(context.Background(), "t-1", slot)
	require.NoError(t, err)
	assert.True(t, open)
}
