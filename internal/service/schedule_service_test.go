package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/pkg/config"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

func (m *mockBookingRepo) ListActiveRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TeacherID == teacherID && b.Active() && b.Slot.Date >= fromDate && b.Slot.Date <= toDate {
			out = append(out, b)
		}
	}
	return out, nil
}

func testGridConfig() config.GridConfig {
	return config.GridConfig{DayStart: "09:00", DayEnd: "12:00", SlotMinutes: 60, Timezone: "UTC"}
}

func newScheduleFixture() (*ScheduleService, *mockBookingRepo, *mockAvailabilityRepo) {
	bookings := &mockBookingRepo{}
	availability := &mockAvailabilityRepo{}
	toggler := NewAvailabilityService(availability, bookings, nil, nil)
	svc, err := NewScheduleService(bookings, availability, toggler, nil, nil, testGridConfig(), nil)
	if err != nil {
		panic(err)
	}
	return svc.WithClock(fixedClock(time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC))), bookings, availability
}

func TestBuildTimeRows(t *testing.T) {
	rows, err := buildTimeRows(testGridConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, rows)

	rows, err = buildTimeRows(config.GridConfig{DayStart: "08:00", DayEnd: "10:00", SlotMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30"}, rows)

	_, err = buildTimeRows(config.GridConfig{DayStart: "21:00", DayEnd: "08:00", SlotMinutes: 60})
	assert.Error(t, err)
}

func TestWeekMatrix(t *testing.T) {
	svc, bookings, availability := newScheduleFixture()

	require.NoError(t, availability.Insert(context.Background(), &models.AvailabilitySlot{
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-21", Time: "10:00"},
	}))
	bookings.store(models.Booking{
		ID:        "bk-1",
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-22", Time: "09:00"},
		Subject:   "Math",
		Status:    models.BookingStatusApproved,
	})
	bookings.store(models.Booking{
		ID:        "bk-declined",
		TeacherID: "t-1",
		Slot:      models.Slot{Date: "2025-01-22", Time: "10:00"},
		Status:    models.BookingStatusDeclined,
	})

	// Any date inside the week resolves to the same Monday-anchored grid.
	week, err := svc.Week(context.Background(), "t-1", "2025-01-23")
	require.NoError(t, err)

	assert.Equal(t, "2025-01-20", week.WeekStart)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, week.TimeRows)
	require.Len(t, week.Days, 7)
	assert.Equal(t, "Monday", week.Days[0].Weekday)
	assert.Equal(t, "Sunday", week.Days[6].Weekday)
	for _, day := range week.Days {
		require.Len(t, day.Cells, 3)
	}

	tuesday, wednesday := week.Days[1], week.Days[2]
	assert.Equal(t, models.CellAvailable, tuesday.Cells[1].State)
	assert.Equal(t, models.CellOccupied, wednesday.Cells[0].State)
	require.NotNil(t, wednesday.Cells[0].Booking)
	assert.Equal(t, "bk-1", wednesday.Cells[0].Booking.ID)
	// A declined booking does not occupy its cell.
	assert.Equal(t, models.CellEmpty, wednesday.Cells[1].State)
	assert.Equal(t, models.CellEmpty, week.Days[0].Cells[0].State)
}

func TestWeekInvalidDate(t *testing.T) {
	svc, _, _ := newScheduleFixture()

	_, err := svc.Week(context.Background(), "t-1", "next week")
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestGestureClickEmptyTogglesAvailability(t *testing.T) {
	svc, _, availability := newScheduleFixture()
	slot := models.Slot{Date: "2025-01-20", Time: "09:00"}

	res, err := svc.ResolveGesture(context.Background(), "t-1", slot, models.GestureClick)
	require.NoError(t, err)
	assert.Equal(t, models.ActionToggledAvailability, res.Action)
	assert.True(t, res.Available)
	exists, _ := availability.Exists(context.Background(), "t-1", slot)
	assert.True(t, exists)

	// A second click toggles it back off.
	res, err = svc.ResolveGesture(context.Background(), "t-1", slot, models.GestureClick)
	require.NoError(t, err)
	assert.Equal(t, models.ActionToggledAvailability, res.Action)
	assert.False(t, res.Available)
}

func TestGestureClickOccupiedViewsBooking(t *testing.T) {
	svc, bookings, _ := newScheduleFixture()
	slot := models.Slot{Date: "2025-01-20", Time: "09:00"}
	bookings.store(models.Booking{ID: "bk-1", TeacherID: "t-1", Slot: slot, Status: models.BookingStatusPending})

	res, err := svc.ResolveGesture(context.Background(), "t-1", slot, models.GestureClick)
	require.NoError(t, err)
	assert.Equal(t, models.ActionViewBooking, res.Action)
	require.NotNil(t, res.Booking)
	assert.Equal(t, "bk-1", res.Booking.ID)
}

func TestGestureDoubleClickOccupiedEditsBooking(t *testing.T) {
	svc, bookings, _ := newScheduleFixture()
	slot := models.Slot{Date: "2025-01-20", Time: "09:00"}
	bookings.store(models.Booking{ID: "bk-1", TeacherID: "t-1", Slot: slot, Status: models.BookingStatusApproved})

	res, err := svc.ResolveGesture(context.Background(), "t-1", slot, models.GestureDoubleClick)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEditBooking, res.Action)
	require.NotNil(t, res.Booking)
}

func TestGestureDoubleClickEmptyCreatesBooking(t *testing.T) {
	svc, _, availability := newScheduleFixture()
	slot := models.Slot{Date: "2025-01-20", Time: "09:00"}
	require.NoError(t, availability.Insert(context.Background(), &models.AvailabilitySlot{TeacherID: "t-1", Slot: slot}))

	res, err := svc.ResolveGesture(context.Background(), "t-1", slot, models.GestureDoubleClick)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateBooking, res.Action)
	assert.True(t, res.Available)
	// The gesture itself does not consume the availability entry.
	exists, _ := availability.Exists(context.Background(), "t-1", slot)
	assert.True(t, exists)
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func newCachedScheduleFixture(clock func() time.Time) (*ScheduleService, *BookingService, *mockBookingRepo) {
	bookings := &mockBookingRepo{}
	availability := &mockAvailabilityRepo{}
	listings := &mockListingRepo{listings: map[string]models.Listing{
		"lst-1": {ID: "lst-1", TeacherID: "t-1", Subject: "Math", ClassKind: models.ClassKindIndividual, HourlyRate: 40},
	}}
	cache := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, nil, true)
	toggler := NewAvailabilityService(availability, bookings, nil, nil)
	scheduleSvc, err := NewScheduleService(bookings, availability, toggler, cache, nil, testGridConfig(), nil)
	if err != nil {
		panic(err)
	}
	bookingSvc := NewBookingService(bookings, listings, nil, cache, nil, nil, nil, time.UTC).WithClock(clock)
	return scheduleSvc.WithClock(clock), bookingSvc, bookings
}

func TestWeekCacheDroppedOnApprove(t *testing.T) {
	clock := fixedClock(time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC))
	scheduleSvc, bookingSvc, bookings := newCachedScheduleFixture(clock)
	slot := models.Slot{Date: "2025-01-22", Time: "09:00"}
	studentID := "s-1"
	bookings.store(models.Booking{
		ID:              "bk-1",
		TeacherID:       "t-1",
		StudentID:       &studentID,
		Slot:            slot,
		DurationMinutes: 60,
		Status:          models.BookingStatusPending,
	})

	week, err := scheduleSvc.Week(context.Background(), "t-1", "2025-01-20")
	require.NoError(t, err)
	require.NotNil(t, week.Days[2].Cells[0].Booking)
	assert.Equal(t, models.BookingStatusPending, week.Days[2].Cells[0].Booking.Status)

	_, err = bookingSvc.Approve(context.Background(), "bk-1")
	require.NoError(t, err)

	week, err = scheduleSvc.Week(context.Background(), "t-1", "2025-01-20")
	require.NoError(t, err)
	require.NotNil(t, week.Days[2].Cells[0].Booking)
	assert.Equal(t, models.BookingStatusApproved, week.Days[2].Cells[0].Booking.Status)
	assert.Equal(t, models.BookingStatusUpcoming, week.Days[2].Cells[0].Booking.EffectiveStatus)
}

func TestWeekCachedDerivedStatusFollowsClock(t *testing.T) {
	now := time.Date(2025, 1, 22, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	scheduleSvc, _, bookings := newCachedScheduleFixture(clock)
	bookings.store(models.Booking{
		ID:              "bk-1",
		TeacherID:       "t-1",
		Slot:            models.Slot{Date: "2025-01-22", Time: "09:00"},
		DurationMinutes: 60,
		Status:          models.BookingStatusApproved,
	})

	week, err := scheduleSvc.Week(context.Background(), "t-1", "2025-01-20")
	require.NoError(t, err)
	require.NotNil(t, week.Days[2].Cells[0].Booking)
	assert.Equal(t, models.BookingStatusUpcoming, week.Days[2].Cells[0].Booking.EffectiveStatus)

	// The lesson ends; the cached grid must not keep reporting it upcoming.
	now = time.Date(2025, 1, 22, 10, 0, 0, 0, time.UTC)
	week, err = scheduleSvc.Week(context.Background(), "t-1", "2025-01-20")
	require.NoError(t, err)
	require.NotNil(t, week.Days[2].Cells[0].Booking)
	assert.Equal(t, models.BookingStatusApproved, week.Days[2].Cells[0].Booking.Status)
	assert.Equal(t, models.BookingStatusFinished, week.Days[2].Cells[0].Booking.EffectiveStatus)
}

func TestGestureUnknownRejected(t *testing.T) {
	svc, _, _ := newScheduleFixture()

	_, err := svc.ResolveGesture(context.Background(), "t-1", models.Slot{Date: "2025-01-20", Time: "09:00"}, models.Gesture("TRIPLE_CLICK"))
	assertCode(t, err, appErrors.ErrValidation.Code)
}
