package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/internal/service"
)

type fakeAvailabilityRepo struct {
	slots map[string]models.AvailabilitySlot
}

func slotKey(teacherID string, slot models.Slot) string {
	return teacherID + "|" + slot.Key()
}

func (f *fakeAvailabilityRepo) Exists(ctx context.Context, teacherID string, slot models.Slot) (bool, error) {
	_, ok := f.slots[slotKey(teacherID, slot)]
	return ok, nil
}

func (f *fakeAvailabilityRepo) Insert(ctx context.Context, entry *models.AvailabilitySlot) error {
	if f.slots == nil {
		f.slots = make(map[string]models.AvailabilitySlot)
	}
	f.slots[slotKey(entry.TeacherID, entry.Slot)] = *entry
	return nil
}

func (f *fakeAvailabilityRepo) Delete(ctx context.Context, teacherID string, slot models.Slot) error {
	delete(f.slots, slotKey(teacherID, slot))
	return nil
}

func (f *fakeAvailabilityRepo) ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	var out []models.AvailabilitySlot
	for _, s := range f.slots {
		if s.TeacherID == teacherID && s.Slot.Date >= fromDate && s.Slot.Date <= toDate {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeActiveBookings struct {
	occupied map[string]models.Booking
}

func (f *fakeActiveBookings) FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error) {
	if b, ok := f.occupied[slotKey(teacherID, slot)]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newAvailabilityTestHandler(occupied map[string]models.Booking) *AvailabilityHandler {
	svc := service.NewAvailabilityService(&fakeAvailabilityRepo{}, &fakeActiveBookings{occupied: occupied}, nil, nil)
	return NewAvailabilityHandler(svc)
}

func performToggle(handler *AvailabilityHandler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "teacherId", Value: "t-1"}}
	c.Request = httptest.NewRequest(http.MethodPost, "/teachers/t-1/availability/toggle", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.Toggle(c)
	return rec
}

func TestAvailabilityHandlerToggle(t *testing.T) {
	handler := newAvailabilityTestHandler(nil)

	rec := performToggle(handler, `{"date":"2025-01-20","time":"11:00"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, true, env.Data["available"])

	rec = performToggle(handler, `{"date":"2025-01-20","time":"11:00"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, false, env.Data["available"])
}

func TestAvailabilityHandlerToggleOccupied(t *testing.T) {
	slot := models.Slot{Date: "2025-01-20", Time: "11:00"}
	handler := newAvailabilityTestHandler(map[string]models.Booking{
		slotKey("t-1", slot): {ID: "bk-1", TeacherID: "t-1", Slot: slot, Status: models.BookingStatusApproved},
	})

	rec := performToggle(handler, `{"date":"2025-01-20","time":"11:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "OCCUPIED_SLOT", env.Error.Code)
}

func TestAvailabilityHandlerToggleBadPayload(t *testing.T) {
	handler := newAvailabilityTestHandler(nil)

	rec := performToggle(handler, `{"date":"2025-01-20"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityHandlerListRequiresRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAvailabilityTestHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "teacherId", Value: "t-1"}}
	c.Request = httptest.NewRequest(http.MethodGet, "/teachers/t-1/availability", nil)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
