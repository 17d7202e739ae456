package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/pkg/config"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type rangeBookingReader interface {
	FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error)
	ListActiveRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.Booking, error)
}

type rangeAvailabilityReader interface {
	ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error)
}

type availabilityToggler interface {
	Toggle(ctx context.Context, teacherID string, slot models.Slot) (bool, error)
	IsAvailable(ctx context.Context, teacherID string, slot models.Slot) (bool, error)
}

// ScheduleService composes the availability registry and booking records into
// a renderable week matrix, and resolves raw grid gestures into domain
// intents. Reads flow registry+records -> grid; writes flow gesture ->
// transition -> re-render.
type ScheduleService struct {
	bookings     rangeBookingReader
	availability rangeAvailabilityReader
	toggler      availabilityToggler
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	timeRows     []string
	loc          *time.Location
	now          func() time.Time
}

// NewScheduleService constructs ScheduleService. The grid shape (time rows,
// timezone) comes from configuration.
func NewScheduleService(bookings rangeBookingReader, availability rangeAvailabilityReader, toggler availabilityToggler, cache *CacheService, metrics *MetricsService, cfg config.GridConfig, logger *zap.Logger) (*ScheduleService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows, err := buildTimeRows(cfg)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load grid timezone: %w", err)
		}
	}
	return &ScheduleService{
		bookings:     bookings,
		availability: availability,
		toggler:      toggler,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		timeRows:     rows,
		loc:          loc,
		now:          time.Now,
	}, nil
}

// WithClock overrides the time source. Used by tests.
func (s *ScheduleService) WithClock(now func() time.Time) *ScheduleService {
	s.now = now
	return s
}

func buildTimeRows(cfg config.GridConfig) ([]string, error) {
	start, err := time.Parse(models.SlotTimeLayout, cfg.DayStart)
	if err != nil {
		return nil, fmt.Errorf("invalid grid day start %q: %w", cfg.DayStart, err)
	}
	end, err := time.Parse(models.SlotTimeLayout, cfg.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid grid day end %q: %w", cfg.DayEnd, err)
	}
	step := cfg.SlotMinutes
	if step <= 0 {
		step = 60
	}
	if !end.After(start) {
		return nil, fmt.Errorf("grid day end %q must be after start %q", cfg.DayEnd, cfg.DayStart)
	}
	var rows []string
	for t := start; t.Before(end); t = t.Add(time.Duration(step) * time.Minute) {
		rows = append(rows, t.Format(models.SlotTimeLayout))
	}
	return rows, nil
}

// Week assembles the 7-day matrix starting at the Monday of the week holding
// the given date. The result is cached per teacher and week; any slot
// mutation invalidates it.
func (s *ScheduleService) Week(ctx context.Context, teacherID, date string) (*models.Week, error) {
	day, err := time.ParseInLocation(models.SlotDateLayout, date, s.loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week date")
	}
	weekStart := models.WeekStart(day)
	startStr := weekStart.Format(models.SlotDateLayout)
	endStr := weekStart.AddDate(0, 0, 6).Format(models.SlotDateLayout)

	cacheKey := WeekKey(teacherID, startStr)
	var cached models.Week
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		s.refreshDerivedStatuses(&cached)
		return &cached, nil
	}

	entries, err := s.availability.ListRange(ctx, teacherID, startStr, endStr)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load availability")
	}
	bookings, err := s.bookings.ListActiveRange(ctx, teacherID, startStr, endStr)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load bookings")
	}

	available := make(map[models.Slot]struct{}, len(entries))
	for _, entry := range entries {
		available[entry.Slot] = struct{}{}
	}
	occupied := make(map[models.Slot]*models.Booking, len(bookings))
	for i := range bookings {
		occupied[bookings[i].Slot] = &bookings[i]
	}

	now := s.now()
	week := &models.Week{
		TeacherID: teacherID,
		WeekStart: startStr,
		TimeRows:  s.timeRows,
		Days:      make([]models.Day, 0, 7),
	}
	for d := 0; d < 7; d++ {
		dayDate := weekStart.AddDate(0, 0, d)
		dayStr := dayDate.Format(models.SlotDateLayout)
		day := models.Day{
			Date:    dayStr,
			Weekday: dayDate.Weekday().String(),
			Cells:   make([]models.Cell, 0, len(s.timeRows)),
		}
		for _, row := range s.timeRows {
			slot := models.Slot{Date: dayStr, Time: row}
			cell := models.Cell{Slot: slot, State: models.CellEmpty}
			if booking, ok := occupied[slot]; ok {
				cell.State = models.CellOccupied
				cell.Booking = &models.BookingView{
					Booking:         *booking,
					EffectiveStatus: booking.EffectiveStatus(now, s.loc),
				}
			} else if _, ok := available[slot]; ok {
				cell.State = models.CellAvailable
			}
			day.Cells = append(day.Cells, cell)
		}
		week.Days = append(week.Days, day)
	}

	s.cache.Set(ctx, cacheKey, week)
	return week, nil
}

// refreshDerivedStatuses recomputes the time-based status of every occupied
// cell. Cached grids store the stored state; what UPCOMING or FINISHED means
// depends on the clock at read time, so it is never served stale.
func (s *ScheduleService) refreshDerivedStatuses(week *models.Week) {
	now := s.now()
	for di := range week.Days {
		for ci := range week.Days[di].Cells {
			if view := week.Days[di].Cells[ci].Booking; view != nil {
				view.EffectiveStatus = view.Booking.EffectiveStatus(now, s.loc)
			}
		}
	}
}

// ResolveGesture maps a low-level grid interaction onto a domain intent and,
// for the availability toggle, applies it inline. All other intents are
// returned for the client to open the matching view.
func (s *ScheduleService) ResolveGesture(ctx context.Context, teacherID string, slot models.Slot, gesture models.Gesture) (*models.GestureResolution, error) {
	if err := slot.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot")
	}
	if gesture != models.GestureClick && gesture != models.GestureDoubleClick {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gesture")
	}

	booking, err := s.bookings.FindActiveBySlot(ctx, teacherID, slot)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to inspect slot")
	}
	occupied := err == nil

	resolution := &models.GestureResolution{Slot: slot}
	switch {
	case occupied && gesture == models.GestureClick:
		resolution.Action = models.ActionViewBooking
		resolution.Booking = &models.BookingView{
			Booking:         *booking,
			EffectiveStatus: booking.EffectiveStatus(s.now(), s.loc),
		}
	case occupied && gesture == models.GestureDoubleClick:
		resolution.Action = models.ActionEditBooking
		resolution.Booking = &models.BookingView{
			Booking:         *booking,
			EffectiveStatus: booking.EffectiveStatus(s.now(), s.loc),
		}
	case !occupied && gesture == models.GestureClick:
		available, err := s.toggler.Toggle(ctx, teacherID, slot)
		if err != nil {
			return nil, err
		}
		resolution.Action = models.ActionToggledAvailability
		resolution.Available = available
	default: // empty cell, double click
		available, err := s.toggler.IsAvailable(ctx, teacherID, slot)
		if err != nil {
			return nil, err
		}
		resolution.Action = models.ActionCreateBooking
		resolution.Available = available
	}

	if s.metrics != nil {
		s.metrics.RecordGesture(string(resolution.Action))
	}
	return resolution, nil
}
