package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/internal/models"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type availabilityRepository interface {
	Exists(ctx context.Context, teacherID string, slot models.Slot) (bool, error)
	Insert(ctx context.Context, entry *models.AvailabilitySlot) error
	Delete(ctx context.Context, teacherID string, slot models.Slot) error
	ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error)
}

type activeBookingReader interface {
	FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error)
}

// AvailabilityService is the registry of slots a teacher has opened for
// booking. It guards the exclusivity invariant: a slot occupied by an active
// booking can never be toggled available.
type AvailabilityService struct {
	repo     availabilityRepository
	bookings activeBookingReader
	cache    *CacheService
	logger   *zap.Logger
}

// NewAvailabilityService constructs AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, bookings activeBookingReader, cache *CacheService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, bookings: bookings, cache: cache, logger: logger}
}

// Toggle flips a slot's membership in the available set and returns the new
// state. Toggling a slot held by an active booking fails with OCCUPIED_SLOT.
// Future-dating is not validated here; that is the caller's concern.
func (s *AvailabilityService) Toggle(ctx context.Context, teacherID string, slot models.Slot) (bool, error) {
	if err := slot.Validate(); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot")
	}

	if _, err := s.bookings.FindActiveBySlot(ctx, teacherID, slot); err == nil {
		return false, appErrors.Clone(appErrors.ErrOccupiedSlot, "")
	} else if err != sql.ErrNoRows {
		return false, appErrors.Persistence(err, "failed to check slot occupancy")
	}

	available, err := s.repo.Exists(ctx, teacherID, slot)
	if err != nil {
		return false, appErrors.Persistence(err, "failed to read availability")
	}

	if available {
		if err := s.repo.Delete(ctx, teacherID, slot); err != nil {
			return false, appErrors.Persistence(err, "failed to remove availability")
		}
	} else {
		entry := &models.AvailabilitySlot{TeacherID: teacherID, Slot: slot}
		if err := s.repo.Insert(ctx, entry); err != nil {
			return false, appErrors.Persistence(err, "failed to add availability")
		}
	}

	s.cache.InvalidateTeacher(ctx, teacherID)
	s.logger.Debug("availability toggled",
		zap.String("teacher_id", teacherID),
		zap.String("slot", slot.Key()),
		zap.Bool("available", !available))
	return !available, nil
}

// IsAvailable reports whether a slot is currently open for booking.
func (s *AvailabilityService) IsAvailable(ctx context.Context, teacherID string, slot models.Slot) (bool, error) {
	if err := slot.Validate(); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot")
	}
	available, err := s.repo.Exists(ctx, teacherID, slot)
	if err != nil {
		return false, appErrors.Persistence(err, "failed to read availability")
	}
	return available, nil
}

// ListRange returns the availability entries within a date range.
func (s *AvailabilityService) ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	entries, err := s.repo.ListRange(ctx, teacherID, fromDate, toDate)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list availability")
	}
	return entries, nil
}
