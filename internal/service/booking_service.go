package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/internal/models"
	"github.com/tutorbase/schedule-api/internal/repository"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	Create(ctx context.Context, booking *models.Booking) error
	UpdateDetails(ctx context.Context, booking *models.Booking) error
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus, declineReason *string) error
	UpdateSlot(ctx context.Context, id string, slot models.Slot) error
}

type listingReader interface {
	FindByID(ctx context.Context, id string) (*models.Listing, error)
}

type eventPublisher interface {
	Publish(event Event)
}

// CreateBookingRequest describes a booking creation payload, either a student
// request or a teacher-initiated schedule entry.
type CreateBookingRequest struct {
	TeacherID       string              `json:"teacher_id" validate:"required"`
	StudentID       string              `json:"student_id"`
	ListingID       string              `json:"listing_id" validate:"required"`
	Date            string              `json:"date" validate:"required"`
	Time            string              `json:"time" validate:"required"`
	DurationMinutes int                 `json:"duration_minutes" validate:"required,gt=0"`
	Subject         string              `json:"subject"`
	Format          models.LessonFormat `json:"format" validate:"required,oneof=ONLINE OFFLINE"`
	Location        string              `json:"location"`
	MeetingLink     string              `json:"meeting_link"`
	Notes           string              `json:"notes"`
}

// UpdateBookingRequest carries the editable fields of a booking. Status is
// never changed through an edit; approve/decline are explicit actions.
type UpdateBookingRequest struct {
	DurationMinutes int                 `json:"duration_minutes" validate:"required,gt=0"`
	Subject         string              `json:"subject" validate:"required"`
	Format          models.LessonFormat `json:"format" validate:"required,oneof=ONLINE OFFLINE"`
	Location        string              `json:"location"`
	MeetingLink     string              `json:"meeting_link"`
	Notes           string              `json:"notes"`
}

// DeclineBookingRequest requires a reason for the student.
type DeclineBookingRequest struct {
	Reason string `json:"reason"`
}

// RescheduleBookingRequest names the target slot.
type RescheduleBookingRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// BookingService owns the booking lifecycle: creation against the pricing
// input, the pending/approved/declined state machine, and slot moves. Time
// based statuses are derived at read time, never stored.
type BookingService struct {
	repo      bookingRepository
	listings  listingReader
	notifier  eventPublisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewBookingService constructs BookingService.
func NewBookingService(repo bookingRepository, listings listingReader, notifier eventPublisher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingService{
		repo:      repo,
		listings:  listings,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) view(b *models.Booking) *models.BookingView {
	return &models.BookingView{Booking: *b, EffectiveStatus: b.EffectiveStatus(s.now(), s.loc)}
}

// Get returns a booking with its derived status.
func (s *BookingService) Get(ctx context.Context, id string) (*models.BookingView, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Persistence(err, "failed to load booking")
	}
	return s.view(booking), nil
}

// List returns bookings with pagination metadata and derived statuses.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingView, *models.Pagination, error) {
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to list bookings")
	}
	views := make([]models.BookingView, 0, len(bookings))
	for i := range bookings {
		views = append(views, *s.view(&bookings[i]))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return views, pagination, nil
}

// Create registers a pending booking on a slot. The price is computed from
// the listing's hourly rate at this moment and frozen on the record.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*models.BookingView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	slot := models.Slot{Date: req.Date, Time: req.Time}
	if err := slot.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot")
	}

	listing, err := s.listings.FindByID(ctx, req.ListingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return nil, appErrors.Persistence(err, "failed to load listing")
	}
	if listing.TeacherID != req.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "listing does not belong to teacher")
	}

	booking := &models.Booking{
		TeacherID:       req.TeacherID,
		Slot:            slot,
		DurationMinutes: req.DurationMinutes,
		Subject:         req.Subject,
		ClassKind:       listing.ClassKind,
		Format:          req.Format,
		Notes:           req.Notes,
		Price:           listing.HourlyRate * float64(req.DurationMinutes) / 60,
		Status:          models.BookingStatusPending,
	}
	if booking.Subject == "" {
		booking.Subject = listing.Subject
	}
	if listing.ClassKind == models.ClassKindGroup {
		booking.ListingID = &listing.ID
	} else {
		if req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "individual lesson requires a student")
		}
		booking.StudentID = &req.StudentID
		booking.ListingID = &listing.ID
	}
	if err := applyFormat(booking, req.Format, req.Location, req.MeetingLink); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindActiveBySlot(ctx, req.TeacherID, slot); err == nil {
		return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to check slot occupancy")
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		return nil, appErrors.Persistence(err, "failed to save booking")
	}

	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	if s.metrics != nil {
		s.metrics.RecordTransition("created")
	}
	s.publish(EventBookingRequested, booking.TeacherID, booking)

	return s.view(booking), nil
}

// Approve confirms a pending booking. The slot remains occupied by the now
// approved record.
func (s *BookingService) Approve(ctx context.Context, id string) (*models.BookingView, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending bookings can be approved")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.BookingStatusApproved, nil); err != nil {
		return nil, appErrors.Persistence(err, "failed to approve booking")
	}
	booking.Status = models.BookingStatusApproved

	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	if s.metrics != nil {
		s.metrics.RecordTransition("approved")
	}
	s.publish(EventBookingApproved, recipientOf(booking), booking)
	return s.view(booking), nil
}

// Decline rejects a pending booking and frees its slot. The slot is not
// re-added to availability automatically; the teacher toggles it back if
// wanted.
func (s *BookingService) Decline(ctx context.Context, id string, req DeclineBookingRequest) (*models.BookingView, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decline requires a reason")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending bookings can be declined")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.BookingStatusDeclined, &reason); err != nil {
		return nil, appErrors.Persistence(err, "failed to decline booking")
	}
	booking.Status = models.BookingStatusDeclined
	booking.DeclineReason = &reason

	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	if s.metrics != nil {
		s.metrics.RecordTransition("declined")
	}
	s.publish(EventBookingDeclined, recipientOf(booking), booking)
	return s.view(booking), nil
}

// Cancel is a teacher-initiated termination of a pending or approved booking.
// It forces the record to declined and frees the slot; the record itself is
// kept.
func (s *BookingService) Cancel(ctx context.Context, id string, reason string) (*models.BookingView, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusDeclined {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking already declined")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by teacher"
	}
	if err := s.repo.UpdateStatus(ctx, id, models.BookingStatusDeclined, &reason); err != nil {
		return nil, appErrors.Persistence(err, "failed to cancel booking")
	}
	booking.Status = models.BookingStatusDeclined
	booking.DeclineReason = &reason

	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	if s.metrics != nil {
		s.metrics.RecordTransition("cancelled")
	}
	s.publish(EventBookingDeclined, recipientOf(booking), booking)
	return s.view(booking), nil
}

// Reschedule moves a pending or approved booking to a new slot. The old slot
// is vacated and the new one occupied atomically.
func (s *BookingService) Reschedule(ctx context.Context, id string, req RescheduleBookingRequest) (*models.BookingView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	newSlot := models.Slot{Date: req.Date, Time: req.Time}
	if err := newSlot.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot")
	}

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending or approved bookings can be rescheduled")
	}

	if occupant, err := s.repo.FindActiveBySlot(ctx, booking.TeacherID, newSlot); err == nil {
		if occupant.ID != booking.ID {
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		return s.view(booking), nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to check target slot")
	}

	if err := s.repo.UpdateSlot(ctx, id, newSlot); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		return nil, appErrors.Persistence(err, "failed to reschedule booking")
	}
	booking.Slot = newSlot

	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	if s.metrics != nil {
		s.metrics.RecordTransition("rescheduled")
	}
	s.publish(EventBookingRescheduled, recipientOf(booking), booking)
	return s.view(booking), nil
}

// Update edits a booking's lesson details in place. The stored status is
// preserved; only approve/decline/cancel change it. Duration edits are not
// checked against neighboring slots.
func (s *BookingService) Update(ctx context.Context, id string, req UpdateBookingRequest) (*models.BookingView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusDeclined {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "declined bookings cannot be edited")
	}

	booking.DurationMinutes = req.DurationMinutes
	booking.Subject = req.Subject
	booking.Notes = req.Notes
	if err := applyFormat(booking, req.Format, req.Location, req.MeetingLink); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDetails(ctx, booking); err != nil {
		return nil, appErrors.Persistence(err, "failed to update booking")
	}
	s.cache.InvalidateTeacher(ctx, booking.TeacherID)
	return s.view(booking), nil
}

func (s *BookingService) load(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Persistence(err, "failed to load booking")
	}
	return booking, nil
}

func (s *BookingService) publish(eventType, recipient string, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(Event{
		Type:      eventType,
		Recipient: recipient,
		Payload: map[string]interface{}{
			"booking_id": booking.ID,
			"teacher_id": booking.TeacherID,
			"date":       booking.Slot.Date,
			"time":       booking.Slot.Time,
			"status":     booking.Status,
		},
	})
}

// applyFormat sets the format variant fields, rejecting combinations the
// model does not allow: offline without a location, or offline with a
// meeting link.
func applyFormat(booking *models.Booking, format models.LessonFormat, location, meetingLink string) error {
	booking.Format = format
	booking.Location = nil
	booking.MeetingLink = nil
	switch format {
	case models.FormatOffline:
		if strings.TrimSpace(location) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "offline lessons require a location")
		}
		if meetingLink != "" {
			return appErrors.Clone(appErrors.ErrValidation, "offline lessons cannot carry a meeting link")
		}
		loc := location
		booking.Location = &loc
	case models.FormatOnline:
		if location != "" {
			return appErrors.Clone(appErrors.ErrValidation, "online lessons cannot carry a location")
		}
		if meetingLink != "" {
			link := meetingLink
			booking.MeetingLink = &link
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown lesson format")
	}
	return nil
}

func recipientOf(booking *models.Booking) string {
	if booking.StudentID != nil {
		return *booking.StudentID
	}
	if booking.ListingID != nil {
		return *booking.ListingID
	}
	return booking.TeacherID
}

