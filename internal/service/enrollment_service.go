package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/internal/models"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
)

type enrollmentRepository interface {
	FindCurrent(ctx context.Context, listingID, studentID string) (*models.Enrollment, error)
	ListByListing(ctx context.Context, listingID string) ([]models.Enrollment, error)
	CountByStatus(ctx context.Context, listingID string, status models.EnrollmentStatus) (int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	MarkWithdrawn(ctx context.Context, id string, leftAt time.Time) error
	FirstWaitlisted(ctx context.Context, listingID string) (*models.Enrollment, error)
	Activate(ctx context.Context, id string) error
	RenumberWaitlist(ctx context.Context, listingID string) error
	UpdateAttendance(ctx context.Context, id string, attended int) error
}

// EnrollStudentRequest describes an enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// EnrollmentService tracks per-listing capacity, the roster, and the FIFO
// waitlist for group classes. The roster never exceeds capacity; waitlist
// positions always form a dense 1..N sequence.
type EnrollmentService struct {
	repo      enrollmentRepository
	listings  listingReader
	notifier  eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, listings listingReader, notifier eventPublisher, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, listings: listings, notifier: notifier, validator: validate, logger: logger}
}

// Roster returns the active students and the ordered waitlist of a listing.
func (s *EnrollmentService) Roster(ctx context.Context, listingID string) (*models.Roster, error) {
	listing, err := s.loadGroupListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByListing(ctx, listingID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list enrollments")
	}
	roster := &models.Roster{ListingID: listingID, Capacity: listing.Capacity}
	for _, e := range enrollments {
		switch e.Status {
		case models.EnrollmentStatusActive:
			roster.Active = append(roster.Active, e)
		case models.EnrollmentStatusWaitlisted:
			roster.Waitlist = append(roster.Waitlist, e)
		}
	}
	return roster, nil
}

// Enroll places a student on the roster when capacity allows, otherwise at
// the tail of the waitlist.
func (s *EnrollmentService) Enroll(ctx context.Context, listingID string, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	listing, err := s.loadGroupListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindCurrent(ctx, listingID, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled or waitlisted")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to check enrollment")
	}

	activeCount, err := s.repo.CountByStatus(ctx, listingID, models.EnrollmentStatusActive)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to count roster")
	}

	enrollment := &models.Enrollment{
		ListingID:     listingID,
		StudentID:     req.StudentID,
		TotalSessions: listing.TotalSessions,
	}
	if activeCount < listing.Capacity {
		enrollment.Status = models.EnrollmentStatusActive
	} else {
		waitlisted, err := s.repo.CountByStatus(ctx, listingID, models.EnrollmentStatusWaitlisted)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to count waitlist")
		}
		position := waitlisted + 1
		enrollment.Status = models.EnrollmentStatusWaitlisted
		enrollment.Position = &position
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Persistence(err, "failed to save enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusActive {
		s.publishEnrollment(EventEnrollmentConfirmed, enrollment)
	}
	return enrollment, nil
}

// Withdraw removes a student from the roster or waitlist. When a roster spot
// frees and the waitlist is non-empty, its head is promoted and the remaining
// positions are renumbered, preserving FIFO fairness.
func (s *EnrollmentService) Withdraw(ctx context.Context, listingID, studentID string) (*models.Roster, error) {
	enrollment, err := s.repo.FindCurrent(ctx, listingID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Persistence(err, "failed to load enrollment")
	}

	if err := s.repo.MarkWithdrawn(ctx, enrollment.ID, time.Now().UTC()); err != nil {
		return nil, appErrors.Persistence(err, "failed to withdraw enrollment")
	}

	if enrollment.Status == models.EnrollmentStatusActive {
		head, err := s.repo.FirstWaitlisted(ctx, listingID)
		if err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Persistence(err, "failed to read waitlist")
		}
		if err == nil {
			if err := s.repo.Activate(ctx, head.ID); err != nil {
				return nil, appErrors.Persistence(err, "failed to promote waitlisted student")
			}
			s.publishEnrollment(EventWaitlistPromoted, head)
		}
	}
	if err := s.repo.RenumberWaitlist(ctx, listingID); err != nil {
		return nil, appErrors.Persistence(err, "failed to renumber waitlist")
	}

	return s.Roster(ctx, listingID)
}

// RecordAttendance increments the attended counter of a roster student.
// Attendance never exceeds the listing's session total.
func (s *EnrollmentService) RecordAttendance(ctx context.Context, listingID, studentID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindCurrent(ctx, listingID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Persistence(err, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is waitlisted, not on the roster")
	}
	if enrollment.TotalSessions > 0 && enrollment.Attended >= enrollment.TotalSessions {
		return nil, appErrors.Clone(appErrors.ErrValidation, "all sessions already attended")
	}

	enrollment.Attended++
	if err := s.repo.UpdateAttendance(ctx, enrollment.ID, enrollment.Attended); err != nil {
		enrollment.Attended--
		return nil, appErrors.Persistence(err, "failed to record attendance")
	}
	return enrollment, nil
}

func (s *EnrollmentService) loadGroupListing(ctx context.Context, listingID string) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return nil, appErrors.Persistence(err, "failed to load listing")
	}
	if listing.ClassKind != models.ClassKindGroup {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment is only tracked for group listings")
	}
	return listing, nil
}

func (s *EnrollmentService) publishEnrollment(eventType string, enrollment *models.Enrollment) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(Event{
		Type:      eventType,
		Recipient: enrollment.StudentID,
		Payload: map[string]interface{}{
			"listing_id": enrollment.ListingID,
			"student_id": enrollment.StudentID,
		},
	})
}
