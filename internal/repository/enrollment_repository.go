package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorbase/schedule-api/internal/models"
)

const enrollmentColumns = `id, listing_id, student_id, status, position, attended, total_sessions, enrolled_at, left_at`

// EnrollmentRepository persists group-class rosters and waitlists.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindCurrent returns the student's non-withdrawn enrollment on a listing.
func (r *EnrollmentRepository) FindCurrent(ctx context.Context, listingID, studentID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments
        WHERE listing_id = $1 AND student_id = $2 AND status <> $3`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, listingID, studentID, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByListing returns all non-withdrawn enrollments, roster first, waitlist
// in position order.
func (r *EnrollmentRepository) ListByListing(ctx context.Context, listingID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments
        WHERE listing_id = $1 AND status <> $2
        ORDER BY status, position NULLS FIRST, enrolled_at`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, listingID, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// CountByStatus counts a listing's enrollments in the given status.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, listingID string, status models.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE listing_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, listingID, status); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, listing_id, student_id, status, position, attended, total_sessions, enrolled_at, left_at)
        VALUES (:id, :listing_id, :student_id, :status, :position, :attended, :total_sessions, :enrolled_at, :left_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// MarkWithdrawn removes an enrollment from roster or waitlist.
func (r *EnrollmentRepository) MarkWithdrawn(ctx context.Context, id string, leftAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, position = NULL, left_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, leftAt); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	return nil
}

// FirstWaitlisted returns the waitlist head (lowest position) for a listing.
func (r *EnrollmentRepository) FirstWaitlisted(ctx context.Context, listingID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments
        WHERE listing_id = $1 AND status = $2
        ORDER BY position LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, listingID, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Activate moves a waitlisted enrollment onto the roster.
func (r *EnrollmentRepository) Activate(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2, position = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("activate enrollment: %w", err)
	}
	return nil
}

// RenumberWaitlist compacts waitlist positions into a dense 1..N sequence
// preserving the current order.
func (r *EnrollmentRepository) RenumberWaitlist(ctx context.Context, listingID string) error {
	const query = `UPDATE enrollments e SET position = w.rn
        FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position) AS rn
              FROM enrollments WHERE listing_id = $1 AND status = $2) w
        WHERE e.id = w.id`
	if _, err := r.db.ExecContext(ctx, query, listingID, models.EnrollmentStatusWaitlisted); err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}
	return nil
}

// UpdateAttendance stores a new attended count for an enrollment.
func (r *EnrollmentRepository) UpdateAttendance(ctx context.Context, id string, attended int) error {
	const query = `UPDATE enrollments SET attended = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, attended); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}
