package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tutorbase/schedule-api/internal/models"
)

const bookingColumns = `id, teacher_id, student_id, listing_id, slot_date, slot_time, duration_minutes,
        subject, class_kind, format, location, meeting_link, notes, price, status, decline_reason,
        created_at, updated_at`

// BookingRepository handles persistence of booking records.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// IsUniqueViolation reports whether the error came from the partial unique
// index guarding one active booking per slot.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// FindByID returns a booking by its identifier.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindActiveBySlot returns the non-declined booking occupying a slot, if any.
func (r *BookingRepository) FindActiveBySlot(ctx context.Context, teacherID string, slot models.Slot) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings
        WHERE teacher_id = $1 AND slot_date = $2 AND slot_time = $3 AND status <> $4`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, teacherID, slot.Date, slot.Time, models.BookingStatusDeclined); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListActiveRange returns non-declined bookings within the inclusive date range.
func (r *BookingRepository) ListActiveRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings
        WHERE teacher_id = $1 AND slot_date >= $2 AND slot_date <= $3 AND status <> $4
        ORDER BY slot_date, slot_time`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, fromDate, toDate, models.BookingStatusDeclined); err != nil {
		return nil, fmt.Errorf("list bookings in range: %w", err)
	}
	return bookings, nil
}

// List returns bookings filtered by the provided criteria.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ListingID != "" {
		conditions = append(conditions, fmt.Sprintf("listing_id = $%d", len(args)+1))
		args = append(args, filter.ListingID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.FromDate != "" {
		conditions = append(conditions, fmt.Sprintf("slot_date >= $%d", len(args)+1))
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		conditions = append(conditions, fmt.Sprintf("slot_date <= $%d", len(args)+1))
		args = append(args, filter.ToDate)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"slot":       "slot_date, slot_time",
		"created_at": "created_at",
		"status":     "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "slot_date, slot_time"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		bookingColumns, clause, orderBy, order, size, offset)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM bookings" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}

// Create persists a new booking and, in the same transaction, removes the
// occupied slot from the teacher's availability set.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create booking: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO bookings (id, teacher_id, student_id, listing_id, slot_date, slot_time,
        duration_minutes, subject, class_kind, format, location, meeting_link, notes, price, status,
        decline_reason, created_at, updated_at)
        VALUES (:id, :teacher_id, :student_id, :listing_id, :slot_date, :slot_time, :duration_minutes,
        :subject, :class_kind, :format, :location, :meeting_link, :notes, :price, :status,
        :decline_reason, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	const freeSlot = `DELETE FROM availability_slots WHERE teacher_id = $1 AND slot_date = $2 AND slot_time = $3`
	if _, err := tx.ExecContext(ctx, freeSlot, booking.TeacherID, booking.Slot.Date, booking.Slot.Time); err != nil {
		return fmt.Errorf("clear availability for booked slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create booking: %w", err)
	}
	return nil
}

// UpdateDetails persists the editable fields of a booking. Status is not
// touched here.
func (r *BookingRepository) UpdateDetails(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bookings SET duration_minutes = :duration_minutes, subject = :subject,
        format = :format, location = :location, meeting_link = :meeting_link, notes = :notes,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("update booking details: %w", err)
	}
	return nil
}

// UpdateStatus transitions a booking's stored status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, declineReason *string) error {
	const query = `UPDATE bookings SET status = $2, decline_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, declineReason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// UpdateSlot moves a booking to a new slot and clears availability at the
// target, atomically. The partial unique index rejects a move onto a slot
// that already has an active booking.
func (r *BookingRepository) UpdateSlot(ctx context.Context, id string, slot models.Slot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reschedule: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const move = `UPDATE bookings SET slot_date = $2, slot_time = $3, updated_at = $4 WHERE id = $1 RETURNING teacher_id`
	var teacherID string
	if err := tx.GetContext(ctx, &teacherID, move, id, slot.Date, slot.Time, time.Now().UTC()); err != nil {
		return fmt.Errorf("move booking slot: %w", err)
	}

	const freeSlot = `DELETE FROM availability_slots WHERE teacher_id = $1 AND slot_date = $2 AND slot_time = $3`
	if _, err := tx.ExecContext(ctx, freeSlot, teacherID, slot.Date, slot.Time); err != nil {
		return fmt.Errorf("clear availability for rescheduled slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule: %w", err)
	}
	return nil
}
