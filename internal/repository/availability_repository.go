package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorbase/schedule-api/internal/models"
)

// AvailabilityRepository persists the set of slots a teacher has opened for
// booking requests.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Exists reports whether the slot is currently marked available.
func (r *AvailabilityRepository) Exists(ctx context.Context, teacherID string, slot models.Slot) (bool, error) {
	const query = `SELECT 1 FROM availability_slots WHERE teacher_id = $1 AND slot_date = $2 AND slot_time = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, teacherID, slot.Date, slot.Time); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check availability: %w", err)
	}
	return true, nil
}

// Insert marks a slot available.
func (r *AvailabilityRepository) Insert(ctx context.Context, entry *models.AvailabilitySlot) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO availability_slots (id, teacher_id, slot_date, slot_time, created_at)
        VALUES (:id, :teacher_id, :slot_date, :slot_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

// Delete removes a slot from the available set. Removing an absent slot is a
// no-op.
func (r *AvailabilityRepository) Delete(ctx context.Context, teacherID string, slot models.Slot) error {
	const query = `DELETE FROM availability_slots WHERE teacher_id = $1 AND slot_date = $2 AND slot_time = $3`
	if _, err := r.db.ExecContext(ctx, query, teacherID, slot.Date, slot.Time); err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	return nil
}

// ListRange returns availability entries within the inclusive date range.
func (r *AvailabilityRepository) ListRange(ctx context.Context, teacherID, fromDate, toDate string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, slot_date, slot_time, created_at FROM availability_slots
        WHERE teacher_id = $1 AND slot_date >= $2 AND slot_date <= $3
        ORDER BY slot_date, slot_time`
	var entries []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &entries, query, teacherID, fromDate, toDate); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return entries, nil
}
