package models

import "time"

// AvailabilitySlot marks a calendar cell a teacher has opened for booking
// requests. A cell cannot be available and occupied by an active booking at
// the same time; occupying it removes the entry.
type AvailabilitySlot struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Slot      `json:"slot"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
