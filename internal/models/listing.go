package models

import "time"

// Listing is a teacher's published class offer. The hourly rate recorded here
// is the pricing input read at booking creation; the booking freezes it.
type Listing struct {
	ID            string    `db:"id" json:"id"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	Title         string    `db:"title" json:"title"`
	Subject       string    `db:"subject" json:"subject"`
	ClassKind     ClassKind `db:"class_kind" json:"class_kind"`
	Capacity      int       `db:"capacity" json:"capacity"`
	HourlyRate    float64   `db:"hourly_rate" json:"hourly_rate"`
	TotalSessions int       `db:"total_sessions" json:"total_sessions"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentStatus tracks where a student sits for a group listing.
type EnrollmentStatus string

const (
	EnrollmentStatusActive     EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
)

// Enrollment captures a student's place on a group listing's roster or
// waitlist. Position is set only while waitlisted; positions form a dense
// 1..N sequence. Attended never exceeds TotalSessions.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	ListingID     string           `db:"listing_id" json:"listing_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	Position      *int             `db:"position" json:"position,omitempty"`
	Attended      int              `db:"attended" json:"attended"`
	TotalSessions int              `db:"total_sessions" json:"total_sessions"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LeftAt        *time.Time       `db:"left_at" json:"left_at,omitempty"`
}

// Roster groups a listing's active students and its ordered waitlist.
type Roster struct {
	ListingID string       `json:"listing_id"`
	Capacity  int          `json:"capacity"`
	Active    []Enrollment `json:"active"`
	Waitlist  []Enrollment `json:"waitlist"`
}
