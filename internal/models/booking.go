package models

import "time"

// BookingStatus is the stored lifecycle state of a booking. UPCOMING and
// FINISHED are never stored; they are derived from the clock for approved
// records (see EffectiveStatus).
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "PENDING"
	BookingStatusApproved BookingStatus = "APPROVED"
	BookingStatusDeclined BookingStatus = "DECLINED"

	// Derived-only statuses.
	BookingStatusUpcoming BookingStatus = "UPCOMING"
	BookingStatusFinished BookingStatus = "FINISHED"
)

// ClassKind distinguishes one-on-one lessons from group classes.
type ClassKind string

const (
	ClassKindIndividual ClassKind = "INDIVIDUAL"
	ClassKindGroup      ClassKind = "GROUP"
)

// LessonFormat is the delivery format of a lesson.
type LessonFormat string

const (
	FormatOnline  LessonFormat = "ONLINE"
	FormatOffline LessonFormat = "OFFLINE"
)

// Booking represents a requested or confirmed lesson occupying a slot.
// StudentID is set for individual lessons; ListingID is set for group classes,
// whose participants are tracked by enrollments. Price is frozen at creation;
// later rate changes on the listing do not touch existing bookings.
type Booking struct {
	ID              string        `db:"id" json:"id"`
	TeacherID       string        `db:"teacher_id" json:"teacher_id"`
	StudentID       *string       `db:"student_id" json:"student_id,omitempty"`
	ListingID       *string       `db:"listing_id" json:"listing_id,omitempty"`
	Slot            `json:"slot"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	Subject         string        `db:"subject" json:"subject"`
	ClassKind       ClassKind     `db:"class_kind" json:"class_kind"`
	Format          LessonFormat  `db:"format" json:"format"`
	Location        *string       `db:"location" json:"location,omitempty"`
	MeetingLink     *string       `db:"meeting_link" json:"meeting_link,omitempty"`
	Notes           string        `db:"notes" json:"notes"`
	Price           float64       `db:"price" json:"price"`
	Status          BookingStatus `db:"status" json:"status"`
	DeclineReason   *string       `db:"decline_reason" json:"decline_reason,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the booking still occupies its slot.
func (b *Booking) Active() bool {
	return b.Status != BookingStatusDeclined
}

// EndAt returns the scheduled end of the lesson.
func (b *Booking) EndAt(loc *time.Location) (time.Time, error) {
	start, err := b.Slot.StartAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(b.DurationMinutes) * time.Minute), nil
}

// EffectiveStatus derives the rendered status from the stored one and the
// clock. A pending booking never derives to UPCOMING: an unapproved request
// must not look like a confirmed lesson.
func (b *Booking) EffectiveStatus(now time.Time, loc *time.Location) BookingStatus {
	if b.Status != BookingStatusApproved {
		return b.Status
	}
	end, err := b.EndAt(loc)
	if err != nil {
		return b.Status
	}
	if !now.Before(end) {
		return BookingStatusFinished
	}
	return BookingStatusUpcoming
}

// BookingView is a Booking enriched with its derived status.
type BookingView struct {
	Booking
	EffectiveStatus BookingStatus `json:"effective_status"`
}

// BookingFilter describes query params for listing bookings.
type BookingFilter struct {
	TeacherID string
	StudentID string
	ListingID string
	Status    BookingStatus
	FromDate  string
	ToDate    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
