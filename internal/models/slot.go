package models

import (
	"fmt"
	"time"
)

// Layouts for the two halves of a slot identity.
const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// Slot identifies a single cell in a teacher's weekly calendar. Date plus time
// uniquely identify the cell; the struct is comparable and used as a map key
// when assembling the grid.
type Slot struct {
	Date string `db:"slot_date" json:"date" validate:"required"`
	Time string `db:"slot_time" json:"time" validate:"required"`
}

// Validate checks both halves parse with the canonical layouts.
func (s Slot) Validate() error {
	if _, err := time.Parse(SlotDateLayout, s.Date); err != nil {
		return fmt.Errorf("invalid slot date %q: %w", s.Date, err)
	}
	if _, err := time.Parse(SlotTimeLayout, s.Time); err != nil {
		return fmt.Errorf("invalid slot time %q: %w", s.Time, err)
	}
	return nil
}

// Key returns a stable string form, e.g. "2025-01-20T11:00".
func (s Slot) Key() string {
	return s.Date + "T" + s.Time
}

// StartAt resolves the slot to a wall-clock start time in the given location.
func (s Slot) StartAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(SlotDateLayout+"T"+SlotTimeLayout, s.Key(), loc)
}

// Weekday returns the day of week for grid placement.
func (s Slot) Weekday() (time.Weekday, error) {
	d, err := time.Parse(SlotDateLayout, s.Date)
	if err != nil {
		return 0, err
	}
	return d.Weekday(), nil
}

// WeekStart normalises a date to the Monday of its week.
func WeekStart(date time.Time) time.Time {
	offset := (int(date.Weekday()) + 6) % 7
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).AddDate(0, 0, -offset)
}
