package models

// CellState classifies a cell of the weekly grid.
type CellState string

const (
	CellEmpty     CellState = "EMPTY"
	CellAvailable CellState = "AVAILABLE"
	CellOccupied  CellState = "OCCUPIED"
)

// Cell is one renderable entry of the week matrix. Booking is set only for
// occupied cells.
type Cell struct {
	Slot    Slot         `json:"slot"`
	State   CellState    `json:"state"`
	Booking *BookingView `json:"booking,omitempty"`
}

// Day is a single column of the grid.
type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Cells   []Cell `json:"cells"`
}

// Week is the 7-day by N-time-row matrix a teacher's calendar renders from.
type Week struct {
	TeacherID string   `json:"teacher_id"`
	WeekStart string   `json:"week_start"`
	TimeRows  []string `json:"time_rows"`
	Days      []Day    `json:"days"`
}

// Gesture is a low-level UI interaction on a grid cell.
type Gesture string

const (
	GestureClick       Gesture = "CLICK"
	GestureDoubleClick Gesture = "DOUBLE_CLICK"
)

// GestureAction is the domain intent a gesture resolves to.
type GestureAction string

const (
	// ActionToggledAvailability means the toggle was applied inline.
	ActionToggledAvailability GestureAction = "TOGGLED_AVAILABILITY"
	// ActionViewBooking opens a read-only detail view.
	ActionViewBooking GestureAction = "VIEW_BOOKING"
	// ActionEditBooking opens the record for editing.
	ActionEditBooking GestureAction = "EDIT_BOOKING"
	// ActionCreateBooking opens the "schedule new lesson" form.
	ActionCreateBooking GestureAction = "CREATE_BOOKING"
)

// GestureResolution tells the client what the gesture meant and carries the
// data the resulting view needs.
type GestureResolution struct {
	Action    GestureAction `json:"action"`
	Slot      Slot          `json:"slot"`
	Available bool          `json:"available"`
	Booking   *BookingView  `json:"booking,omitempty"`
}
