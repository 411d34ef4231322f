package model

import "time"

// Action is the direction of an attendance log entry.
type Action string

const (
	ActionIn  Action = "in"
	ActionOut Action = "out"
)

// Valid reports whether a is "in" or "out".
func (a Action) Valid() bool {
	return a == ActionIn || a == ActionOut
}

// ActionFor returns the log action that records a change to checkedIn.
func ActionFor(checkedIn bool) Action {
	if checkedIn {
		return ActionIn
	}
	return ActionOut
}

// LogRecord is the normalized attendance log row. Timestamp keeps the raw
// instant string as stored; consumers parse it when they need an instant.
type LogRecord struct {
	ID                 string `json:"id"`
	StudentID          string `json:"student_id"`
	Action             Action `json:"action"`
	PerformedBy        string `json:"performed_by,omitempty"`
	Timestamp          string `json:"timestamp"`
	StudentFirstName   string `json:"student_first_name"`
	StudentLastName    string `json:"student_last_name"`
	PerformerFirstName string `json:"performer_first_name,omitempty"`
	PerformerLastName  string `json:"performer_last_name,omitempty"`
}

// StudentName is the display name of the logged student, or "Unknown".
func (r LogRecord) StudentName() string {
	if n := joinName(r.StudentFirstName, r.StudentLastName); n != "" {
		return n
	}
	return "Unknown"
}

// PerformerName is the display name of whoever made the change. Empty
// performers are system repairs.
func (r LogRecord) PerformerName() string {
	if n := joinName(r.PerformerFirstName, r.PerformerLastName); n != "" {
		return n
	}
	if r.PerformedBy == "" {
		return "System"
	}
	return "Unknown"
}

// LogEntry is a pending append. At is when the change happened; a zero
// At is stamped with the append time.
type LogEntry struct {
	StudentID   string    `json:"student_id"`
	Action      Action    `json:"action"`
	PerformedBy string    `json:"performed_by,omitempty"`
	At          time.Time `json:"at,omitzero"`
}

// CheckIORequest is the payload for check-in and check-out.
type CheckIORequest struct {
	StudentIDs []string `json:"student_ids" binding:"required,min=1,dive,required"`
}

// Board is the checked-in / checked-out partition shown to staff and
// parents. Generation increases with every published board.
type Board struct {
	CheckedIn  []Student `json:"checked_in"`
	CheckedOut []Student `json:"checked_out"`
	Generation uint64    `json:"generation"`
}

// LogListQuery is the engine query accepted by the log endpoints.
type LogListQuery struct {
	Search    string `form:"search" binding:"max=200"`
	StartDate string `form:"start"`
	EndDate   string `form:"end"`
	Action    string `form:"action" binding:"omitempty,logaction"`
	StudentID string `form:"student_id"`
	Sort      string `form:"sort"`
	Dir       string `form:"dir" binding:"omitempty,oneof=asc desc"`
	Grace     *int   `form:"grace" binding:"omitempty,min=0,max=120"`
}
