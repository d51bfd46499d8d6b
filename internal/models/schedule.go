package models

import (
	"fmt"
	"time"
)

// ScheduleStatus tracks the governance lifecycle of a schedule.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "PENDING"
	ScheduleStatusValidated ScheduleStatus = "VALIDATED"
	ScheduleStatusConflict  ScheduleStatus = "CONFLICT"
	ScheduleStatusArchived  ScheduleStatus = "ARCHIVED"
)

// Schedule represents a class meeting in a room with a lecturer. Times are
// wall-clock "HH:MM" strings forming a half-open interval [start, end).
// Archived is terminal and replaces deletion.
type Schedule struct {
	ID          string         `db:"id" json:"id"`
	ClassID     string         `db:"class_id" json:"class_id"`
	RoomID      string         `db:"room_id" json:"room_id"`
	LecturerID  string         `db:"lecturer_id" json:"lecturer_id"`
	DayOfWeek   int            `db:"day_of_week" json:"day_of_week"`
	StartTime   string         `db:"start_time" json:"start_time"`
	EndTime     string         `db:"end_time" json:"end_time"`
	Status      ScheduleStatus `db:"status" json:"status"`
	Semester    string         `db:"semester" json:"semester"`
	TxHash      *string        `db:"tx_hash" json:"tx_hash,omitempty"`
	ValidatedBy *string        `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt *time.Time     `db:"validated_at" json:"validated_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	Semester   string
	ClassID    string
	RoomID     string
	LecturerID string
	DayOfWeek  *int
	Status     ScheduleStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// ConflictType identifies the contended axis of a schedule conflict.
type ConflictType string

const (
	ConflictTypeRoom     ConflictType = "ROOM"
	ConflictTypeLecturer ConflictType = "LECTURER"
)

// Conflict describes a collision with an existing schedule, with enough
// structure for the UI to render an actionable alert.
type Conflict struct {
	Type       ConflictType `json:"type"`
	ScheduleID string       `json:"schedule_id"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// ScheduleConflictError is returned when a proposed schedule collides with
// one or more existing schedules. Room conflicts are listed before lecturer
// conflicts.
type ScheduleConflictError struct {
	Message   string     `json:"message"`
	Conflicts []Conflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// ParseClockTime converts an "HH:MM" wall-clock string into minutes since
// midnight.
func ParseClockTime(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", value)
	}
	return h*60 + m, nil
}

// FormatClockTime renders minutes since midnight back to "HH:MM".
func FormatClockTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
