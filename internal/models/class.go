package models

import "time"

// Class represents a course offering. The course code is unique within a
// semester for the lifetime of that semester tag.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Credits     int       `db:"credits" json:"credits"`
	Semester    string    `db:"semester" json:"semester"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Semester  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
