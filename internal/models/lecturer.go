package models

import "time"

// Lecturer represents an instructor record keyed by a unique wallet
// address. One wallet maps to at most one lecturer.
type Lecturer struct {
	ID             string    `db:"id" json:"id"`
	WalletAddress  string    `db:"wallet_address" json:"wallet_address"`
	Name           string    `db:"name" json:"name"`
	Department     string    `db:"department" json:"department"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// LecturerFilter captures filtering options for listing lecturers.
type LecturerFilter struct {
	Department string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
