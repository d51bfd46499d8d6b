package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment. Withdrawal is
// a status transition, never a physical delete, so the audit trail stays
// complete.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment captures a student's registration to a class for a semester.
// The (student, class, semester) triple is unique while the enrollment is
// active.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentWallet string           `db:"student_wallet" json:"student_wallet"`
	ClassID       string           `db:"class_id" json:"class_id"`
	Semester      string           `db:"semester" json:"semester"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	TxHash        *string          `db:"tx_hash" json:"tx_hash,omitempty"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt   *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentWallet string
	ClassID       string
	Semester      string
	Status        EnrollmentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
