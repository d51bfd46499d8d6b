package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/educhain-labs/governance-api/internal/models"
)

// EnrollmentRepository provides persistence for enrollments. Withdrawal is
// a status write; rows are never deleted.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = "id, student_wallet, class_id, semester, status, tx_hash, enrolled_at, withdrawn_at"

// List returns enrollments with optional filtering and pagination.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentWallet != "" {
		conditions = append(conditions, fmt.Sprintf("student_wallet = $%d", len(args)+1))
		args = append(args, filter.StudentWallet)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"enrolled_at": true,
		"status":      true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentColumns, base, sortBy, order, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	return enrollments, total, nil
}

// FindByID loads an enrollment by id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive reports whether the student already holds an active
// enrollment in the class for the semester.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentWallet, classID, semester string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_wallet = $1 AND class_id = $2 AND semester = $3 AND status = 'ACTIVE')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentWallet, classID, semester); err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// CountActiveByClass returns the number of active enrollments for a class
// in a semester, used for capacity checks.
func (r *EnrollmentRepository) CountActiveByClass(ctx context.Context, classID, semester string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND semester = $2 AND status = 'ACTIVE'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, semester); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// Create stores a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}

	const query = `INSERT INTO enrollments (id, student_wallet, class_id, semester, status, tx_hash, enrolled_at, withdrawn_at) VALUES (:id, :student_wallet, :class_id, :semester, :status, :tx_hash, :enrolled_at, :withdrawn_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus closes or reopens an enrollment via status transition.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, withdrawn_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, withdrawnAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}
