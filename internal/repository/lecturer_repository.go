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

// LecturerRepository provides persistence for lecturers.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository creates a new lecturer repository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

// List returns lecturers with optional filtering and pagination.
func (r *LecturerRepository) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error) {
	base := "FROM lecturers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR department ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"department": true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT id, wallet_address, name, department, specialization, email, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var lecturers []models.Lecturer
	if err := r.db.SelectContext(ctx, &lecturers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lecturers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lecturers: %w", err)
	}

	return lecturers, total, nil
}

// FindByID loads a lecturer by id.
func (r *LecturerRepository) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	const query = `SELECT id, wallet_address, name, department, specialization, email, created_at, updated_at FROM lecturers WHERE id = $1`
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, id); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// FindByWallet loads a lecturer by wallet address.
func (r *LecturerRepository) FindByWallet(ctx context.Context, wallet string) (*models.Lecturer, error) {
	const query = `SELECT id, wallet_address, name, department, specialization, email, created_at, updated_at FROM lecturers WHERE wallet_address = $1`
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, wallet); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// ExistsByWallet reports whether a lecturer already uses the wallet,
// optionally ignoring one id during updates.
func (r *LecturerRepository) ExistsByWallet(ctx context.Context, wallet, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM lecturers WHERE wallet_address = $1 AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, wallet, excludeID); err != nil {
		return false, fmt.Errorf("check lecturer wallet: %w", err)
	}
	return exists, nil
}

// Create stores a new lecturer record.
func (r *LecturerRepository) Create(ctx context.Context, lecturer *models.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lecturer.CreatedAt.IsZero() {
		lecturer.CreatedAt = now
	}
	lecturer.UpdatedAt = now

	const query = `INSERT INTO lecturers (id, wallet_address, name, department, specialization, email, created_at, updated_at) VALUES (:id, :wallet_address, :name, :department, :specialization, :email, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("create lecturer: %w", err)
	}
	return nil
}

// Update modifies a lecturer record.
func (r *LecturerRepository) Update(ctx context.Context, lecturer *models.Lecturer) error {
	lecturer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lecturers SET wallet_address = :wallet_address, name = :name, department = :department, specialization = :specialization, email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("update lecturer: %w", err)
	}
	return nil
}
