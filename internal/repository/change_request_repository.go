package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/educhain-labs/governance-api/internal/models"
)

// ChangeRequestRepository persists the change request workflow.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

const changeRequestColumns = `id, schedule_id, requested_by, type, proposed_data, reason, status, resolved_by, resolved_at, note, tx_hash, created_at`

// Create inserts a new change request row.
func (r *ChangeRequestRepository) Create(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests
	(id, schedule_id, requested_by, type, proposed_data, reason, status, resolved_by, resolved_at, note, tx_hash, created_at)
	VALUES (:id, :schedule_id, :requested_by, :type, :proposed_data, :reason, :status, :resolved_by, :resolved_at, :note, :tx_hash, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request by identifier.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM change_requests WHERE id = $1", changeRequestColumns)
	var request models.ChangeRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns change requests matching the filter, latest first.
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM change_requests", changeRequestColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ScheduleID != "" {
		args = append(args, filter.ScheduleID)
		conditions = append(conditions, fmt.Sprintf("schedule_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// ResolveChangeRequestParams groups mutable columns for resolution.
type ResolveChangeRequestParams struct {
	ID         string
	Status     models.ChangeRequestStatus
	ResolvedBy string
	ResolvedAt time.Time
	Note       *string
	TxHash     *string
}

// Resolve persists the review outcome. The pending guard makes resolution
// exactly-once: a second resolve attempt reports sql.ErrNoRows.
func (r *ChangeRequestRepository) Resolve(ctx context.Context, params ResolveChangeRequestParams) error {
	setParts := []string{
		"status = :status",
		"resolved_by = :resolved_by",
		"resolved_at = :resolved_at",
	}
	if params.Note != nil {
		setParts = append(setParts, "note = :note")
	}
	if params.TxHash != nil {
		setParts = append(setParts, "tx_hash = :tx_hash")
	}
	query := fmt.Sprintf("UPDATE change_requests SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.ChangeRequestStatusPending,
	)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"resolved_by": params.ResolvedBy,
		"resolved_at": params.ResolvedAt,
		"note":        params.Note,
		"tx_hash":     params.TxHash,
	})
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
