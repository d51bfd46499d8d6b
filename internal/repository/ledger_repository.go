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

// LedgerRepository persists the append-only ledger. Rows are inserted and
// settled (pending to confirmed or failed) exactly once; no statement in
// this repository deletes or rewrites settled data.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = "id, tx_hash, seq, action_type, actor_wallet, entity_type, entity_id, detail, delta, status, block_number, gas_used, created_at"

// Append inserts a new entry. The sequence number comes from the database
// sequence so it reflects global commit order across all resource keys.
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.LedgerStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ledger_entries
	(id, tx_hash, action_type, actor_wallet, entity_type, entity_id, detail, delta, status, block_number, gas_used, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING seq`
	if err := r.db.GetContext(ctx, &entry.Seq, query,
		entry.ID, entry.TxHash, entry.ActionType, entry.ActorWallet,
		entry.EntityType, entry.EntityID, entry.Detail, entry.Delta,
		entry.Status, entry.BlockNumber, entry.GasUsed, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches an entry by identifier.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE id = $1", ledgerColumns)
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Query returns entries matching the filter ordered by sequence number.
func (r *LedgerRepository) Query(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	base := "FROM ledger_entries WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ActorWallet != "" {
		conditions = append(conditions, fmt.Sprintf("actor_wallet = $%d", len(args)+1))
		args = append(args, filter.ActorWallet)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, filter.EntityID)
	}
	if filter.ActionType != "" {
		conditions = append(conditions, fmt.Sprintf("action_type = $%d", len(args)+1))
		args = append(args, filter.ActionType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := "ASC"
	if filter.Descending {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY seq %s LIMIT %d OFFSET %d", ledgerColumns, base, order, size, offset)
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("query ledger: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	return entries, total, nil
}

// Settle transitions a pending entry to confirmed or failed, assigning the
// block number and gas metric. The pending guard enforces exactly-once
// settlement: sql.ErrNoRows signals the entry was already settled, which
// callers must treat as a ledger integrity violation.
func (r *LedgerRepository) Settle(ctx context.Context, id string, status models.LedgerStatus, blockNumber, gasUsed int64) error {
	if status != models.LedgerStatusConfirmed && status != models.LedgerStatusFailed {
		return fmt.Errorf("invalid settlement status %q", status)
	}
	const query = `UPDATE ledger_entries SET status = $2, block_number = $3, gas_used = $4 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, status, blockNumber, gasUsed)
	if err != nil {
		return fmt.Errorf("settle ledger entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check ledger settle rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MaxBlockNumber returns the highest assigned block number, or zero when
// the ledger is empty.
func (r *LedgerRepository) MaxBlockNumber(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(block_number), 0) FROM ledger_entries`
	var max int64
	if err := r.db.GetContext(ctx, &max, query); err != nil {
		return 0, fmt.Errorf("max block number: %w", err)
	}
	return max, nil
}
