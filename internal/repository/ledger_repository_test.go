package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/educhain-labs/governance-api/internal/models"
)

func ledgerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tx_hash", "seq", "action_type", "actor_wallet", "entity_type", "entity_id",
		"detail", "delta", "status", "block_number", "gas_used", "created_at",
	})
}

func TestLedgerRepositoryAppendReturnsSequence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(41)))

	entry := &models.LedgerEntry{
		TxHash:      "0xhash",
		ActionType:  models.LedgerActionSchedulePropose,
		ActorWallet: "0xadmin",
		EntityType:  "schedule",
		EntityID:    "sch-1",
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	require.Equal(t, int64(41), entry.Seq)
	require.NotEmpty(t, entry.ID)
	require.Equal(t, models.LedgerStatusPending, entry.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositorySettle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(`UPDATE ledger_entries SET status = \$2, block_number = \$3, gas_used = \$4 WHERE id = \$1 AND status = 'PENDING'`).
		WithArgs("entry-1", models.LedgerStatusConfirmed, int64(42), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Settle(context.Background(), "entry-1", models.LedgerStatusConfirmed, 42, 21)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositorySettleAlreadySettled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(`UPDATE ledger_entries SET status = \$2`).
		WithArgs("entry-1", models.LedgerStatusConfirmed, int64(42), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Settle(context.Background(), "entry-1", models.LedgerStatusConfirmed, 42, 21)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositorySettleRejectsInvalidStatus(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	err := repo.Settle(context.Background(), "entry-1", models.LedgerStatusPending, 1, 0)
	require.Error(t, err)
}

func TestLedgerRepositoryQueryFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	rows := ledgerRows().
		AddRow("entry-1", "0xhash", int64(1), models.LedgerActionEnroll, "0xstudent", "enrollment",
			"enr-1", "enrolled", nil, models.LedgerStatusConfirmed, int64(1), int64(21), time.Now())
	mock.ExpectQuery(`SELECT .+ FROM ledger_entries WHERE 1=1 AND actor_wallet = \$1 AND action_type = \$2 ORDER BY seq ASC`).
		WithArgs("0xstudent", models.LedgerActionEnroll).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ledger_entries WHERE 1=1 AND actor_wallet = \$1 AND action_type = \$2`).
		WithArgs("0xstudent", models.LedgerActionEnroll).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.Query(context.Background(), models.LedgerFilter{
		ActorWallet: "0xstudent",
		ActionType:  models.LedgerActionEnroll,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryMaxBlockNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(block_number\), 0\) FROM ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(17)))

	max, err := repo.MaxBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(17), max)
	require.NoError(t, mock.ExpectationsWereMet())
}
