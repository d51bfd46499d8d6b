package models

import "time"

// LedgerStatus tracks settlement of a ledger entry. A pending entry moves
// to confirmed or failed exactly once; confirmed entries are immutable.
type LedgerStatus string

const (
	LedgerStatusPending   LedgerStatus = "PENDING"
	LedgerStatusConfirmed LedgerStatus = "CONFIRMED"
	LedgerStatusFailed    LedgerStatus = "FAILED"
)

// Ledger action types recorded for governance operations.
const (
	LedgerActionSchedulePropose      = "SCHEDULE_PROPOSE"
	LedgerActionScheduleValidate     = "SCHEDULE_VALIDATE"
	LedgerActionScheduleArchive      = "SCHEDULE_ARCHIVE"
	LedgerActionScheduleReject       = "SCHEDULE_REJECT"
	LedgerActionChangeRequestSubmit  = "CHANGE_REQUEST_SUBMIT"
	LedgerActionChangeRequestResolve = "CHANGE_REQUEST_RESOLVE"
	LedgerActionEnroll               = "ENROLL"
	LedgerActionWithdraw             = "WITHDRAW"
	LedgerActionEntityUpsert         = "ENTITY_UPSERT"
)

// LedgerEntry is one immutable record in the append-only log. Entries are
// totally ordered by Seq across all resource keys; entity references are
// loose (type + id), with no foreign-key ownership.
type LedgerEntry struct {
	ID          string       `db:"id" json:"id"`
	TxHash      string       `db:"tx_hash" json:"tx_hash"`
	Seq         int64        `db:"seq" json:"seq"`
	ActionType  string       `db:"action_type" json:"action_type"`
	ActorWallet string       `db:"actor_wallet" json:"actor_wallet"`
	EntityType  string       `db:"entity_type" json:"entity_type"`
	EntityID    string       `db:"entity_id" json:"entity_id"`
	Detail      string       `db:"detail" json:"detail"`
	Delta       []byte       `db:"delta" json:"delta,omitempty"`
	Status      LedgerStatus `db:"status" json:"status"`
	BlockNumber *int64       `db:"block_number" json:"block_number,omitempty"`
	GasUsed     *int64       `db:"gas_used" json:"gas_used,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// LedgerFilter constrains ledger queries. Results are ordered by Seq
// ascending unless Descending is set for "most recent first" views.
type LedgerFilter struct {
	ActorWallet string
	EntityType  string
	EntityID    string
	ActionType  string
	Status      LedgerStatus
	From        *time.Time
	To          *time.Time
	Descending  bool
	Page        int
	PageSize    int
}
