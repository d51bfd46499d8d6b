package models

import "time"

// ChangeRequestType enumerates supported schedule change categories.
type ChangeRequestType string

const (
	ChangeRequestTypeTime         ChangeRequestType = "TIME_CHANGE"
	ChangeRequestTypeRoom         ChangeRequestType = "ROOM_CHANGE"
	ChangeRequestTypeCancellation ChangeRequestType = "CANCELLATION"
)

// ChangeRequestStatus captures workflow states for change requests.
type ChangeRequestStatus string

const (
	ChangeRequestStatusPending  ChangeRequestStatus = "PENDING"
	ChangeRequestStatusApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestStatusRejected ChangeRequestStatus = "REJECTED"
)

// ChangeRequest stores a proposed schedule change awaiting review. The
// proposed data is kept as raw JSON; appliers interpret it per request type
// when the request is approved.
type ChangeRequest struct {
	ID           string              `db:"id" json:"id"`
	ScheduleID   string              `db:"schedule_id" json:"schedule_id"`
	RequestedBy  string              `db:"requested_by" json:"requested_by"`
	Type         ChangeRequestType   `db:"type" json:"type"`
	ProposedData []byte              `db:"proposed_data" json:"proposed_data,omitempty"`
	Reason       string              `db:"reason" json:"reason"`
	Status       ChangeRequestStatus `db:"status" json:"status"`
	ResolvedBy   *string             `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time          `db:"resolved_at" json:"resolved_at,omitempty"`
	Note         *string             `db:"note" json:"note,omitempty"`
	TxHash       *string             `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}

// ChangeRequestFilter constrains listing queries.
type ChangeRequestFilter struct {
	ScheduleID  string
	RequestedBy string
	Status      []ChangeRequestStatus
	Type        ChangeRequestType
	Limit       int
	Offset      int
}
