package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/internal/repository"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type changeRequestStore interface {
	Create(ctx context.Context, request *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	Resolve(ctx context.Context, params repository.ResolveChangeRequestParams) error
}

type scheduleReader interface {
	Get(ctx context.Context, id string) (*models.Schedule, error)
}

// ChangeApplier applies an approved change request of a particular type.
// It returns the ledger transaction hash produced by the applied change.
type ChangeApplier interface {
	Apply(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error)
}

// ChangeApplierFunc allows using plain functions as appliers.
type ChangeApplierFunc func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error)

// Apply implements ChangeApplier.
func (f ChangeApplierFunc) Apply(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
	return f(ctx, request, actorWallet)
}

// SubmitChangeRequest carries a new change request payload.
type SubmitChangeRequest struct {
	ScheduleID   string                   `json:"schedule_id"`
	Type         models.ChangeRequestType `json:"type"`
	ProposedData json.RawMessage          `json:"proposed_data"`
	Reason       string                   `json:"reason"`
}

// ResolveChangeRequestInput carries the reviewer decision.
type ResolveChangeRequestInput struct {
	Status models.ChangeRequestStatus `json:"status"`
	Note   string                     `json:"note,omitempty"`
}

// ChangeRequestService orchestrates the schedule change workflow. Approval
// delegates to the applier registered for the request type, so conflict
// detection and locking run inside the schedule pipeline rather than here.
type ChangeRequestService struct {
	repo      changeRequestStore
	schedules scheduleReader
	ledger    ledgerAppender
	appliers  map[models.ChangeRequestType]ChangeApplier
	logger    *zap.Logger
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithChangeAppliers sets the applier map keyed by request type.
func WithChangeAppliers(appliers map[models.ChangeRequestType]ChangeApplier) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if s.appliers == nil {
			s.appliers = make(map[models.ChangeRequestType]ChangeApplier)
		}
		for k, v := range appliers {
			s.appliers[k] = v
		}
	}
}

// NewChangeRequestService constructs the service with defaults.
func NewChangeRequestService(repo changeRequestStore, schedules scheduleReader, ledger ledgerAppender, logger *zap.Logger, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChangeRequestService{
		repo:      repo,
		schedules: schedules,
		ledger:    ledger,
		appliers:  make(map[models.ChangeRequestType]ChangeApplier),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit stores a new change request after validating its payload against
// the target schedule.
func (s *ChangeRequestService) Submit(ctx context.Context, req SubmitChangeRequest, actorWallet string) (*models.ChangeRequest, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}
	schedule, err := s.schedules.Get(ctx, req.ScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status == models.ScheduleStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "archived schedule cannot be changed")
	}

	request := &models.ChangeRequest{
		ScheduleID:   req.ScheduleID,
		RequestedBy:  actorWallet,
		Type:         req.Type,
		ProposedData: append([]byte(nil), req.ProposedData...),
		Reason:       strings.TrimSpace(req.Reason),
		Status:       models.ChangeRequestStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionChangeRequestSubmit,
		ActorWallet: actorWallet,
		EntityType:  "change_request",
		EntityID:    request.ID,
		Detail:      fmt.Sprintf("%s requested for schedule %s", request.Type, request.ScheduleID),
		Delta:       request.ProposedData,
	}); err != nil {
		s.logger.Warn("failed to record change request submission", zap.Error(err))
	}
	return request, nil
}

// List returns change requests visible to the actor. Admins see all,
// lecturers only their own submissions.
func (s *ChangeRequestService) List(ctx context.Context, filter models.ChangeRequestFilter, actor *models.JWTClaims) ([]models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleLecturer:
		filter.RequestedBy = actor.WalletAddress
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return requests, nil
}

// Get returns a change request enforcing scope constraints.
func (s *ChangeRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if actor.Role == models.RoleLecturer && request.RequestedBy != actor.WalletAddress {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// Resolve applies the reviewer decision. An approval runs the registered
// applier first; if the change no longer passes validation the request
// stays pending and the caller sees the conflict. Resolution of a request
// that is already resolved reports a conflict.
func (s *ChangeRequestService) Resolve(ctx context.Context, id string, input ResolveChangeRequestInput, reviewerWallet string) (*models.ChangeRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if request.Status != models.ChangeRequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request already resolved")
	}
	if input.Status != models.ChangeRequestStatusApproved && input.Status != models.ChangeRequestStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	var txHash *string
	if input.Status == models.ChangeRequestStatusApproved {
		applier := s.appliers[request.Type]
		if applier == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("unsupported change request type: %s", request.Type))
		}
		txHash, err = applier.Apply(ctx, request, reviewerWallet)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	params := repository.ResolveChangeRequestParams{
		ID:         request.ID,
		Status:     input.Status,
		ResolvedBy: reviewerWallet,
		ResolvedAt: now,
		Note:       optionalString(input.Note),
		TxHash:     txHash,
	}
	if err := s.repo.Resolve(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve change request")
	}

	if input.Status == models.ChangeRequestStatusRejected {
		if _, lerr := s.ledger.AppendFailed(ctx, &models.LedgerEntry{
			ActionType:  models.LedgerActionChangeRequestResolve,
			ActorWallet: reviewerWallet,
			EntityType:  "change_request",
			EntityID:    request.ID,
			Detail:      "change request rejected",
		}); lerr != nil {
			s.logger.Warn("failed to record change request rejection", zap.Error(lerr))
		}
	}

	request.Status = input.Status
	request.ResolvedBy = &reviewerWallet
	request.ResolvedAt = &now
	request.Note = params.Note
	request.TxHash = txHash
	return request, nil
}

func validateSubmit(req SubmitChangeRequest) error {
	if strings.TrimSpace(req.ScheduleID) == "" {
		return appErrors.Clone(appErrors.ErrMissingField, "schedule_id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return appErrors.Clone(appErrors.ErrMissingField, "reason is required")
	}
	switch req.Type {
	case models.ChangeRequestTypeTime, models.ChangeRequestTypeRoom:
		if len(req.ProposedData) == 0 || !json.Valid(req.ProposedData) {
			return appErrors.Clone(appErrors.ErrValidation, "proposed_data must be valid JSON")
		}
	case models.ChangeRequestTypeCancellation:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported change request type")
	}
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
