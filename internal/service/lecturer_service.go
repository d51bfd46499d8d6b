package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type lecturerStore interface {
	List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error)
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
	FindByWallet(ctx context.Context, wallet string) (*models.Lecturer, error)
	ExistsByWallet(ctx context.Context, wallet, excludeID string) (bool, error)
	Create(ctx context.Context, lecturer *models.Lecturer) error
	Update(ctx context.Context, lecturer *models.Lecturer) error
}

// UpsertLecturerRequest carries lecturer create and update payloads.
type UpsertLecturerRequest struct {
	WalletAddress  string  `json:"wallet_address" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Department     string  `json:"department" validate:"required"`
	Specialization *string `json:"specialization,omitempty"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email"`
}

// LecturerService manages instructor records. A wallet address identifies
// at most one lecturer.
type LecturerService struct {
	repo      lecturerStore
	ledger    ledgerAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLecturerService instantiates LecturerService.
func NewLecturerService(repo lecturerStore, ledger ledgerAppender, validate *validator.Validate, logger *zap.Logger) *LecturerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LecturerService{repo: repo, ledger: ledger, validator: validate, logger: logger}
}

// List returns lecturers with pagination metadata.
func (s *LecturerService) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, *models.Pagination, error) {
	lecturers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return lecturers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a lecturer by id.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.Lecturer, error) {
	lecturer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// GetByWallet resolves the lecturer owning a wallet address.
func (s *LecturerService) GetByWallet(ctx context.Context, wallet string) (*models.Lecturer, error) {
	lecturer, err := s.repo.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Create registers a new lecturer after checking wallet uniqueness.
func (s *LecturerService) Create(ctx context.Context, req UpsertLecturerRequest, actorWallet string) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid lecturer payload")
	}
	taken, err := s.repo.ExistsByWallet(ctx, req.WalletAddress, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check wallet address")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "wallet address already registered")
	}
	lecturer := &models.Lecturer{
		WalletAddress:  req.WalletAddress,
		Name:           req.Name,
		Department:     req.Department,
		Specialization: req.Specialization,
		Email:          req.Email,
	}
	if err := s.repo.Create(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecturer")
	}
	s.recordUpsert(ctx, lecturer, actorWallet, "lecturer created")
	return lecturer, nil
}

// Update modifies an existing lecturer.
func (s *LecturerService) Update(ctx context.Context, id string, req UpsertLecturerRequest, actorWallet string) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid lecturer payload")
	}
	lecturer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.ExistsByWallet(ctx, req.WalletAddress, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check wallet address")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "wallet address already registered")
	}
	lecturer.WalletAddress = req.WalletAddress
	lecturer.Name = req.Name
	lecturer.Department = req.Department
	lecturer.Specialization = req.Specialization
	lecturer.Email = req.Email
	if err := s.repo.Update(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lecturer")
	}
	s.recordUpsert(ctx, lecturer, actorWallet, "lecturer updated")
	return lecturer, nil
}

func (s *LecturerService) recordUpsert(ctx context.Context, lecturer *models.Lecturer, actorWallet, detail string) {
	delta, _ := json.Marshal(lecturer)
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionEntityUpsert,
		ActorWallet: actorWallet,
		EntityType:  "lecturer",
		EntityID:    lecturer.ID,
		Detail:      detail,
		Delta:       delta,
	}); err != nil {
		s.logger.Warn("failed to record lecturer upsert", zap.Error(err))
	}
}
