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

type classStore interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByCode(ctx context.Context, code, semester, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
}

// UpsertClassRequest carries class create and update payloads.
type UpsertClassRequest struct {
	Name        string  `json:"name" validate:"required"`
	Code        string  `json:"code" validate:"required"`
	Credits     int     `json:"credits" validate:"required,gt=0"`
	Semester    string  `json:"semester" validate:"required"`
	MaxStudents int     `json:"max_students" validate:"required,gt=0"`
	Description *string `json:"description,omitempty"`
}

// ClassService manages course offerings. The course code is unique per
// semester.
type ClassService struct {
	repo      classStore
	ledger    ledgerAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService instantiates ClassService.
func NewClassService(repo classStore, ledger ledgerAppender, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, ledger: ledger, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a class by id.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a new class after checking code uniqueness within the
// semester.
func (s *ClassService) Create(ctx context.Context, req UpsertClassRequest, actorWallet string) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid class payload")
	}
	taken, err := s.repo.ExistsByCode(ctx, req.Code, req.Semester, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class code already used this semester")
	}
	class := &models.Class{
		Name:        req.Name,
		Code:        req.Code,
		Credits:     req.Credits,
		Semester:    req.Semester,
		MaxStudents: req.MaxStudents,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.recordUpsert(ctx, class, actorWallet, "class created")
	return class, nil
}

// Update modifies an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req UpsertClassRequest, actorWallet string) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.ExistsByCode(ctx, req.Code, req.Semester, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class code already used this semester")
	}
	class.Name = req.Name
	class.Code = req.Code
	class.Credits = req.Credits
	class.Semester = req.Semester
	class.MaxStudents = req.MaxStudents
	class.Description = req.Description
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.recordUpsert(ctx, class, actorWallet, "class updated")
	return class, nil
}

func (s *ClassService) recordUpsert(ctx context.Context, class *models.Class, actorWallet, detail string) {
	delta, _ := json.Marshal(class)
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionEntityUpsert,
		ActorWallet: actorWallet,
		EntityType:  "class",
		EntityID:    class.ID,
		Detail:      detail,
		Delta:       delta,
	}); err != nil {
		s.logger.Warn("failed to record class upsert", zap.Error(err))
	}
}
