package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/lock"
)

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, studentWallet, classID, semester string) (bool, error)
	CountActiveByClass(ctx context.Context, classID, semester string) (int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error
}

// EnrollRequest carries a new enrollment payload.
type EnrollRequest struct {
	StudentWallet string `json:"student_wallet"`
	ClassID       string `json:"class_id"`
	Semester      string `json:"semester"`
}

// EnrollmentService governs class membership. Capacity and uniqueness
// checks run under the class resource lock so two concurrent enrollments
// cannot both take the last seat.
type EnrollmentService struct {
	repo        enrollmentStore
	classes     classReader
	ledger      ledgerAppender
	coordinator *lock.KeyedMutex
	logger      *zap.Logger
}

// NewEnrollmentService instantiates EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, classes classReader, ledger ledgerAppender, coordinator *lock.KeyedMutex, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if coordinator == nil {
		coordinator = lock.New(0)
	}
	return &EnrollmentService{
		repo:        repo,
		classes:     classes,
		ledger:      ledger,
		coordinator: coordinator,
		logger:      logger,
	}
}

// List returns enrollments with pagination metadata. Students only see
// their own enrollments.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, actor *models.JWTClaims) ([]models.Enrollment, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		filter.StudentWallet = actor.WalletAddress
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Enroll admits a student into a class. The capacity count and duplicate
// check both run while holding the class lock for the semester.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest, actorWallet string) (*models.Enrollment, error) {
	if strings.TrimSpace(req.StudentWallet) == "" {
		req.StudentWallet = actorWallet
	}
	if req.StudentWallet == "" || strings.TrimSpace(req.ClassID) == "" || strings.TrimSpace(req.Semester) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingField, "student_wallet, class_id, and semester are required")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDanglingReference, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Semester != req.Semester {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class does not belong to the requested semester")
	}

	release, err := s.acquireClass(ctx, req.ClassID, req.Semester)
	if err != nil {
		return nil, err
	}
	defer release()

	already, err := s.repo.ExistsActive(ctx, req.StudentWallet, req.ClassID, req.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if already {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this class")
	}
	active, err := s.repo.CountActiveByClass(ctx, req.ClassID, req.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if class.MaxStudents > 0 && active >= class.MaxStudents {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class is at capacity")
	}

	enrollment := &models.Enrollment{
		ID:            uuid.NewString(),
		StudentWallet: req.StudentWallet,
		ClassID:       req.ClassID,
		Semester:      req.Semester,
		Status:        models.EnrollmentStatusActive,
	}
	entry, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionEnroll,
		ActorWallet: actorWallet,
		EntityType:  "enrollment",
		EntityID:    enrollment.ID,
		Detail:      fmt.Sprintf("student %s enrolled in class %s", req.StudentWallet, req.ClassID),
	})
	if err != nil {
		return nil, err
	}
	enrollment.TxHash = &entry.TxHash

	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// Withdraw closes an active enrollment. The record stays, flagged
// withdrawn with a timestamp. Students may only withdraw themselves.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string, actor *models.JWTClaims) (*models.Enrollment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if actor.Role == models.RoleStudent && enrollment.StudentWallet != actor.WalletAddress {
		return nil, appErrors.ErrForbidden
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return enrollment, nil
	}

	release, err := s.acquireClass(ctx, enrollment.ClassID, enrollment.Semester)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionWithdraw,
		ActorWallet: actor.WalletAddress,
		EntityType:  "enrollment",
		EntityID:    enrollment.ID,
		Detail:      fmt.Sprintf("student %s withdrew from class %s", enrollment.StudentWallet, enrollment.ClassID),
	}); err != nil {
		return nil, err
	}

	enrollment.Status = models.EnrollmentStatusWithdrawn
	enrollment.WithdrawnAt = &now
	return enrollment, nil
}

func (s *EnrollmentService) acquireClass(ctx context.Context, classID, semester string) (func(), error) {
	release, err := s.coordinator.Acquire(ctx, fmt.Sprintf("class:%s:%s", classID, semester))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, appErrors.Clone(appErrors.ErrResourceBusy, "class is busy, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrResourceBusy.Code, appErrors.ErrResourceBusy.Status, "lock acquisition cancelled")
	}
	return release, nil
}
