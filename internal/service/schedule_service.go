package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/lock"
)

type scheduleStore interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	FindActiveByRoom(ctx context.Context, roomID string, dayOfWeek int, semester string) ([]models.Schedule, error)
	FindActiveByLecturer(ctx context.Context, lecturerID string, dayOfWeek int, semester string) ([]models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
	UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus, validatedBy *string, validatedAt *time.Time) error
}

type roomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type lecturerReader interface {
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
}

type ledgerAppender interface {
	Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	AppendFailed(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
}

// ProposeScheduleRequest describes a proposed schedule mutation.
type ProposeScheduleRequest struct {
	ClassID    string `json:"class_id" validate:"required"`
	RoomID     string `json:"room_id" validate:"required"`
	LecturerID string `json:"lecturer_id" validate:"required"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
	Semester   string `json:"semester" validate:"required"`
}

// RescheduleRequest carries an approved change to an existing schedule.
// Zero values leave the corresponding field untouched.
type RescheduleRequest struct {
	RoomID    string `json:"room_id,omitempty"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// ScheduleService runs the governance pipeline for schedules: structural
// validation, conflict detection against current state, serialized commit
// under resource locks, and ledger append.
type ScheduleService struct {
	repo        scheduleStore
	rooms       roomReader
	classes     classReader
	lecturers   lecturerReader
	ledger      ledgerAppender
	coordinator *lock.KeyedMutex
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(repo scheduleStore, rooms roomReader, classes classReader, lecturers lecturerReader, ledger ledgerAppender, coordinator *lock.KeyedMutex, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if coordinator == nil {
		coordinator = lock.New(0)
	}
	return &ScheduleService{
		repo:        repo,
		rooms:       rooms,
		classes:     classes,
		lecturers:   lecturers,
		ledger:      ledger,
		coordinator: coordinator,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
	}
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return schedules, pagination, nil
}

// Get loads a single schedule.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// Propose admits a proposed schedule into pending state after structural
// and conflict validation, or rejects it. The entire validation and commit
// runs while holding the room and lecturer resource locks, so exactly one
// of two concurrent conflicting proposals can be admitted.
func (s *ScheduleService) Propose(ctx context.Context, req ProposeScheduleRequest, actorWallet string) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid schedule payload")
	}
	interval, err := s.checkStructure(ctx, req)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, resourceKeys(req.RoomID, req.LecturerID, req.DayOfWeek, req.Semester))
	if err != nil {
		return nil, err
	}
	defer release()

	conflicts, err := s.detect(ctx, *interval, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.observeProposal("rejected", conflicts)
		if _, lerr := s.ledger.AppendFailed(ctx, &models.LedgerEntry{
			ActionType:  models.LedgerActionSchedulePropose,
			ActorWallet: actorWallet,
			EntityType:  "schedule",
			EntityID:    "",
			Detail:      fmt.Sprintf("proposal rejected: %d conflict(s)", len(conflicts)),
		}); lerr != nil {
			s.logger.Warn("failed to record rejected proposal", zap.Error(lerr))
		}
		return nil, conflictError(conflicts)
	}

	schedule := &models.Schedule{
		ID:         uuid.NewString(),
		ClassID:    req.ClassID,
		RoomID:     req.RoomID,
		LecturerID: req.LecturerID,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     models.ScheduleStatusPending,
		Semester:   req.Semester,
	}
	delta, _ := json.Marshal(schedule)
	entry, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionSchedulePropose,
		ActorWallet: actorWallet,
		EntityType:  "schedule",
		EntityID:    schedule.ID,
		Detail:      fmt.Sprintf("schedule proposed for class %s", req.ClassID),
		Delta:       delta,
	})
	if err != nil {
		return nil, err
	}
	schedule.TxHash = &entry.TxHash

	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.observeProposal("admitted", nil)
	return schedule, nil
}

// Validate transitions a pending (or conflict-flagged) schedule to
// validated. Conflict detection runs again against current state; state
// may have drifted since the proposal was admitted, so a schedule that was
// clean at proposal time can still be rejected here.
func (s *ScheduleService) Validate(ctx context.Context, id, actorWallet string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch schedule.Status {
	case models.ScheduleStatusPending, models.ScheduleStatusConflict:
	case models.ScheduleStatusValidated:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "schedule already validated")
	default:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "archived schedule cannot be validated")
	}

	interval, err := intervalOf(schedule)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, resourceKeys(schedule.RoomID, schedule.LecturerID, schedule.DayOfWeek, schedule.Semester))
	if err != nil {
		return nil, err
	}
	defer release()

	conflicts, err := s.detect(ctx, *interval, schedule.ID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if err := s.repo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusConflict, nil, nil); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag schedule conflict")
		}
		if _, lerr := s.ledger.AppendFailed(ctx, &models.LedgerEntry{
			ActionType:  models.LedgerActionScheduleReject,
			ActorWallet: actorWallet,
			EntityType:  "schedule",
			EntityID:    schedule.ID,
			Detail:      fmt.Sprintf("validation rejected: %d conflict(s)", len(conflicts)),
		}); lerr != nil {
			s.logger.Warn("failed to record validation rejection", zap.Error(lerr))
		}
		s.observeProposal("rejected_at_validation", conflicts)
		return nil, conflictError(conflicts)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusValidated, &actorWallet, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate schedule")
	}
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionScheduleValidate,
		ActorWallet: actorWallet,
		EntityType:  "schedule",
		EntityID:    schedule.ID,
		Detail:      "schedule validated",
	}); err != nil {
		return nil, err
	}

	schedule.Status = models.ScheduleStatusValidated
	schedule.ValidatedBy = &actorWallet
	schedule.ValidatedAt = &now
	return schedule, nil
}

// Archive marks a schedule archived. Archival replaces deletion: the
// record stays retrievable forever. Calling Archive on an archived
// schedule is a no-op returning the current state.
func (s *ScheduleService) Archive(ctx context.Context, id, actorWallet string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status == models.ScheduleStatusArchived {
		return schedule, nil
	}

	release, err := s.acquire(ctx, resourceKeys(schedule.RoomID, schedule.LecturerID, schedule.DayOfWeek, schedule.Semester))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.repo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusArchived, nil, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive schedule")
	}
	entry, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionScheduleArchive,
		ActorWallet: actorWallet,
		EntityType:  "schedule",
		EntityID:    schedule.ID,
		Detail:      "schedule archived",
	})
	if err != nil {
		return nil, err
	}
	schedule.Status = models.ScheduleStatusArchived
	schedule.TxHash = &entry.TxHash
	return schedule, nil
}

// Reschedule applies an approved room or time change to a schedule. It
// re-runs conflict detection against current state under the locks of both
// the old and the new resource keys, so an approval that has gone stale is
// rejected rather than committed.
func (s *ScheduleService) Reschedule(ctx context.Context, id string, change RescheduleRequest, actorWallet string) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status == models.ScheduleStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "archived schedule cannot be changed")
	}

	updated := *schedule
	if change.RoomID != "" {
		if _, err := s.rooms.FindByID(ctx, change.RoomID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrDanglingReference, "room not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
		}
		updated.RoomID = change.RoomID
	}
	if change.DayOfWeek != nil {
		if *change.DayOfWeek < 0 || *change.DayOfWeek > 6 {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "day of week must be between 0 and 6")
		}
		updated.DayOfWeek = *change.DayOfWeek
	}
	if change.StartTime != "" {
		updated.StartTime = change.StartTime
	}
	if change.EndTime != "" {
		updated.EndTime = change.EndTime
	}

	interval, err := intervalOf(&updated)
	if err != nil {
		return nil, err
	}

	keys := resourceKeys(schedule.RoomID, schedule.LecturerID, schedule.DayOfWeek, schedule.Semester)
	keys = append(keys, resourceKeys(updated.RoomID, updated.LecturerID, updated.DayOfWeek, updated.Semester)...)
	release, err := s.acquire(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer release()

	conflicts, err := s.detect(ctx, *interval, schedule.ID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.observeProposal("rejected_on_change", conflicts)
		return nil, conflictError(conflicts)
	}

	delta, _ := json.Marshal(change)
	entry, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionChangeRequestResolve,
		ActorWallet: actorWallet,
		EntityType:  "schedule",
		EntityID:    schedule.ID,
		Detail:      "schedule change applied",
		Delta:       delta,
	})
	if err != nil {
		return nil, err
	}
	updated.TxHash = &entry.TxHash

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return &updated, nil
}

// checkStructure runs the fail-fast structural half of the validation
// pipeline and returns the parsed interval on success.
func (s *ScheduleService) checkStructure(ctx context.Context, req ProposeScheduleRequest) (*ScheduleInterval, error) {
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "day of week must be between 0 and 6")
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "invalid start time")
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "invalid end time")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "end time must be after start time")
	}

	room, err := s.rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDanglingReference, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if !room.Available {
		return nil, appErrors.Clone(appErrors.ErrDanglingReference, "room is unavailable")
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
	if _, err := s.lecturers.FindByID(ctx, req.LecturerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDanglingReference, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	return &ScheduleInterval{
		RoomID:     req.RoomID,
		LecturerID: req.LecturerID,
		DayOfWeek:  req.DayOfWeek,
		Start:      start,
		End:        end,
		Semester:   req.Semester,
	}, nil
}

func (s *ScheduleService) detect(ctx context.Context, interval ScheduleInterval, ignoreID string) ([]models.Conflict, error) {
	roomPeers, err := s.repo.FindActiveByRoom(ctx, interval.RoomID, interval.DayOfWeek, interval.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedules")
	}
	lecturerPeers, err := s.repo.FindActiveByLecturer(ctx, interval.LecturerID, interval.DayOfWeek, interval.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer schedules")
	}
	return DetectConflicts(interval, roomPeers, lecturerPeers, ignoreID), nil
}

func (s *ScheduleService) acquire(ctx context.Context, keys []string) (func(), error) {
	started := time.Now()
	release, err := s.coordinator.Acquire(ctx, keys...)
	if s.metrics != nil {
		s.metrics.ObserveLockWait(time.Since(started))
	}
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, appErrors.Clone(appErrors.ErrResourceBusy, "scheduling resource is busy, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrResourceBusy.Code, appErrors.ErrResourceBusy.Status, "lock acquisition cancelled")
	}
	return release, nil
}

func (s *ScheduleService) observeProposal(result string, conflicts []models.Conflict) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveProposal(result)
	for _, c := range conflicts {
		s.metrics.ObserveConflict(string(c.Type))
	}
}

func intervalOf(schedule *models.Schedule) (*ScheduleInterval, error) {
	start, err := models.ParseClockTime(schedule.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "invalid start time")
	}
	end, err := models.ParseClockTime(schedule.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "invalid end time")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "end time must be after start time")
	}
	return &ScheduleInterval{
		RoomID:     schedule.RoomID,
		LecturerID: schedule.LecturerID,
		DayOfWeek:  schedule.DayOfWeek,
		Start:      start,
		End:        end,
		Semester:   schedule.Semester,
	}, nil
}

func resourceKeys(roomID, lecturerID string, dayOfWeek int, semester string) []string {
	return []string{
		fmt.Sprintf("room:%s:%d:%s", roomID, dayOfWeek, semester),
		fmt.Sprintf("lecturer:%s:%d:%s", lecturerID, dayOfWeek, semester),
	}
}

func conflictError(conflicts []models.Conflict) error {
	domainErr := &models.ScheduleConflictError{
		Message:   fmt.Sprintf("schedule conflicts with %d existing schedule(s)", len(conflicts)),
		Conflicts: conflicts,
	}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, domainErr.Message)
}
