package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/lock"
)

type scheduleRepoStub struct {
	mu        sync.Mutex
	schedules map[string]*models.Schedule
}

func newScheduleRepoStub(seed ...*models.Schedule) *scheduleRepoStub {
	stub := &scheduleRepoStub{schedules: make(map[string]*models.Schedule)}
	for _, s := range seed {
		stub.schedules[s.ID] = s
	}
	return stub
}

func (r *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedules[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *scheduleRepoStub) FindActiveByRoom(ctx context.Context, roomID string, dayOfWeek int, semester string) ([]models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Schedule
	for _, s := range r.schedules {
		if s.RoomID == roomID && s.DayOfWeek == dayOfWeek && s.Semester == semester && activeStatus(s.Status) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *scheduleRepoStub) FindActiveByLecturer(ctx context.Context, lecturerID string, dayOfWeek int, semester string) ([]models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Schedule
	for _, s := range r.schedules {
		if s.LecturerID == lecturerID && s.DayOfWeek == dayOfWeek && s.Semester == semester && activeStatus(s.Status) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *scheduleRepoStub) Create(ctx context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *schedule
	r.schedules[schedule.ID] = &copied
	return nil
}

func (r *scheduleRepoStub) Update(ctx context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *schedule
	r.schedules[schedule.ID] = &copied
	return nil
}

func (r *scheduleRepoStub) UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus, validatedBy *string, validatedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	if validatedBy != nil {
		s.ValidatedBy = validatedBy
	}
	if validatedAt != nil {
		s.ValidatedAt = validatedAt
	}
	return nil
}

func activeStatus(status models.ScheduleStatus) bool {
	return status == models.ScheduleStatusPending || status == models.ScheduleStatusValidated
}

type roomReaderStub struct {
	rooms map[string]*models.Room
}

func (r *roomReaderStub) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := r.rooms[id]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

type classReaderStub struct {
	classes map[string]*models.Class
}

func (r *classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := r.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

type lecturerReaderStub struct {
	lecturers map[string]*models.Lecturer
}

func (r *lecturerReaderStub) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	if lecturer, ok := r.lecturers[id]; ok {
		return lecturer, nil
	}
	return nil, sql.ErrNoRows
}

type ledgerRecorderStub struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (l *ledgerRecorderStub) record(entry *models.LedgerEntry, status models.LedgerStatus) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.TxHash = "0xtest"
	entry.Status = status
	entry.Seq = int64(len(l.entries) + 1)
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *ledgerRecorderStub) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	return l.record(entry, models.LedgerStatusPending)
}

func (l *ledgerRecorderStub) AppendFailed(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	return l.record(entry, models.LedgerStatusFailed)
}

func (l *ledgerRecorderStub) byAction(action string) []*models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range l.entries {
		if e.ActionType == action {
			out = append(out, e)
		}
	}
	return out
}

func newScheduleFixture(repo *scheduleRepoStub, ledger *ledgerRecorderStub, coordinator *lock.KeyedMutex) *ScheduleService {
	rooms := &roomReaderStub{rooms: map[string]*models.Room{
		"room-101": {ID: "room-101", Name: "R101", Available: true},
		"room-202": {ID: "room-202", Name: "R202", Available: true},
		"room-off": {ID: "room-off", Name: "ROFF", Available: false},
	}}
	classes := &classReaderStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Code: "CS101", Semester: "2026-1", MaxStudents: 30},
	}}
	lecturers := &lecturerReaderStub{lecturers: map[string]*models.Lecturer{
		"lect-1": {ID: "lect-1", WalletAddress: "0xlect1"},
		"lect-2": {ID: "lect-2", WalletAddress: "0xlect2"},
	}}
	return NewScheduleService(repo, rooms, classes, lecturers, ledger, coordinator, nil, nil, nil)
}

func validProposal() ProposeScheduleRequest {
	return ProposeScheduleRequest{
		ClassID:    "class-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Semester:   "2026-1",
	}
}

func TestScheduleServiceProposeAdmitsCleanProposal(t *testing.T) {
	repo := newScheduleRepoStub()
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	schedule, err := svc.Propose(context.Background(), validProposal(), "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusPending, schedule.Status)
	require.NotEmpty(t, schedule.ID)
	require.NotNil(t, schedule.TxHash)

	stored, err := repo.FindByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusPending, stored.Status)

	appended := ledger.byAction(models.LedgerActionSchedulePropose)
	require.Len(t, appended, 1)
	require.Equal(t, schedule.ID, appended[0].EntityID)
	require.Equal(t, "0xadmin", appended[0].ActorWallet)
}

func TestScheduleServiceProposeRejectsOverlap(t *testing.T) {
	existing := &models.Schedule{
		ID:         "sch-existing",
		ClassID:    "class-1",
		RoomID:     "room-101",
		LecturerID: "lect-2",
		DayOfWeek:  1,
		StartTime:  "10:00",
		EndTime:    "12:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(existing)
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	_, err := svc.Propose(context.Background(), validProposal(), "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var conflictErr *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	require.Equal(t, models.ConflictTypeRoom, conflictErr.Conflicts[0].Type)
	require.Equal(t, "sch-existing", conflictErr.Conflicts[0].ScheduleID)

	// The rejection itself lands on the ledger as a failed append.
	failed := ledger.byAction(models.LedgerActionSchedulePropose)
	require.Len(t, failed, 1)
	require.Equal(t, models.LedgerStatusFailed, failed[0].Status)
}

func TestScheduleServiceProposeAdmitsBoundaryTouch(t *testing.T) {
	existing := &models.Schedule{
		ID:         "sch-existing",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "11:00",
		EndTime:    "13:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(existing)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)

	schedule, err := svc.Propose(context.Background(), validProposal(), "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusPending, schedule.Status)
}

func TestScheduleServiceProposeStructuralFailures(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		mutate   func(*ProposeScheduleRequest)
		wantCode string
	}{
		{"day out of range", func(r *ProposeScheduleRequest) { r.DayOfWeek = 7 }, appErrors.ErrInvalidRange.Code},
		{"end before start", func(r *ProposeScheduleRequest) { r.StartTime, r.EndTime = "11:00", "09:00" }, appErrors.ErrInvalidRange.Code},
		{"zero length", func(r *ProposeScheduleRequest) { r.EndTime = r.StartTime }, appErrors.ErrInvalidRange.Code},
		{"bad clock time", func(r *ProposeScheduleRequest) { r.StartTime = "25:00" }, appErrors.ErrInvalidRange.Code},
		{"unknown room", func(r *ProposeScheduleRequest) { r.RoomID = "room-missing" }, appErrors.ErrDanglingReference.Code},
		{"unavailable room", func(r *ProposeScheduleRequest) { r.RoomID = "room-off" }, appErrors.ErrDanglingReference.Code},
		{"unknown class", func(r *ProposeScheduleRequest) { r.ClassID = "class-missing" }, appErrors.ErrDanglingReference.Code},
		{"unknown lecturer", func(r *ProposeScheduleRequest) { r.LecturerID = "lect-missing" }, appErrors.ErrDanglingReference.Code},
		{"semester mismatch", func(r *ProposeScheduleRequest) { r.Semester = "2026-2" }, appErrors.ErrValidation.Code},
		{"missing field", func(r *ProposeScheduleRequest) { r.ClassID = "" }, appErrors.ErrMissingField.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validProposal()
			tc.mutate(&req)
			_, err := svc.Propose(ctx, req, "0xadmin")
			require.Error(t, err)
			require.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}

	// Structural failures never reach persistence.
	require.Empty(t, repo.schedules)
}

func TestScheduleServiceProposeConcurrentAdmitsOne(t *testing.T) {
	repo := newScheduleRepoStub()
	coordinator := lock.New(5 * time.Second)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, coordinator)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Propose(context.Background(), validProposal(), "0xadmin")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	}
	require.Equal(t, 1, admitted)
	require.Len(t, repo.schedules, 1)
}

func TestScheduleServiceProposeResourceBusy(t *testing.T) {
	repo := newScheduleRepoStub()
	coordinator := lock.New(30 * time.Millisecond)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, coordinator)

	release, err := coordinator.Acquire(context.Background(), "room:room-101:1:2026-1")
	require.NoError(t, err)
	defer release()

	_, err = svc.Propose(context.Background(), validProposal(), "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrResourceBusy.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceValidateTransitions(t *testing.T) {
	pending := &models.Schedule{
		ID:         "sch-1",
		ClassID:    "class-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleStatusPending,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(pending)
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	validated, err := svc.Validate(context.Background(), "sch-1", "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusValidated, validated.Status)
	require.NotNil(t, validated.ValidatedBy)
	require.Equal(t, "0xadmin", *validated.ValidatedBy)
	require.NotNil(t, validated.ValidatedAt)
	require.Len(t, ledger.byAction(models.LedgerActionScheduleValidate), 1)

	_, err = svc.Validate(context.Background(), "sch-1", "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceValidateFlagsDriftedConflict(t *testing.T) {
	pending := &models.Schedule{
		ID:         "sch-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleStatusPending,
		Semester:   "2026-1",
	}
	rival := &models.Schedule{
		ID:         "sch-2",
		RoomID:     "room-101",
		LecturerID: "lect-2",
		DayOfWeek:  1,
		StartTime:  "10:00",
		EndTime:    "12:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(pending, rival)
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	_, err := svc.Validate(context.Background(), "sch-1", "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	stored, err := repo.FindByID(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusConflict, stored.Status)
	require.Len(t, ledger.byAction(models.LedgerActionScheduleReject), 1)
}

func TestScheduleServiceValidateRejectsArchived(t *testing.T) {
	archived := &models.Schedule{
		ID:        "sch-1",
		RoomID:    "room-101",
		DayOfWeek: 1,
		StartTime: "09:00",
		EndTime:   "11:00",
		Status:    models.ScheduleStatusArchived,
		Semester:  "2026-1",
	}
	repo := newScheduleRepoStub(archived)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)

	_, err := svc.Validate(context.Background(), "sch-1", "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceArchiveIdempotent(t *testing.T) {
	schedule := &models.Schedule{
		ID:         "sch-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(schedule)
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	archived, err := svc.Archive(context.Background(), "sch-1", "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusArchived, archived.Status)

	again, err := svc.Archive(context.Background(), "sch-1", "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusArchived, again.Status)

	// Only the first call writes a ledger entry.
	require.Len(t, ledger.byAction(models.LedgerActionScheduleArchive), 1)
}

func TestScheduleServiceRescheduleMovesRoom(t *testing.T) {
	schedule := &models.Schedule{
		ID:         "sch-1",
		ClassID:    "class-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(schedule)
	ledger := &ledgerRecorderStub{}
	svc := newScheduleFixture(repo, ledger, nil)

	updated, err := svc.Reschedule(context.Background(), "sch-1", RescheduleRequest{RoomID: "room-202"}, "0xadmin")
	require.NoError(t, err)
	require.Equal(t, "room-202", updated.RoomID)
	require.NotNil(t, updated.TxHash)
	require.Len(t, ledger.byAction(models.LedgerActionChangeRequestResolve), 1)

	stored, err := repo.FindByID(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Equal(t, "room-202", stored.RoomID)
}

func TestScheduleServiceRescheduleRejectsStaleChange(t *testing.T) {
	schedule := &models.Schedule{
		ID:         "sch-1",
		RoomID:     "room-101",
		LecturerID: "lect-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	occupant := &models.Schedule{
		ID:         "sch-2",
		RoomID:     "room-202",
		LecturerID: "lect-2",
		DayOfWeek:  1,
		StartTime:  "10:00",
		EndTime:    "12:00",
		Status:     models.ScheduleStatusValidated,
		Semester:   "2026-1",
	}
	repo := newScheduleRepoStub(schedule, occupant)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)

	_, err := svc.Reschedule(context.Background(), "sch-1", RescheduleRequest{RoomID: "room-202"}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	stored, err := repo.FindByID(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Equal(t, "room-101", stored.RoomID)
}

func TestScheduleServiceRescheduleRejectsArchived(t *testing.T) {
	schedule := &models.Schedule{
		ID:       "sch-1",
		RoomID:   "room-101",
		Status:   models.ScheduleStatusArchived,
		Semester: "2026-1",
	}
	repo := newScheduleRepoStub(schedule)
	svc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)

	_, err := svc.Reschedule(context.Background(), "sch-1", RescheduleRequest{RoomID: "room-202"}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceGetNotFound(t *testing.T) {
	svc := newScheduleFixture(newScheduleRepoStub(), &ledgerRecorderStub{}, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
