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

type enrollmentRepoStub struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
	lastFilter  models.EnrollmentFilter
}

func newEnrollmentRepoStub(seed ...*models.Enrollment) *enrollmentRepoStub {
	stub := &enrollmentRepoStub{enrollments: make(map[string]*models.Enrollment)}
	for _, e := range seed {
		stub.enrollments[e.ID] = e
	}
	return stub
}

func (r *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	var out []models.Enrollment
	for _, e := range r.enrollments {
		if filter.StudentWallet != "" && e.StudentWallet != filter.StudentWallet {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (r *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.enrollments[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *enrollmentRepoStub) ExistsActive(ctx context.Context, studentWallet, classID, semester string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.StudentWallet == studentWallet && e.ClassID == classID && e.Semester == semester && e.Status == models.EnrollmentStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *enrollmentRepoStub) CountActiveByClass(ctx context.Context, classID, semester string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.enrollments {
		if e.ClassID == classID && e.Semester == semester && e.Status == models.EnrollmentStatusActive {
			count++
		}
	}
	return count, nil
}

func (r *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *enrollment
	r.enrollments[enrollment.ID] = &copied
	return nil
}

func (r *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	e.WithdrawnAt = withdrawnAt
	return nil
}

func newEnrollmentFixture(repo *enrollmentRepoStub, ledger *ledgerRecorderStub, maxStudents int) *EnrollmentService {
	classes := &classReaderStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Code: "CS101", Semester: "2026-1", MaxStudents: maxStudents},
	}}
	return NewEnrollmentService(repo, classes, ledger, lock.New(5*time.Second), nil)
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo := newEnrollmentRepoStub()
	ledger := &ledgerRecorderStub{}
	svc := newEnrollmentFixture(repo, ledger, 30)

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{ClassID: "class-1", Semester: "2026-1"}, "0xstudent")
	require.NoError(t, err)
	require.Equal(t, "0xstudent", enrollment.StudentWallet)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.TxHash)

	appended := ledger.byAction(models.LedgerActionEnroll)
	require.Len(t, appended, 1)
	require.Equal(t, enrollment.ID, appended[0].EntityID)
}

func TestEnrollmentServiceEnrollRejectsDuplicate(t *testing.T) {
	repo := newEnrollmentRepoStub(&models.Enrollment{
		ID:            "enr-1",
		StudentWallet: "0xstudent",
		ClassID:       "class-1",
		Semester:      "2026-1",
		Status:        models.EnrollmentStatusActive,
	})
	svc := newEnrollmentFixture(repo, &ledgerRecorderStub{}, 30)

	_, err := svc.Enroll(context.Background(), EnrollRequest{ClassID: "class-1", Semester: "2026-1"}, "0xstudent")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollRejectsUnknownClass(t *testing.T) {
	svc := newEnrollmentFixture(newEnrollmentRepoStub(), &ledgerRecorderStub{}, 30)

	_, err := svc.Enroll(context.Background(), EnrollRequest{ClassID: "class-missing", Semester: "2026-1"}, "0xstudent")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDanglingReference.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCapacityRace(t *testing.T) {
	repo := newEnrollmentRepoStub()
	svc := newEnrollmentFixture(repo, &ledgerRecorderStub{}, 2)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet := "0xstudent" + string(rune('a'+i))
			_, errs[i] = svc.Enroll(context.Background(), EnrollRequest{ClassID: "class-1", Semester: "2026-1"}, wallet)
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
	require.Equal(t, 2, admitted)
}

func TestEnrollmentServiceWithdraw(t *testing.T) {
	repo := newEnrollmentRepoStub(&models.Enrollment{
		ID:            "enr-1",
		StudentWallet: "0xstudent",
		ClassID:       "class-1",
		Semester:      "2026-1",
		Status:        models.EnrollmentStatusActive,
	})
	ledger := &ledgerRecorderStub{}
	svc := newEnrollmentFixture(repo, ledger, 30)
	claims := &models.JWTClaims{WalletAddress: "0xstudent", Role: models.RoleStudent}

	withdrawn, err := svc.Withdraw(context.Background(), "enr-1", claims)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.WithdrawnAt)
	require.Len(t, ledger.byAction(models.LedgerActionWithdraw), 1)

	// Withdrawing again is a no-op without a second ledger entry.
	again, err := svc.Withdraw(context.Background(), "enr-1", claims)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusWithdrawn, again.Status)
	require.Len(t, ledger.byAction(models.LedgerActionWithdraw), 1)
}

func TestEnrollmentServiceWithdrawForbiddenForOtherStudent(t *testing.T) {
	repo := newEnrollmentRepoStub(&models.Enrollment{
		ID:            "enr-1",
		StudentWallet: "0xstudent",
		ClassID:       "class-1",
		Semester:      "2026-1",
		Status:        models.EnrollmentStatusActive,
	})
	svc := newEnrollmentFixture(repo, &ledgerRecorderStub{}, 30)
	claims := &models.JWTClaims{WalletAddress: "0xother", Role: models.RoleStudent}

	_, err := svc.Withdraw(context.Background(), "enr-1", claims)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceListScopesStudents(t *testing.T) {
	repo := newEnrollmentRepoStub(
		&models.Enrollment{ID: "enr-1", StudentWallet: "0xstudent", ClassID: "class-1", Semester: "2026-1", Status: models.EnrollmentStatusActive},
		&models.Enrollment{ID: "enr-2", StudentWallet: "0xother", ClassID: "class-1", Semester: "2026-1", Status: models.EnrollmentStatusActive},
	)
	svc := newEnrollmentFixture(repo, &ledgerRecorderStub{}, 30)

	enrollments, _, err := svc.List(context.Background(), models.EnrollmentFilter{}, &models.JWTClaims{WalletAddress: "0xstudent", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "0xstudent", enrollments[0].StudentWallet)

	all, _, err := svc.List(context.Background(), models.EnrollmentFilter{}, &models.JWTClaims{WalletAddress: "0xadmin", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
