package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/internal/repository"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type changeRequestRepoStub struct {
	requests   map[string]*models.ChangeRequest
	lastFilter models.ChangeRequestFilter
}

func newChangeRequestRepoStub(seed ...*models.ChangeRequest) *changeRequestRepoStub {
	stub := &changeRequestRepoStub{requests: make(map[string]*models.ChangeRequest)}
	for _, r := range seed {
		stub.requests[r.ID] = r
	}
	return stub
}

func (r *changeRequestRepoStub) Create(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

func (r *changeRequestRepoStub) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	if req, ok := r.requests[id]; ok {
		copied := *req
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *changeRequestRepoStub) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	r.lastFilter = filter
	var out []models.ChangeRequest
	for _, req := range r.requests {
		if filter.RequestedBy != "" && req.RequestedBy != filter.RequestedBy {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (r *changeRequestRepoStub) Resolve(ctx context.Context, params repository.ResolveChangeRequestParams) error {
	req, ok := r.requests[params.ID]
	if !ok || req.Status != models.ChangeRequestStatusPending {
		return sql.ErrNoRows
	}
	req.Status = params.Status
	req.ResolvedBy = &params.ResolvedBy
	req.ResolvedAt = &params.ResolvedAt
	req.Note = params.Note
	req.TxHash = params.TxHash
	return nil
}

type scheduleReaderStub struct {
	schedules map[string]*models.Schedule
}

func (s *scheduleReaderStub) Get(ctx context.Context, id string) (*models.Schedule, error) {
	if sched, ok := s.schedules[id]; ok {
		return sched, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
}

func newChangeRequestFixture(repo *changeRequestRepoStub, ledger *ledgerRecorderStub, appliers map[models.ChangeRequestType]ChangeApplier) *ChangeRequestService {
	schedules := &scheduleReaderStub{schedules: map[string]*models.Schedule{
		"sch-1":        {ID: "sch-1", Status: models.ScheduleStatusValidated},
		"sch-archived": {ID: "sch-archived", Status: models.ScheduleStatusArchived},
	}}
	return NewChangeRequestService(repo, schedules, ledger, nil, WithChangeAppliers(appliers))
}

func TestChangeRequestServiceSubmit(t *testing.T) {
	repo := newChangeRequestRepoStub()
	ledger := &ledgerRecorderStub{}
	svc := newChangeRequestFixture(repo, ledger, nil)

	request, err := svc.Submit(context.Background(), SubmitChangeRequest{
		ScheduleID:   "sch-1",
		Type:         models.ChangeRequestTypeRoom,
		ProposedData: []byte(`{"room_id":"room-202"}`),
		Reason:       "projector broken",
	}, "0xlecturer")
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestStatusPending, request.Status)
	require.Equal(t, "0xlecturer", request.RequestedBy)
	require.Len(t, ledger.byAction(models.LedgerActionChangeRequestSubmit), 1)
}

func TestChangeRequestServiceSubmitValidation(t *testing.T) {
	svc := newChangeRequestFixture(newChangeRequestRepoStub(), &ledgerRecorderStub{}, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		req      SubmitChangeRequest
		wantCode string
	}{
		{
			"missing schedule id",
			SubmitChangeRequest{Type: models.ChangeRequestTypeCancellation, Reason: "x"},
			appErrors.ErrMissingField.Code,
		},
		{
			"missing reason",
			SubmitChangeRequest{ScheduleID: "sch-1", Type: models.ChangeRequestTypeCancellation},
			appErrors.ErrMissingField.Code,
		},
		{
			"room change without payload",
			SubmitChangeRequest{ScheduleID: "sch-1", Type: models.ChangeRequestTypeRoom, Reason: "x"},
			appErrors.ErrValidation.Code,
		},
		{
			"invalid payload json",
			SubmitChangeRequest{ScheduleID: "sch-1", Type: models.ChangeRequestTypeTime, ProposedData: []byte("{"), Reason: "x"},
			appErrors.ErrValidation.Code,
		},
		{
			"unsupported type",
			SubmitChangeRequest{ScheduleID: "sch-1", Type: "MERGE", Reason: "x"},
			appErrors.ErrValidation.Code,
		},
		{
			"archived schedule",
			SubmitChangeRequest{ScheduleID: "sch-archived", Type: models.ChangeRequestTypeCancellation, Reason: "x"},
			appErrors.ErrPreconditionFailed.Code,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.req, "0xlecturer")
			require.Error(t, err)
			require.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestChangeRequestServiceResolveApproveRunsApplier(t *testing.T) {
	pending := &models.ChangeRequest{
		ID:           "cr-1",
		ScheduleID:   "sch-1",
		RequestedBy:  "0xlecturer",
		Type:         models.ChangeRequestTypeRoom,
		ProposedData: []byte(`{"room_id":"room-202"}`),
		Status:       models.ChangeRequestStatusPending,
	}
	repo := newChangeRequestRepoStub(pending)
	txHash := "0xapplied"
	applied := false
	appliers := map[models.ChangeRequestType]ChangeApplier{
		models.ChangeRequestTypeRoom: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
			applied = true
			require.Equal(t, "cr-1", request.ID)
			require.Equal(t, "0xadmin", actorWallet)
			return &txHash, nil
		}),
	}
	svc := newChangeRequestFixture(repo, &ledgerRecorderStub{}, appliers)

	resolved, err := svc.Resolve(context.Background(), "cr-1", ResolveChangeRequestInput{Status: models.ChangeRequestStatusApproved, Note: "ok"}, "0xadmin")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.ChangeRequestStatusApproved, resolved.Status)
	require.NotNil(t, resolved.TxHash)
	require.Equal(t, txHash, *resolved.TxHash)
	require.NotNil(t, resolved.Note)
	require.Equal(t, "ok", *resolved.Note)
}

func TestChangeRequestServiceResolveApplierFailureKeepsPending(t *testing.T) {
	pending := &models.ChangeRequest{
		ID:          "cr-1",
		ScheduleID:  "sch-1",
		RequestedBy: "0xlecturer",
		Type:        models.ChangeRequestTypeCancellation,
		Status:      models.ChangeRequestStatusPending,
	}
	repo := newChangeRequestRepoStub(pending)
	appliers := map[models.ChangeRequestType]ChangeApplier{
		models.ChangeRequestTypeCancellation: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "schedule drifted")
		}),
	}
	svc := newChangeRequestFixture(repo, &ledgerRecorderStub{}, appliers)

	_, err := svc.Resolve(context.Background(), "cr-1", ResolveChangeRequestInput{Status: models.ChangeRequestStatusApproved}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	stored, err := repo.GetByID(context.Background(), "cr-1")
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestStatusPending, stored.Status)
}

func TestChangeRequestServiceResolveRejected(t *testing.T) {
	pending := &models.ChangeRequest{
		ID:          "cr-1",
		ScheduleID:  "sch-1",
		RequestedBy: "0xlecturer",
		Type:        models.ChangeRequestTypeCancellation,
		Status:      models.ChangeRequestStatusPending,
	}
	repo := newChangeRequestRepoStub(pending)
	ledger := &ledgerRecorderStub{}
	svc := newChangeRequestFixture(repo, ledger, nil)

	resolved, err := svc.Resolve(context.Background(), "cr-1", ResolveChangeRequestInput{Status: models.ChangeRequestStatusRejected, Note: "no"}, "0xadmin")
	require.NoError(t, err)
	require.Equal(t, models.ChangeRequestStatusRejected, resolved.Status)
	require.Nil(t, resolved.TxHash)

	failed := ledger.byAction(models.LedgerActionChangeRequestResolve)
	require.Len(t, failed, 1)
	require.Equal(t, models.LedgerStatusFailed, failed[0].Status)
}

func TestChangeRequestServiceResolveExactlyOnce(t *testing.T) {
	resolved := &models.ChangeRequest{
		ID:          "cr-1",
		ScheduleID:  "sch-1",
		RequestedBy: "0xlecturer",
		Type:        models.ChangeRequestTypeCancellation,
		Status:      models.ChangeRequestStatusApproved,
	}
	repo := newChangeRequestRepoStub(resolved)
	svc := newChangeRequestFixture(repo, &ledgerRecorderStub{}, nil)

	_, err := svc.Resolve(context.Background(), "cr-1", ResolveChangeRequestInput{Status: models.ChangeRequestStatusRejected}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestServiceListScopesLecturers(t *testing.T) {
	repo := newChangeRequestRepoStub(
		&models.ChangeRequest{ID: "cr-1", RequestedBy: "0xlect1", Status: models.ChangeRequestStatusPending},
		&models.ChangeRequest{ID: "cr-2", RequestedBy: "0xlect2", Status: models.ChangeRequestStatusPending},
	)
	svc := newChangeRequestFixture(repo, &ledgerRecorderStub{}, nil)

	mine, err := svc.List(context.Background(), models.ChangeRequestFilter{}, &models.JWTClaims{WalletAddress: "0xlect1", Role: models.RoleLecturer})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "0xlect1", mine[0].RequestedBy)

	all, err := svc.List(context.Background(), models.ChangeRequestFilter{}, &models.JWTClaims{WalletAddress: "0xadmin", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = svc.List(context.Background(), models.ChangeRequestFilter{}, &models.JWTClaims{WalletAddress: "0xstudent", Role: models.RoleStudent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestScheduleChangeAppliers(t *testing.T) {
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
	scheduleSvc := newScheduleFixture(repo, &ledgerRecorderStub{}, nil)
	appliers := NewScheduleChangeAppliers(scheduleSvc)

	txHash, err := appliers[models.ChangeRequestTypeRoom].Apply(context.Background(), &models.ChangeRequest{
		ScheduleID:   "sch-1",
		ProposedData: []byte(`{"room_id":"room-202"}`),
	}, "0xadmin")
	require.NoError(t, err)
	require.NotNil(t, txHash)

	txHash, err = appliers[models.ChangeRequestTypeTime].Apply(context.Background(), &models.ChangeRequest{
		ScheduleID:   "sch-1",
		ProposedData: []byte(`{"start_time":"13:00","end_time":"15:00"}`),
	}, "0xadmin")
	require.NoError(t, err)
	require.NotNil(t, txHash)

	txHash, err = appliers[models.ChangeRequestTypeCancellation].Apply(context.Background(), &models.ChangeRequest{
		ScheduleID: "sch-1",
	}, "0xadmin")
	require.NoError(t, err)
	require.NotNil(t, txHash)

	stored, err := repo.FindByID(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Equal(t, models.ScheduleStatusArchived, stored.Status)
	require.Equal(t, "room-202", stored.RoomID)
	require.Equal(t, "13:00", stored.StartTime)
}

func TestScheduleChangeAppliersRejectBadPayload(t *testing.T) {
	scheduleSvc := newScheduleFixture(newScheduleRepoStub(), &ledgerRecorderStub{}, nil)
	appliers := NewScheduleChangeAppliers(scheduleSvc)

	_, err := appliers[models.ChangeRequestTypeTime].Apply(context.Background(), &models.ChangeRequest{
		ScheduleID:   "sch-1",
		ProposedData: []byte(`{"start_time":"13:00"}`),
	}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrMissingField.Code, appErrors.FromError(err).Code)

	_, err = appliers[models.ChangeRequestTypeRoom].Apply(context.Background(), &models.ChangeRequest{
		ScheduleID:   "sch-1",
		ProposedData: []byte(`{}`),
	}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrMissingField.Code, appErrors.FromError(err).Code)
}
