package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type roomStoreStub struct {
	rooms map[string]*models.Room
}

func newRoomStoreStub(seed ...*models.Room) *roomStoreStub {
	stub := &roomStoreStub{rooms: make(map[string]*models.Room)}
	for _, r := range seed {
		stub.rooms[r.ID] = r
	}
	return stub
}

func (r *roomStoreStub) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	var out []models.Room
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	return out, len(out), nil
}

func (r *roomStoreStub) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := r.rooms[id]; ok {
		copied := *room
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *roomStoreStub) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	copied := *room
	r.rooms[room.ID] = &copied
	return nil
}

func (r *roomStoreStub) Update(ctx context.Context, room *models.Room) error {
	if _, ok := r.rooms[room.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *room
	r.rooms[room.ID] = &copied
	return nil
}

func (r *roomStoreStub) SetAvailability(ctx context.Context, id string, available bool) error {
	room, ok := r.rooms[id]
	if !ok {
		return sql.ErrNoRows
	}
	room.Available = available
	return nil
}

type classStoreStub struct {
	classes map[string]*models.Class
}

func newClassStoreStub(seed ...*models.Class) *classStoreStub {
	stub := &classStoreStub{classes: make(map[string]*models.Class)}
	for _, c := range seed {
		stub.classes[c.ID] = c
	}
	return stub
}

func (r *classStoreStub) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	var out []models.Class
	for _, class := range r.classes {
		out = append(out, *class)
	}
	return out, len(out), nil
}

func (r *classStoreStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := r.classes[id]; ok {
		copied := *class
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *classStoreStub) ExistsByCode(ctx context.Context, code, semester, excludeID string) (bool, error) {
	for _, class := range r.classes {
		if class.Code == code && class.Semester == semester && class.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *classStoreStub) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

func (r *classStoreStub) Update(ctx context.Context, class *models.Class) error {
	if _, ok := r.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

type lecturerStoreStub struct {
	lecturers map[string]*models.Lecturer
}

func newLecturerStoreStub(seed ...*models.Lecturer) *lecturerStoreStub {
	stub := &lecturerStoreStub{lecturers: make(map[string]*models.Lecturer)}
	for _, l := range seed {
		stub.lecturers[l.ID] = l
	}
	return stub
}

func (r *lecturerStoreStub) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error) {
	var out []models.Lecturer
	for _, l := range r.lecturers {
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (r *lecturerStoreStub) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	if l, ok := r.lecturers[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *lecturerStoreStub) FindByWallet(ctx context.Context, wallet string) (*models.Lecturer, error) {
	for _, l := range r.lecturers {
		if l.WalletAddress == wallet {
			copied := *l
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *lecturerStoreStub) ExistsByWallet(ctx context.Context, wallet, excludeID string) (bool, error) {
	for _, l := range r.lecturers {
		if l.WalletAddress == wallet && l.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *lecturerStoreStub) Create(ctx context.Context, lecturer *models.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	copied := *lecturer
	r.lecturers[lecturer.ID] = &copied
	return nil
}

func (r *lecturerStoreStub) Update(ctx context.Context, lecturer *models.Lecturer) error {
	if _, ok := r.lecturers[lecturer.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *lecturer
	r.lecturers[lecturer.ID] = &copied
	return nil
}

func TestRoomServiceCreateRecordsUpsert(t *testing.T) {
	ledger := &ledgerRecorderStub{}
	svc := NewRoomService(newRoomStoreStub(), ledger, nil, nil)

	room, err := svc.Create(context.Background(), UpsertRoomRequest{
		Name:     "R101",
		Building: "Main",
		Capacity: 40,
	}, "0xadmin")
	require.NoError(t, err)
	require.True(t, room.Available)
	require.NotEmpty(t, room.ID)

	upserts := ledger.byAction(models.LedgerActionEntityUpsert)
	require.Len(t, upserts, 1)
	require.Equal(t, "room", upserts[0].EntityType)
}

func TestRoomServiceSetAvailabilityIdempotent(t *testing.T) {
	repo := newRoomStoreStub(&models.Room{ID: "room-1", Name: "R101", Available: true})
	ledger := &ledgerRecorderStub{}
	svc := NewRoomService(repo, ledger, nil, nil)

	room, err := svc.SetAvailability(context.Background(), "room-1", false, "0xadmin")
	require.NoError(t, err)
	require.False(t, room.Available)

	// Setting the same value again writes nothing.
	room, err = svc.SetAvailability(context.Background(), "room-1", false, "0xadmin")
	require.NoError(t, err)
	require.False(t, room.Available)
	require.Len(t, ledger.byAction(models.LedgerActionEntityUpsert), 1)
}

func TestClassServiceCreateEnforcesCodeUniqueness(t *testing.T) {
	repo := newClassStoreStub(&models.Class{ID: "class-1", Code: "CS101", Semester: "2026-1"})
	svc := NewClassService(repo, &ledgerRecorderStub{}, nil, nil)

	_, err := svc.Create(context.Background(), UpsertClassRequest{
		Name:        "Intro to CS",
		Code:        "CS101",
		Credits:     3,
		Semester:    "2026-1",
		MaxStudents: 30,
	}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// The same code in another semester is fine.
	class, err := svc.Create(context.Background(), UpsertClassRequest{
		Name:        "Intro to CS",
		Code:        "CS101",
		Credits:     3,
		Semester:    "2026-2",
		MaxStudents: 30,
	}, "0xadmin")
	require.NoError(t, err)
	require.NotEmpty(t, class.ID)
}

func TestClassServiceCreateValidatesPayload(t *testing.T) {
	svc := NewClassService(newClassStoreStub(), &ledgerRecorderStub{}, nil, nil)

	_, err := svc.Create(context.Background(), UpsertClassRequest{Name: "x"}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrMissingField.Code, appErrors.FromError(err).Code)
}

func TestLecturerServiceCreateEnforcesWalletUniqueness(t *testing.T) {
	repo := newLecturerStoreStub(&models.Lecturer{ID: "lect-1", WalletAddress: "0xlect1", Name: "A"})
	svc := NewLecturerService(repo, &ledgerRecorderStub{}, nil, nil)

	_, err := svc.Create(context.Background(), UpsertLecturerRequest{
		WalletAddress: "0xlect1",
		Name:          "B",
		Department:    "CS",
	}, "0xadmin")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLecturerServiceUpdateAllowsOwnWallet(t *testing.T) {
	repo := newLecturerStoreStub(&models.Lecturer{ID: "lect-1", WalletAddress: "0xlect1", Name: "A", Department: "CS"})
	ledger := &ledgerRecorderStub{}
	svc := NewLecturerService(repo, ledger, nil, nil)

	lecturer, err := svc.Update(context.Background(), "lect-1", UpsertLecturerRequest{
		WalletAddress: "0xlect1",
		Name:          "A. Renamed",
		Department:    "CS",
	}, "0xadmin")
	require.NoError(t, err)
	require.Equal(t, "A. Renamed", lecturer.Name)
	require.Len(t, ledger.byAction(models.LedgerActionEntityUpsert), 1)
}
