package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type roomStore interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	SetAvailability(ctx context.Context, id string, available bool) error
}

// UpsertRoomRequest carries room create and update payloads.
type UpsertRoomRequest struct {
	Name       string `json:"name" validate:"required"`
	Building   string `json:"building" validate:"required"`
	Floor      int    `json:"floor"`
	Capacity   int    `json:"capacity" validate:"required,gt=0"`
	Facilities string `json:"facilities"`
}

// RoomService manages room records. Rooms are never deleted; removing a
// room from circulation flips its availability flag.
type RoomService struct {
	repo      roomStore
	ledger    ledgerAppender
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService instantiates RoomService.
func NewRoomService(repo roomStore, ledger ledgerAppender, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{repo: repo, ledger: ledger, validator: validate, logger: logger}
}

// List returns rooms with pagination metadata.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return rooms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a room by id.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create registers a new room.
func (s *RoomService) Create(ctx context.Context, req UpsertRoomRequest, actorWallet string) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid room payload")
	}
	room := &models.Room{
		Name:       req.Name,
		Building:   req.Building,
		Floor:      req.Floor,
		Capacity:   req.Capacity,
		Facilities: req.Facilities,
		Available:  true,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.recordUpsert(ctx, room.ID, actorWallet, room, "room created")
	return room, nil
}

// Update modifies an existing room in place.
func (s *RoomService) Update(ctx context.Context, id string, req UpsertRoomRequest, actorWallet string) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMissingField.Code, appErrors.ErrMissingField.Status, "invalid room payload")
	}
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Name = req.Name
	room.Building = req.Building
	room.Floor = req.Floor
	room.Capacity = req.Capacity
	room.Facilities = req.Facilities
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	s.recordUpsert(ctx, room.ID, actorWallet, room, "room updated")
	return room, nil
}

// SetAvailability flips the availability flag. Unavailable rooms are
// rejected by the schedule pipeline but remain visible and queryable.
func (s *RoomService) SetAvailability(ctx context.Context, id string, available bool, actorWallet string) (*models.Room, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Available == available {
		return room, nil
	}
	if err := s.repo.SetAvailability(ctx, id, available); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room availability")
	}
	room.Available = available
	s.recordUpsert(ctx, room.ID, actorWallet, room, fmt.Sprintf("room availability set to %t", available))
	return room, nil
}

func (s *RoomService) recordUpsert(ctx context.Context, roomID, actorWallet string, room *models.Room, detail string) {
	delta, _ := json.Marshal(room)
	if _, err := s.ledger.Append(ctx, &models.LedgerEntry{
		ActionType:  models.LedgerActionEntityUpsert,
		ActorWallet: actorWallet,
		EntityType:  "room",
		EntityID:    roomID,
		Detail:      detail,
		Delta:       delta,
	}); err != nil {
		s.logger.Warn("failed to record room upsert", zap.Error(err))
	}
}
