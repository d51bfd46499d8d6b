package service

import (
	"context"
	"encoding/json"

	"github.com/educhain-labs/governance-api/internal/models"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
)

type scheduleChanger interface {
	Reschedule(ctx context.Context, id string, change RescheduleRequest, actorWallet string) (*models.Schedule, error)
	Archive(ctx context.Context, id, actorWallet string) (*models.Schedule, error)
}

// NewScheduleChangeAppliers builds the applier map for the supported
// change request types, all backed by the schedule pipeline.
func NewScheduleChangeAppliers(schedules scheduleChanger) map[models.ChangeRequestType]ChangeApplier {
	return map[models.ChangeRequestType]ChangeApplier{
		models.ChangeRequestTypeTime:         timeChangeApplier(schedules),
		models.ChangeRequestTypeRoom:         roomChangeApplier(schedules),
		models.ChangeRequestTypeCancellation: cancellationApplier(schedules),
	}
}

type timeChangePayload struct {
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func timeChangeApplier(schedules scheduleChanger) ChangeApplier {
	return ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
		var payload timeChangePayload
		if err := json.Unmarshal(request.ProposedData, &payload); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid time change payload")
		}
		if payload.StartTime == "" || payload.EndTime == "" {
			return nil, appErrors.Clone(appErrors.ErrMissingField, "start_time and end_time are required")
		}
		schedule, err := schedules.Reschedule(ctx, request.ScheduleID, RescheduleRequest{
			DayOfWeek: payload.DayOfWeek,
			StartTime: payload.StartTime,
			EndTime:   payload.EndTime,
		}, actorWallet)
		if err != nil {
			return nil, err
		}
		return schedule.TxHash, nil
	})
}

type roomChangePayload struct {
	RoomID string `json:"room_id"`
}

func roomChangeApplier(schedules scheduleChanger) ChangeApplier {
	return ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
		var payload roomChangePayload
		if err := json.Unmarshal(request.ProposedData, &payload); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid room change payload")
		}
		if payload.RoomID == "" {
			return nil, appErrors.Clone(appErrors.ErrMissingField, "room_id is required")
		}
		schedule, err := schedules.Reschedule(ctx, request.ScheduleID, RescheduleRequest{RoomID: payload.RoomID}, actorWallet)
		if err != nil {
			return nil, err
		}
		return schedule.TxHash, nil
	})
}

func cancellationApplier(schedules scheduleChanger) ChangeApplier {
	return ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest, actorWallet string) (*string, error) {
		schedule, err := schedules.Archive(ctx, request.ScheduleID, actorWallet)
		if err != nil {
			return nil, err
		}
		return schedule.TxHash, nil
	})
}
