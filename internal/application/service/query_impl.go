package service

import (
	"context"
	"errors"
	"fmt"

	"notifyd/internal/application/dto"
	"notifyd/internal/domain/repository"
	appErrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/logger"

	"gorm.io/gorm"
)

type queryService struct {
	store repository.ScheduleStore
	log   logger.Logger
}

// NewQueryService creates a new instance of the ScheduleQueryService
// implementation.
func NewQueryService(store repository.ScheduleStore, log logger.Logger) ScheduleQueryService {
	return &queryService{store: store, log: log}
}

// Get retrieves a single schedule by its canonical id.
func (s *queryService) Get(ctx context.Context, id string) (dto.ScheduleResponse, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScheduleResponse{}, appErrors.ErrScheduleNotFound
		}
		s.log.Error(fmt.Sprintf("Failed to get schedule %s", id), err)
		return dto.ScheduleResponse{}, fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	return dto.ToScheduleResponse(record), nil
}

// List retrieves schedules matching the given filters and pagination window.
func (s *queryService) List(ctx context.Context, input repository.QueryInput) ([]dto.ScheduleResponse, error) {
	records, err := s.store.Query(ctx, input)
	if err != nil {
		s.log.Error("Failed to query schedules", err)
		return nil, fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	return dto.ToScheduleResponseList(records), nil
}

// Statistics summarizes the stored schedules.
func (s *queryService) Statistics(ctx context.Context) (dto.StatisticsResponse, error) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		s.log.Error("Failed to derive schedule statistics", err)
		return dto.StatisticsResponse{}, fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	return dto.ToStatisticsResponse(stats), nil
}
