package service

import (
	"context"

	"notifyd/internal/application/dto"
	"notifyd/internal/domain/repository"
)

// ScheduleQueryService defines the read-only query surface over stored
// schedules.
type ScheduleQueryService interface {
	// Get retrieves a single schedule by its canonical id.
	Get(ctx context.Context, id string) (dto.ScheduleResponse, error)
	// List retrieves schedules matching the given filters and pagination
	// window. No ordering is guaranteed.
	List(ctx context.Context, input repository.QueryInput) ([]dto.ScheduleResponse, error)
	// Statistics summarizes the stored schedules.
	Statistics(ctx context.Context) (dto.StatisticsResponse, error)
}
