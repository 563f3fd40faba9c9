package repository

import (
	"context"
	"time"

	"notifyd/internal/domain/constant"
	"notifyd/internal/domain/entity"
)

// QueryInput holds the optional, ANDed filters and the pagination window for
// Query. A nil filter field means the filter is not applied. Pagination is
// drop-then-take; no ordering is guaranteed.
type QueryInput struct {
	IsActive        *bool
	IsRecurring     *bool
	ScheduleType    *constant.ScheduleType
	ScheduledAfter  *time.Time // matches records whose next occurrence is after this instant
	ScheduledBefore *time.Time // matches records whose next occurrence is before this instant
	Limit           int        // 0 means no limit
	Offset          int
}

// Statistics summarizes the stored schedules, derived by a single full scan.
type Statistics struct {
	Total     int
	Active    int
	Expired   int
	Recurring int
	OneTime   int
}

// ScheduleStore defines the interface for schedule record persistence.
type ScheduleStore interface {
	// FindByID retrieves a schedule by its canonical id.
	FindByID(ctx context.Context, id string) (*entity.Schedule, error)
	// FindAll retrieves all schedules.
	FindAll(ctx context.Context) ([]*entity.Schedule, error)
	// FindActive retrieves all schedules with the active flag set (used for restart recovery).
	FindActive(ctx context.Context) ([]*entity.Schedule, error)
	// Save writes a schedule, overwriting any existing record under the same id.
	Save(ctx context.Context, schedule *entity.Schedule) error
	// UpdateAtomic applies a read-modify-write to one schedule. Updates to the
	// same id are serialized so no increment is lost; distinct ids proceed
	// independently. The updated record is returned.
	UpdateAtomic(ctx context.Context, id string, mutate func(*entity.Schedule) error) (*entity.Schedule, error)
	// Delete removes a schedule by its id.
	Delete(ctx context.Context, id string) error
	// DeleteAll removes all schedules.
	DeleteAll(ctx context.Context) error
	// Query retrieves schedules matching the given filters and pagination window.
	Query(ctx context.Context, input QueryInput) ([]*entity.Schedule, error)
	// Statistics derives summary counts over all stored schedules.
	Statistics(ctx context.Context) (Statistics, error)
}
