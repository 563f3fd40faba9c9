package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notifyd/internal/domain/entity"
	"notifyd/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type scheduleStore struct {
	db *gorm.DB

	// Per-id locks serialize UpdateAtomic for one schedule while leaving
	// distinct ids independent.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScheduleStore creates a new instance of ScheduleStore backed by GORM.
func NewScheduleStore(db *gorm.DB) repository.ScheduleStore {
	return &scheduleStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *scheduleStore) idLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// FindByID retrieves a schedule by its canonical id.
func (s *scheduleStore) FindByID(ctx context.Context, id string) (*entity.Schedule, error) {
	var schedule entity.Schedule
	if err := s.db.WithContext(ctx).First(&schedule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("🔴 ERROR: failed to find schedule %s: %w", id, err)
	}
	return &schedule, nil
}

// FindAll retrieves all schedules.
func (s *scheduleStore) FindAll(ctx context.Context) ([]*entity.Schedule, error) {
	var schedules []*entity.Schedule
	if err := s.db.WithContext(ctx).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("🔴 ERROR: failed to find all schedules: %w", err)
	}
	return schedules, nil
}

// FindActive retrieves all schedules with the active flag set.
func (s *scheduleStore) FindActive(ctx context.Context) ([]*entity.Schedule, error) {
	var schedules []*entity.Schedule
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("🔴 ERROR: failed to find active schedules: %w", err)
	}
	return schedules, nil
}

// Save writes a schedule, overwriting any existing record under the same id.
func (s *scheduleStore) Save(ctx context.Context, schedule *entity.Schedule) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(schedule).Error
	if err != nil {
		return fmt.Errorf("🔴 ERROR: failed to save schedule %s: %w", schedule.ID, err)
	}
	return nil
}

// UpdateAtomic applies a read-modify-write to one schedule under its per-id
// lock, so concurrent fire/cancel/update transitions on the same id never
// lose an increment.
func (s *scheduleStore) UpdateAtomic(ctx context.Context, id string, mutate func(*entity.Schedule) error) (*entity.Schedule, error) {
	lock := s.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	var schedule entity.Schedule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&schedule, "id = ?", id).Error; err != nil {
			return err
		}
		if err := mutate(&schedule); err != nil {
			return err
		}
		return tx.Save(&schedule).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("🔴 ERROR: failed to update schedule %s: %w", id, err)
	}
	return &schedule, nil
}

// Delete removes a schedule by its id.
func (s *scheduleStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&entity.Schedule{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("🔴 ERROR: failed to delete schedule %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes all schedules.
func (s *scheduleStore) DeleteAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&entity.Schedule{}).Error; err != nil {
		return fmt.Errorf("🔴 ERROR: failed to delete all schedules: %w", err)
	}
	return nil
}

// Query retrieves schedules matching the given filters and pagination window.
// Filters are ANDed and evaluated over a full scan; pagination drops Offset
// records and takes Limit.
func (s *scheduleStore) Query(ctx context.Context, input repository.QueryInput) ([]*entity.Schedule, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*entity.Schedule, 0, len(all))
	for _, sched := range all {
		if !matchesQuery(sched, input) {
			continue
		}
		matched = append(matched, sched)
	}

	if input.Offset > 0 {
		if input.Offset >= len(matched) {
			return []*entity.Schedule{}, nil
		}
		matched = matched[input.Offset:]
	}
	if input.Limit > 0 && input.Limit < len(matched) {
		matched = matched[:input.Limit]
	}
	return matched, nil
}

func matchesQuery(s *entity.Schedule, input repository.QueryInput) bool {
	if input.IsActive != nil && s.Active != *input.IsActive {
		return false
	}
	if input.IsRecurring != nil && s.IsRecurring() != *input.IsRecurring {
		return false
	}
	if input.ScheduleType != nil && s.ScheduleType != *input.ScheduleType {
		return false
	}
	if input.ScheduledAfter != nil {
		if s.NextOccurrence == nil || !s.NextOccurrence.After(*input.ScheduledAfter) {
			return false
		}
	}
	if input.ScheduledBefore != nil {
		if s.NextOccurrence == nil || !s.NextOccurrence.Before(*input.ScheduledBefore) {
			return false
		}
	}
	return true
}

// Statistics derives summary counts by a single full scan.
func (s *scheduleStore) Statistics(ctx context.Context) (repository.Statistics, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return repository.Statistics{}, err
	}

	now := time.Now()
	stats := repository.Statistics{Total: len(all)}
	for _, sched := range all {
		if sched.Active {
			stats.Active++
		}
		if sched.Expired(now) || sched.ReachedMaxOccurrences() {
			stats.Expired++
		}
		if sched.IsRecurring() {
			stats.Recurring++
		} else {
			stats.OneTime++
		}
	}
	return stats, nil
}
