package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notifyd/internal/application/dto"
	"notifyd/internal/domain/constant"
	"notifyd/internal/domain/entity"
	"notifyd/internal/domain/recurrence"
	"notifyd/internal/domain/repository"
	appErrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/logger"

	"gorm.io/gorm"
)

type coordinatorService struct {
	store   repository.ScheduleStore
	backend AlarmBackend
	sink    NotificationSink
	log     logger.Logger
	now     func() time.Time
}

// NewCoordinatorService creates a new instance of the ScheduleCoordinator
// implementation and wires itself in as the backend's fire handler.
func NewCoordinatorService(
	store repository.ScheduleStore,
	backend AlarmBackend,
	sink NotificationSink,
	log logger.Logger,
) ScheduleCoordinator {
	c := &coordinatorService{
		store:   store,
		backend: backend,
		sink:    sink,
		log:     log,
		now:     time.Now,
	}
	backend.SetFireHandler(c.handleWakeUp)
	return c
}

// handleWakeUp is the alarm backend's callback. The backend's execution
// context must never see an error escape, so everything is logged here.
func (c *coordinatorService) handleWakeUp(id string) {
	if err := c.Fire(context.Background(), id); err != nil {
		c.log.Error(fmt.Sprintf("Fire transition failed for schedule %s", id), err)
	}
}

// Register validates the spec, persists the record and arms the first
// wake-up.
func (c *coordinatorService) Register(ctx context.Context, req dto.RegisterScheduleRequest) (string, error) {
	record, err := c.buildRecord(req)
	if err != nil {
		return "", err
	}

	next, ok := recurrence.NextAfter(record.RecurrenceSpec(), c.now())
	if !ok {
		c.log.Warn(fmt.Sprintf("Rejected schedule %s: no future occurrence", record.ID))
		return "", fmt.Errorf("%w: schedule has no future occurrence", appErrors.ErrValidation)
	}
	record.NextOccurrence = &next

	// Re-registration replaces the previous record; drop its pending wake-up
	// first so the old arming cannot fire against the new spec.
	if prev, err := c.store.FindByID(ctx, record.ID); err == nil && prev.BackendToken != "" {
		c.backend.Disarm(prev.BackendToken)
	}

	if err := c.store.Save(ctx, record); err != nil {
		return "", fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	token, err := c.backend.Arm(record.ID, next)
	if err != nil {
		// The record stays persisted; RecoverOnRestart retries the arming.
		c.log.Error(fmt.Sprintf("Failed to arm wake-up for schedule %s", record.ID), err)
		return record.ID, fmt.Errorf("%w: %v", appErrors.ErrBackend, err)
	}
	if _, err := c.store.UpdateAtomic(ctx, record.ID, func(s *entity.Schedule) error {
		s.BackendToken = token
		return nil
	}); err != nil {
		return record.ID, fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	c.log.Info(fmt.Sprintf("Registered schedule %s (%s), first occurrence at %v", record.ID, record.ScheduleType, next))
	return record.ID, nil
}

// buildRecord validates the request and converts it into a fresh record.
func (c *coordinatorService) buildRecord(req dto.RegisterScheduleRequest) (*entity.Schedule, error) {
	scheduleType := constant.ScheduleType(req.ScheduleType)
	if !scheduleType.Valid() {
		return nil, fmt.Errorf("%w: unknown schedule type %q", appErrors.ErrValidation, req.ScheduleType)
	}
	if req.Anchor.IsZero() {
		return nil, fmt.Errorf("%w: anchor is required", appErrors.ErrValidation)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", appErrors.ErrValidation, req.Timezone)
	}

	weekDays, err := dto.ParseWeekDays(req.WeekDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrValidation, err)
	}

	if req.MaxOccurrences != nil && *req.MaxOccurrences <= 0 {
		return nil, fmt.Errorf("%w: max_occurrences must be positive", appErrors.ErrValidation)
	}

	adjustForDST := true
	if req.AdjustForDST != nil {
		adjustForDST = *req.AdjustForDST
	}

	now := c.now()
	record := &entity.Schedule{
		ID:             dto.CanonicalID(req.NotificationID),
		ScheduleType:   scheduleType,
		AnchorTime:     req.Anchor,
		Timezone:       timezone,
		EndDate:        req.EndDate,
		MaxOccurrences: req.MaxOccurrences,
		AdjustForDST:   adjustForDST,
		Active:         true,
		Payload:        []byte(req.Payload),
		TriggerCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	record.SetWeekDays(weekDays)

	if scheduleType == constant.TypeCustom {
		if req.Interval == nil || req.Interval.Every <= 0 || !constant.IntervalUnit(req.Interval.Unit).Valid() {
			return nil, fmt.Errorf("%w: custom schedule requires a positive interval with a valid unit", appErrors.ErrValidation)
		}
		record.IntervalEvery = req.Interval.Every
		record.IntervalUnit = constant.IntervalUnit(req.Interval.Unit)
	}

	return record, nil
}

// Fire runs one fire transition. The next occurrence is recomputed from the
// actual callback time, never the originally armed instant, which is what
// makes the engine tolerant of wake-up jitter.
func (c *coordinatorService) Fire(ctx context.Context, id string) error {
	now := c.now()
	var fired bool
	var payload []byte

	record, err := c.store.UpdateAtomic(ctx, id, func(s *entity.Schedule) error {
		if !s.Active {
			return nil // duplicate or late delivery, nothing to do
		}
		fired = true
		payload = s.Payload
		s.TriggerCount++
		s.UpdatedAt = now

		if s.ReachedMaxOccurrences() {
			s.Retire()
			return nil
		}
		next, ok := recurrence.NextAfter(s.RecurrenceSpec(), now)
		if !ok {
			s.Retire()
			return nil
		}
		s.NextOccurrence = &next
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.log.Debug(fmt.Sprintf("Wake-up for unknown schedule %s ignored", id))
			return nil
		}
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	if !fired {
		c.log.Debug(fmt.Sprintf("Wake-up for inactive schedule %s ignored", id))
		return nil
	}

	// Fire-and-forget handoff: scheduling progress never waits on delivery.
	go c.deliver(id, payload)

	if !record.Active || record.NextOccurrence == nil {
		c.log.Info(fmt.Sprintf("Schedule %s retired after fire %d", id, record.TriggerCount))
		return nil
	}

	token, err := c.backend.Arm(id, *record.NextOccurrence)
	if err != nil {
		c.log.Error(fmt.Sprintf("Failed to re-arm schedule %s", id), err)
		return fmt.Errorf("%w: %v", appErrors.ErrBackend, err)
	}
	if _, err := c.store.UpdateAtomic(ctx, id, func(s *entity.Schedule) error {
		s.BackendToken = token
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	c.log.Info(fmt.Sprintf("Schedule %s fired (count %d), next occurrence at %v", id, record.TriggerCount, *record.NextOccurrence))
	return nil
}

// deliver hands the payload to the notification sink. Failures are reported
// through the log; they never roll back the fire transition.
func (c *coordinatorService) deliver(id string, payload []byte) {
	if err := c.sink.Deliver(context.Background(), payload); err != nil {
		c.log.Error(fmt.Sprintf("Schedule %s: %v", id, appErrors.ErrSink), err)
	}
}

// Cancel disarms the wake-up and removes the record. Idempotent on unknown
// ids.
func (c *coordinatorService) Cancel(ctx context.Context, id string) error {
	record, err := c.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.log.Debug(fmt.Sprintf("Cancel for unknown schedule %s ignored", id))
			return nil
		}
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	if record.BackendToken != "" {
		c.backend.Disarm(record.BackendToken)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	c.log.Info(fmt.Sprintf("Cancelled schedule %s", id))
	return nil
}

// CancelAll disarms and removes every schedule.
func (c *coordinatorService) CancelAll(ctx context.Context) error {
	records, err := c.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	for _, record := range records {
		if record.BackendToken != "" {
			c.backend.Disarm(record.BackendToken)
		}
	}
	if err := c.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}
	c.log.Info(fmt.Sprintf("Cancelled all %d schedules", len(records)))
	return nil
}

// RecoverOnRestart rebuilds all armings from the store. Tokens persisted
// before the restart are dead and always overwritten.
func (c *coordinatorService) RecoverOnRestart(ctx context.Context) error {
	c.log.Info("Recovering schedules from the store...")
	records, err := c.store.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	now := c.now()
	rearmed := 0
	retired := 0
	for _, record := range records {
		next, ok := recurrence.NextAfter(record.RecurrenceSpec(), now)
		if record.ReachedMaxOccurrences() {
			ok = false
		}

		if !ok {
			if _, err := c.store.UpdateAtomic(ctx, record.ID, func(s *entity.Schedule) error {
				s.Retire()
				s.UpdatedAt = now
				return nil
			}); err != nil {
				c.log.Error(fmt.Sprintf("Failed to retire schedule %s during recovery", record.ID), err)
				continue
			}
			retired++
			continue
		}

		token, err := c.backend.Arm(record.ID, next)
		if err != nil {
			c.log.Error(fmt.Sprintf("Failed to re-arm schedule %s during recovery", record.ID), err)
			continue
		}
		occurrence := next
		if _, err := c.store.UpdateAtomic(ctx, record.ID, func(s *entity.Schedule) error {
			s.NextOccurrence = &occurrence
			s.BackendToken = token
			return nil
		}); err != nil {
			c.log.Error(fmt.Sprintf("Failed to persist recovery state for schedule %s", record.ID), err)
			continue
		}
		rearmed++
	}

	c.log.Info(fmt.Sprintf("Recovery complete. Re-armed: %d, Retired: %d", rearmed, retired))
	return nil
}

// UpdateSpec merges the given fields into the stored spec. It deliberately
// does not recompute or re-arm; see the coordinator interface contract.
func (c *coordinatorService) UpdateSpec(ctx context.Context, id string, req dto.UpdateScheduleRequest) error {
	if req.ScheduleType != nil && !constant.ScheduleType(*req.ScheduleType).Valid() {
		return fmt.Errorf("%w: unknown schedule type %q", appErrors.ErrValidation, *req.ScheduleType)
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", appErrors.ErrValidation, *req.Timezone)
		}
	}
	if req.Interval != nil && (req.Interval.Every <= 0 || !constant.IntervalUnit(req.Interval.Unit).Valid()) {
		return fmt.Errorf("%w: interval must be positive with a valid unit", appErrors.ErrValidation)
	}
	weekDays, err := dto.ParseWeekDays(req.WeekDays)
	if err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrValidation, err)
	}

	now := c.now()
	_, err = c.store.UpdateAtomic(ctx, id, func(s *entity.Schedule) error {
		if req.ScheduleType != nil {
			s.ScheduleType = constant.ScheduleType(*req.ScheduleType)
		}
		if req.Anchor != nil {
			s.AnchorTime = *req.Anchor
		}
		if req.Timezone != nil {
			s.Timezone = *req.Timezone
		}
		if len(req.WeekDays) > 0 {
			s.SetWeekDays(weekDays)
		}
		if req.Interval != nil {
			s.IntervalEvery = req.Interval.Every
			s.IntervalUnit = constant.IntervalUnit(req.Interval.Unit)
		}
		if req.EndDate != nil {
			s.EndDate = req.EndDate
		}
		if req.MaxOccurrences != nil {
			s.MaxOccurrences = req.MaxOccurrences
		}
		if req.AdjustForDST != nil {
			s.AdjustForDST = *req.AdjustForDST
		}
		if req.Payload != nil {
			s.Payload = []byte(*req.Payload)
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrScheduleNotFound
		}
		return fmt.Errorf("%w: %v", appErrors.ErrPersistence, err)
	}

	c.log.Info(fmt.Sprintf("Updated spec for schedule %s", id))
	return nil
}

// Stop shuts down the alarm backend.
func (c *coordinatorService) Stop() {
	c.backend.Stop()
}
