package service

import (
	"context"

	"notifyd/internal/application/dto"
)

// ScheduleCoordinator defines the interface for the schedule lifecycle:
// registration, firing, cancellation and restart recovery.
type ScheduleCoordinator interface {
	// Register validates the spec, persists the record and arms the alarm
	// backend for its first occurrence. It rejects specs with no future
	// occurrence; nothing is persisted in that case. Re-registering the same
	// notification id replaces the previous record.
	Register(ctx context.Context, req dto.RegisterScheduleRequest) (string, error)
	// Fire runs one fire transition for the schedule: payload handoff,
	// trigger count increment, next-occurrence recomputation from the actual
	// callback time, and re-arm or retirement. It is a no-op on missing or
	// inactive records, making duplicate wake-up deliveries safe.
	Fire(ctx context.Context, id string) error
	// Cancel disarms the wake-up and removes the record. Idempotent on
	// unknown ids.
	Cancel(ctx context.Context, id string) error
	// CancelAll disarms and removes every schedule.
	CancelAll(ctx context.Context) error
	// RecoverOnRestart re-arms every stored active schedule against the
	// current time, retiring the ones with no remaining occurrence. Armings
	// do not survive a restart, so this is the sole recovery path.
	RecoverOnRestart(ctx context.Context) error
	// UpdateSpec merges the given fields into the stored spec and bumps the
	// update timestamp. It does not recompute or re-arm; the merged spec
	// takes effect at the next fire or restart.
	UpdateSpec(ctx context.Context, id string, req dto.UpdateScheduleRequest) error
	// Stop shuts down the alarm backend.
	Stop()
}
