package errors

import "errors"

// Custom application errors
var (
	ErrValidation       = errors.New("schedule spec is invalid or has no future occurrence") // Register rejected, nothing persisted
	ErrScheduleNotFound = errors.New("schedule not found")                                   // No record stored under the given id
	ErrPersistence      = errors.New("schedule store operation failed")                      // Store read/write failure
	ErrBackend          = errors.New("alarm backend operation failed")                       // Arm/disarm failure; the record stays persisted so recovery can retry
	ErrSink             = errors.New("notification delivery failed")                         // Display/audio handoff failure; never blocks scheduling progress
	ErrInternalServer   = errors.New("internal server error")                                // Generic internal error
)
