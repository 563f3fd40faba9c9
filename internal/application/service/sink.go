package service

import (
	"context"
	"fmt"

	"notifyd/internal/pkg/logger"
)

// NotificationSink defines the interface for displaying a fired notification.
// The coordinator hands the payload over fire-and-forget: a sink failure is
// reported but never rolls back the schedule transition.
type NotificationSink interface {
	Deliver(ctx context.Context, payload []byte) error
}

type logSink struct {
	log logger.Logger
}

// NewLogSink creates a sink that only logs fired payloads. Used when no real
// delivery channel is configured, and by tests.
func NewLogSink(log logger.Logger) NotificationSink {
	return &logSink{log: log}
}

func (s *logSink) Deliver(ctx context.Context, payload []byte) error {
	s.log.Info(fmt.Sprintf("Notification fired (log sink): %s", string(payload)))
	return nil
}
