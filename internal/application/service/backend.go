package service

import "time"

// AlarmBackend defines the interface for the external one-shot wake-up
// primitive. At most one wake-up is pending per schedule id; re-arming an id
// supersedes its previous wake-up. Delivery is at-least-once and inexact, and
// armings do not survive a process restart.
type AlarmBackend interface {
	// Arm registers a wake-up for the schedule id at (or after) the given
	// instant and returns an opaque token for disarming.
	Arm(id string, at time.Time) (token string, err error)
	// Disarm cancels the pending wake-up identified by the token. Stale
	// tokens are a no-op.
	Disarm(token string)
	// SetFireHandler sets the callback invoked when a wake-up fires. Set
	// after construction to break the coordinator/backend cycle.
	SetFireHandler(handler func(id string))
	// Stop shuts the backend down and drops all pending wake-ups.
	Stop()
}
