package alarm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"notifyd/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Backend arms at most one pending one-shot wake-up per schedule id on a cron
// runner. Armings are process-local: nothing here survives a restart, all
// durability lives in the schedule store.
type Backend struct {
	cron *cron.Cron
	log  logger.Logger
	seq  uint64

	mu      sync.Mutex
	entries map[string]entryRef // schedule id -> pending wake-up
	fire    func(id string)
}

type entryRef struct {
	entryID cron.EntryID
	token   string
}

// oneShotSchedule activates exactly once, at its target instant. A cron
// expression carries no year and would re-match annually, so the target is
// scheduled directly instead of being encoded as an expression.
type oneShotSchedule struct {
	at time.Time
}

// Next returns the target while it is still ahead of t, and the zero time
// afterwards, which tells the runner the entry has no further activations.
func (s oneShotSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// NewBackend creates a new alarm backend and starts its cron runner.
func NewBackend(log logger.Logger) *Backend {
	c := cron.New()
	c.Start()
	log.Info("Alarm backend cron runner started.")
	return &Backend{
		cron:    c,
		log:     log,
		entries: make(map[string]entryRef),
	}
}

// SetFireHandler sets the callback invoked when an armed wake-up fires.
// It is set after construction to break the coordinator/backend cycle.
func (b *Backend) SetFireHandler(handler func(id string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fire = handler
}

// Arm registers a one-shot wake-up for the schedule id at the given instant
// and returns an opaque token for disarming. Re-arming an id supersedes its
// previous wake-up. The error return is part of the AlarmBackend contract;
// this backend cannot fail to arm.
func (b *Backend) Arm(id string, at time.Time) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.entries[id]; ok {
		b.cron.Remove(old.entryID)
		delete(b.entries, id)
	}

	entryID := b.cron.Schedule(oneShotSchedule{at: at}, cron.FuncJob(func() { b.fired(id) }))

	token := fmt.Sprintf("%s#%d", id, atomic.AddUint64(&b.seq, 1))
	b.entries[id] = entryRef{entryID: entryID, token: token}
	b.log.Info(fmt.Sprintf("Armed wake-up for schedule %s at %v (entry %d)", id, at, entryID))
	return token, nil
}

// fired drops the one-shot entry before handing the id to the fire handler.
// Errors never cross this boundary; the handler does its own logging.
func (b *Backend) fired(id string) {
	b.mu.Lock()
	if ref, ok := b.entries[id]; ok {
		b.cron.Remove(ref.entryID)
		delete(b.entries, id)
	}
	handler := b.fire
	b.mu.Unlock()

	if handler == nil {
		b.log.Warn(fmt.Sprintf("Wake-up fired for schedule %s but no fire handler is set", id))
		return
	}
	handler(id)
}

// Disarm cancels the pending wake-up identified by the token. A stale token
// (superseded by a later Arm, or already fired) is a no-op.
func (b *Backend) Disarm(token string) {
	id := token
	if i := strings.IndexByte(token, '#'); i >= 0 {
		id = token[:i]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	ref, ok := b.entries[id]
	if !ok || ref.token != token {
		return
	}
	b.cron.Remove(ref.entryID)
	delete(b.entries, id)
	b.log.Info(fmt.Sprintf("Disarmed wake-up for schedule %s (entry %d)", id, ref.entryID))
}

// pending reports whether a wake-up is currently armed for the schedule id.
func (b *Backend) pending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok
}

// Stop stops the cron runner and waits for running jobs to complete.
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cron != nil {
		ctx := b.cron.Stop()
		<-ctx.Done()
		b.entries = make(map[string]entryRef)
		b.log.Info("Alarm backend cron runner stopped.")
	}
}
