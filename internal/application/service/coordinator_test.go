package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"notifyd/internal/application/dto"
	"notifyd/internal/domain/entity"
	"notifyd/internal/domain/repository"
	appErrors "notifyd/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- Test doubles ---

type nopLogger struct{}

func (nopLogger) Error(msg string, err error) {}
func (nopLogger) Warn(msg string)             {}
func (nopLogger) Info(msg string)             {}
func (nopLogger) Debug(msg string)            {}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*entity.Schedule
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*entity.Schedule)}
}

func (f *fakeStore) get(id string) *entity.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.records[id]; ok {
		clone := *s
		return &clone
	}
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*entity.Schedule, error) {
	if s := f.get(id); s != nil {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindAll(ctx context.Context) ([]*entity.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Schedule, 0, len(f.records))
	for _, s := range f.records {
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeStore) FindActive(ctx context.Context) ([]*entity.Schedule, error) {
	all, _ := f.FindAll(ctx)
	active := all[:0]
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (f *fakeStore) Save(ctx context.Context, schedule *entity.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *schedule
	f.records[schedule.ID] = &clone
	return nil
}

func (f *fakeStore) UpdateAtomic(ctx context.Context, id string, mutate func(*entity.Schedule) error) (*entity.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	work := *s
	if err := mutate(&work); err != nil {
		return nil, err
	}
	f.records[id] = &work
	clone := work
	return &clone, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeStore) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string]*entity.Schedule)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, input repository.QueryInput) ([]*entity.Schedule, error) {
	return f.FindAll(ctx)
}

func (f *fakeStore) Statistics(ctx context.Context) (repository.Statistics, error) {
	return repository.Statistics{}, nil
}

type fakeBackend struct {
	mu       sync.Mutex
	seq      int
	armed    map[string]time.Time // by schedule id
	tokens   map[string]string    // token -> schedule id
	disarmed []string
	handler  func(id string)
	failArm  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		armed:  make(map[string]time.Time),
		tokens: make(map[string]string),
	}
}

func (f *fakeBackend) Arm(id string, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failArm != nil {
		return "", f.failArm
	}
	f.seq++
	token := fmt.Sprintf("%s#%d", id, f.seq)
	f.armed[id] = at
	f.tokens[token] = id
	return token, nil
}

func (f *fakeBackend) Disarm(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarmed = append(f.disarmed, token)
	if id, ok := f.tokens[token]; ok {
		delete(f.tokens, token)
		delete(f.armed, id)
	}
}

func (f *fakeBackend) SetFireHandler(handler func(id string)) {
	f.handler = handler
}

func (f *fakeBackend) Stop() {}

// consume drops the pending entry for an id, mimicking a wake-up that has
// fired. The production backend removes its entry before calling the handler.
func (f *fakeBackend) consume(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, id)
}

func (f *fakeBackend) armedAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armed[id]
	return at, ok
}

func (f *fakeBackend) armCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

type fakeSink struct {
	delivered chan []byte
	err       error
}

func newFakeSink() *fakeSink {
	return &fakeSink{delivered: make(chan []byte, 16)}
}

func (f *fakeSink) Deliver(ctx context.Context, payload []byte) error {
	f.delivered <- payload
	return f.err
}

func awaitDelivery(t *testing.T, sink *fakeSink) []byte {
	t.Helper()
	select {
	case p := <-sink.delivered:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink delivery")
		return nil
	}
}

type fixture struct {
	store   *fakeStore
	backend *fakeBackend
	sink    *fakeSink
	svc     *coordinatorService
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:   newFakeStore(),
		backend: newFakeBackend(),
		sink:    newFakeSink(),
	}
	f.svc = NewCoordinatorService(f.store, f.backend, f.sink, nopLogger{}).(*coordinatorService)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.svc.now = func() time.Time { return now }
}

var baseNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func dailyRequest(id int64) dto.RegisterScheduleRequest {
	return dto.RegisterScheduleRequest{
		NotificationID: id,
		ScheduleType:   "daily",
		Anchor:         time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
		Timezone:       "UTC",
		Payload:        json.RawMessage(`{"title":"water the plants"}`),
	}
}

// --- Register ---

func TestCoordinator_RegisterArmsAndPersists(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)

	id, err := f.svc.Register(context.Background(), dailyRequest(1))
	require.NoError(t, err)
	assert.Equal(t, "ntf-1", id)

	record := f.store.get("ntf-1")
	require.NotNil(t, record)
	assert.True(t, record.Active)
	require.NotNil(t, record.NextOccurrence)
	// Daily at 09:00 from 12:00 lands on the next day.
	assert.Equal(t, time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC), record.NextOccurrence.UTC())
	assert.NotEmpty(t, record.BackendToken)

	at, ok := f.backend.armedAt("ntf-1")
	require.True(t, ok)
	assert.True(t, at.Equal(*record.NextOccurrence))
}

func TestCoordinator_RegisterRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*dto.RegisterScheduleRequest){
		"unknown type":        func(r *dto.RegisterScheduleRequest) { r.ScheduleType = "fortnightly" },
		"zero anchor":         func(r *dto.RegisterScheduleRequest) { r.Anchor = time.Time{} },
		"unknown timezone":    func(r *dto.RegisterScheduleRequest) { r.Timezone = "Mars/Olympus" },
		"bad weekday":         func(r *dto.RegisterScheduleRequest) { r.WeekDays = []string{"noday"} },
		"non-positive cap":    func(r *dto.RegisterScheduleRequest) { zero := 0; r.MaxOccurrences = &zero },
		"custom w/o interval": func(r *dto.RegisterScheduleRequest) { r.ScheduleType = "custom" },
		"custom bad unit": func(r *dto.RegisterScheduleRequest) {
			r.ScheduleType = "custom"
			r.Interval = &dto.IntervalSpec{Every: 5, Unit: "fortnight"}
		},
	}

	for name, corrupt := range tests {
		corrupt := corrupt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, baseNow)
			req := dailyRequest(1)
			corrupt(&req)

			_, err := f.svc.Register(context.Background(), req)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
			assert.Nil(t, f.store.get("ntf-1"), "nothing may be persisted")
			assert.Zero(t, f.backend.armCount(), "nothing may be armed")
		})
	}
}

func TestCoordinator_RegisterRejectsPastOneTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)

	req := dailyRequest(1)
	req.ScheduleType = "oneTime"
	req.Anchor = baseNow.Add(-time.Hour)

	_, err := f.svc.Register(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, f.store.get("ntf-1"))
}

func TestCoordinator_RegisterRejectsExpiredEndDate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)

	end := baseNow.Add(-24 * time.Hour)
	req := dailyRequest(1)
	req.EndDate = &end

	_, err := f.svc.Register(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, f.store.get("ntf-1"))
}

func TestCoordinator_RegisterReplacesExisting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)
	oldToken := f.store.get("ntf-1").BackendToken

	replacement := dailyRequest(1)
	replacement.ScheduleType = "weekly"
	replacement.WeekDays = []string{"mon", "fri"}
	_, err = f.svc.Register(ctx, replacement)
	require.NoError(t, err)

	assert.Contains(t, f.backend.disarmed, oldToken, "previous wake-up must be dropped")

	record := f.store.get("ntf-1")
	assert.Equal(t, "weekly", record.ScheduleType.String())
	assert.Equal(t, 0, record.TriggerCount, "re-registration starts a fresh record")
	assert.NotEqual(t, oldToken, record.BackendToken)
}

func TestCoordinator_RegisterBackendFailureKeepsRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	f.backend.failArm = errors.New("alarm service down")

	_, err := f.svc.Register(context.Background(), dailyRequest(1))
	assert.True(t, errors.Is(err, appErrors.ErrBackend))

	record := f.store.get("ntf-1")
	require.NotNil(t, record, "record must survive for restart recovery")
	assert.Empty(t, record.BackendToken)
}

// --- Fire ---

func TestCoordinator_FireAdvancesAndDelivers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)

	fireAt := time.Date(2026, time.March, 11, 9, 0, 0, 30, time.UTC)
	f.setNow(fireAt)
	f.backend.consume("ntf-1")
	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))

	assert.JSONEq(t, `{"title":"water the plants"}`, string(awaitDelivery(t, f.sink)))

	record := f.store.get("ntf-1")
	assert.Equal(t, 1, record.TriggerCount)
	assert.True(t, record.Active)
	require.NotNil(t, record.NextOccurrence)
	assert.Equal(t, time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC), record.NextOccurrence.UTC())

	at, ok := f.backend.armedAt("ntf-1")
	require.True(t, ok, "recurring schedule must be re-armed")
	assert.True(t, at.Equal(*record.NextOccurrence))
}

func TestCoordinator_FireUnknownIDIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)

	assert.NoError(t, f.svc.Fire(context.Background(), "ntf-404"))
}

func TestCoordinator_FireInactiveIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)
	_, err = f.store.UpdateAtomic(ctx, "ntf-1", func(s *entity.Schedule) error {
		s.Retire()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))

	select {
	case <-f.sink.delivered:
		t.Fatal("inactive schedule must not deliver")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, f.store.get("ntf-1").TriggerCount)
}

func TestCoordinator_FireRetiresOneTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	req := dailyRequest(1)
	req.ScheduleType = "oneTime"
	req.Anchor = baseNow.Add(time.Hour)
	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	f.setNow(baseNow.Add(time.Hour))
	f.backend.consume("ntf-1")
	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))
	awaitDelivery(t, f.sink)

	record := f.store.get("ntf-1")
	assert.False(t, record.Active)
	assert.Nil(t, record.NextOccurrence)
	assert.Equal(t, 1, record.TriggerCount)
	_, armed := f.backend.armedAt("ntf-1")
	assert.False(t, armed)
}

// A capped schedule fires exactly max_occurrences times and then retires; a
// restart afterwards must not resurrect it.
func TestCoordinator_FireHonorsMaxOccurrences(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	three := 3
	req := dailyRequest(1)
	req.MaxOccurrences = &three
	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		f.setNow(baseNow.Add(time.Duration(i) * 24 * time.Hour))
		f.backend.consume("ntf-1")
		require.NoError(t, f.svc.Fire(ctx, "ntf-1"))
		awaitDelivery(t, f.sink)
	}

	record := f.store.get("ntf-1")
	assert.Equal(t, 3, record.TriggerCount)
	assert.False(t, record.Active)

	// A fourth wake-up (late duplicate) changes nothing.
	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))
	assert.Equal(t, 3, f.store.get("ntf-1").TriggerCount)

	// Restart recovery leaves the retired schedule alone.
	armsBefore := f.backend.armCount()
	require.NoError(t, f.svc.RecoverOnRestart(ctx))
	assert.Equal(t, armsBefore, f.backend.armCount())
	assert.False(t, f.store.get("ntf-1").Active)
}

func TestCoordinator_FireSkipsMissedOccurrences(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)

	// The wake-up arrives five days late. Exactly one fire happens and the
	// next occurrence is computed from the late instant, not the armed one.
	f.setNow(time.Date(2026, time.March, 16, 10, 0, 0, 0, time.UTC))
	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))
	awaitDelivery(t, f.sink)

	record := f.store.get("ntf-1")
	assert.Equal(t, 1, record.TriggerCount)
	assert.Equal(t, time.Date(2026, time.March, 17, 9, 0, 0, 0, time.UTC), record.NextOccurrence.UTC())
}

func TestCoordinator_FireSinkFailureDoesNotBlockProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	f.sink.err = errors.New("display unavailable")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)

	f.setNow(baseNow.Add(24 * time.Hour))
	require.NoError(t, f.svc.Fire(ctx, "ntf-1"))
	awaitDelivery(t, f.sink)

	record := f.store.get("ntf-1")
	assert.Equal(t, 1, record.TriggerCount)
	assert.True(t, record.Active)
	require.NotNil(t, record.NextOccurrence)
}

// --- Cancel ---

func TestCoordinator_CancelDisarmsAndDeletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)
	token := f.store.get("ntf-1").BackendToken

	require.NoError(t, f.svc.Cancel(ctx, "ntf-1"))
	assert.Nil(t, f.store.get("ntf-1"))
	assert.Contains(t, f.backend.disarmed, token)

	// Idempotent on already-cancelled and never-registered ids.
	assert.NoError(t, f.svc.Cancel(ctx, "ntf-1"))
	assert.NoError(t, f.svc.Cancel(ctx, "ntf-404"))
}

func TestCoordinator_CancelAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := f.svc.Register(ctx, dailyRequest(i))
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.CancelAll(ctx))
	all, err := f.store.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Len(t, f.backend.disarmed, 3)
}

// --- RecoverOnRestart ---

func TestCoordinator_RecoverOnRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	// Still valid: gets re-armed with a fresh token.
	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)

	// One-time whose instant passed while the process was down: retired.
	end := baseNow.Add(-time.Hour)
	stale := &entity.Schedule{
		ID:           "ntf-2",
		ScheduleType: "oneTime",
		AnchorTime:   baseNow.Add(-2 * time.Hour),
		Timezone:     "UTC",
		AdjustForDST: true,
		Active:       true,
		BackendToken: "ntf-2#dead",
	}
	require.NoError(t, f.store.Save(ctx, stale))

	// Expired end date: retired too.
	expired := &entity.Schedule{
		ID:           "ntf-3",
		ScheduleType: "daily",
		AnchorTime:   baseNow.Add(-48 * time.Hour),
		Timezone:     "UTC",
		EndDate:      &end,
		AdjustForDST: true,
		Active:       true,
	}
	require.NoError(t, f.store.Save(ctx, expired))

	// Simulate the restart: all armings are gone.
	f.backend.mu.Lock()
	f.backend.armed = make(map[string]time.Time)
	f.backend.tokens = make(map[string]string)
	f.backend.mu.Unlock()
	oldToken := f.store.get("ntf-1").BackendToken

	require.NoError(t, f.svc.RecoverOnRestart(ctx))

	rearmed := f.store.get("ntf-1")
	assert.True(t, rearmed.Active)
	assert.NotEqual(t, oldToken, rearmed.BackendToken, "dead token must be replaced")
	_, armed := f.backend.armedAt("ntf-1")
	assert.True(t, armed)

	for _, id := range []string{"ntf-2", "ntf-3"} {
		record := f.store.get(id)
		assert.False(t, record.Active, "%s must be retired", id)
		assert.Empty(t, record.BackendToken)
		_, armed := f.backend.armedAt(id)
		assert.False(t, armed)
	}
}

// --- UpdateSpec ---

func TestCoordinator_UpdateSpecMergesWithoutRearming(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)
	before := f.store.get("ntf-1")
	armsBefore := f.backend.armCount()

	later := baseNow.Add(time.Hour)
	f.setNow(later)

	tz := "Asia/Tokyo"
	five := 5
	payload := json.RawMessage(`{"title":"feed the cat"}`)
	require.NoError(t, f.svc.UpdateSpec(ctx, "ntf-1", dto.UpdateScheduleRequest{
		Timezone:       &tz,
		MaxOccurrences: &five,
		Payload:        &payload,
	}))

	after := f.store.get("ntf-1")
	assert.Equal(t, "Asia/Tokyo", after.Timezone)
	assert.Equal(t, 5, *after.MaxOccurrences)
	assert.JSONEq(t, string(payload), string(after.Payload))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	// Untouched fields survive the merge, and nothing is re-armed.
	assert.Equal(t, before.ScheduleType, after.ScheduleType)
	assert.True(t, after.AnchorTime.Equal(before.AnchorTime))
	assert.Equal(t, armsBefore, f.backend.armCount())
	assert.Equal(t, before.BackendToken, after.BackendToken)
}

func TestCoordinator_UpdateSpecValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)

	badType := "fortnightly"
	assert.True(t, errors.Is(f.svc.UpdateSpec(ctx, "ntf-1", dto.UpdateScheduleRequest{ScheduleType: &badType}), appErrors.ErrValidation))

	badTZ := "Mars/Olympus"
	assert.True(t, errors.Is(f.svc.UpdateSpec(ctx, "ntf-1", dto.UpdateScheduleRequest{Timezone: &badTZ}), appErrors.ErrValidation))

	assert.True(t, errors.Is(f.svc.UpdateSpec(ctx, "ntf-1", dto.UpdateScheduleRequest{Interval: &dto.IntervalSpec{Every: 0, Unit: "minute"}}), appErrors.ErrValidation))

	assert.True(t, errors.Is(f.svc.UpdateSpec(ctx, "ntf-404", dto.UpdateScheduleRequest{}), appErrors.ErrScheduleNotFound))
}

// --- Backend wiring ---

func TestCoordinator_BackendHandlerIsWired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, baseNow)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, dailyRequest(1))
	require.NoError(t, err)
	require.NotNil(t, f.backend.handler)

	f.setNow(baseNow.Add(24 * time.Hour))
	f.backend.handler("ntf-1")
	awaitDelivery(t, f.sink)

	assert.Equal(t, 1, f.store.get("ntf-1").TriggerCount)
}
