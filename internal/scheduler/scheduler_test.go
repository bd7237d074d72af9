package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// fakeDispatcher запоминает запущенные batches.
type fakeDispatcher struct {
	mu      sync.Mutex
	batches []*domain.Batch
	flows   [][]domain.Flow
	err     error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, b *domain.Batch, flows []domain.Flow, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.batches = append(d.batches, b)
	d.flows = append(d.flows, flows)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

var testNow = time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)

type fixture struct {
	store      *repo.Store
	dispatcher *fakeDispatcher
	scheduler  *Scheduler
	schedule   *domain.Schedule
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := repo.Open(ctx, repo.Options{Driver: "memory"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	for _, id := range []string{"f1", "f2"} {
		flow := &domain.Flow{ID: id, Name: id, Nodes: []domain.Node{{ID: "in", Type: domain.NodeTypeUserInput, Config: &domain.EntryConfig{}}}}
		if err := store.Flows.Create(ctx, flow); err != nil {
			t.Fatalf("create flow: %v", err)
		}
	}
	set := &domain.InputSet{ID: "set-1", Name: "topics", Inputs: []string{"tides", "volcanoes"}, CreatedAt: testNow}
	if err := store.InputSets.Create(ctx, set); err != nil {
		t.Fatalf("create input set: %v", err)
	}

	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		ID:         "s1",
		Name:       "nightly",
		FlowIDs:    []string{"f1", "f2"},
		InputSetID: "set-1",
		CronExpr:   "0 9 * * *",
		Timezone:   "UTC",
		Enabled:    true,
		NextDueAt:  &due,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if err := store.Schedules.Create(ctx, sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	d := &fakeDispatcher{}
	s := New(Config{
		Schedules:  store.Schedules,
		Flows:      store.Flows,
		InputSets:  store.InputSets,
		Batches:    store.Batches,
		Dispatcher: d,
		Now:        func() time.Time { return testNow },
	})
	return &fixture{store: store, dispatcher: d, scheduler: s, schedule: sched}
}

func (f *fixture) reload(t *testing.T) *domain.Schedule {
	t.Helper()
	sched, err := f.store.Schedules.GetByID(context.Background(), f.schedule.ID)
	if err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	return sched
}

// --- Tick Tests ---

func TestTick_DispatchesDueSchedule(t *testing.T) {
	f := newFixture(t)

	res, err := f.scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Due != 1 || res.Dispatched != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	b := f.dispatcher.batches[0]
	if b.ID != BatchID("s1", *f.schedule.NextDueAt) {
		t.Errorf("batch id is not derived from the occurrence: %s", b.ID)
	}
	if b.Progress.Total != 4 || b.InputSetID != "set-1" || b.Status != domain.BatchStatusPending {
		t.Errorf("unexpected batch: %+v", b)
	}
	if len(f.dispatcher.flows[0]) != 2 || f.dispatcher.flows[0][0].ID != "f1" {
		t.Errorf("flows not passed in schedule order: %v", f.dispatcher.flows[0])
	}

	stored, err := f.store.Batches.GetByID(context.Background(), b.ID)
	if err != nil || stored.Progress.Total != 4 {
		t.Errorf("batch not persisted: %v / %v", stored, err)
	}

	sched := f.reload(t)
	want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if sched.NextDueAt == nil || !sched.NextDueAt.Equal(want) {
		t.Errorf("expected next due %v, got %v", want, sched.NextDueAt)
	}
	if sched.LastBatchID != b.ID {
		t.Errorf("expected last batch %s, got %s", b.ID, sched.LastBatchID)
	}

	// Второй тик в то же время: расписание уже не просрочено.
	res, err = f.scheduler.Tick(context.Background())
	if err != nil || res.Due != 0 {
		t.Errorf("expected nothing due, got %+v / %v", res, err)
	}
}

func TestTick_SameOccurrenceNotDispatchedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Batch этого срабатывания уже создан (сбой до обновления расписания).
	existing := &domain.Batch{
		ID:        BatchID("s1", *f.schedule.NextDueAt),
		FlowIDs:   []string{"f1"},
		Inputs:    []string{"x"},
		RunIDs:    []string{},
		Status:    domain.BatchStatusRunning,
		CreatedAt: testNow,
	}
	if err := f.store.Batches.Create(ctx, existing); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	res, err := f.scheduler.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != 1 || f.dispatcher.count() != 0 {
		t.Errorf("expected skip without dispatch, got %+v", res)
	}
	if sched := f.reload(t); !sched.NextDueAt.After(testNow) {
		t.Errorf("schedule not advanced: %v", sched.NextDueAt)
	}
}

func TestTick_MissingInputSetSkips(t *testing.T) {
	f := newFixture(t)
	if err := f.store.InputSets.Delete(context.Background(), "set-1"); err != nil {
		t.Fatalf("delete set: %v", err)
	}

	res, err := f.scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Skipped != 1 || f.dispatcher.count() != 0 {
		t.Errorf("expected skip, got %+v", res)
	}
	if sched := f.reload(t); !sched.NextDueAt.After(testNow) {
		t.Errorf("schedule not advanced: %v", sched.NextDueAt)
	}
}

func TestTick_InvalidCronDisables(t *testing.T) {
	f := newFixture(t)
	f.schedule.CronExpr = "not a cron"
	if err := f.store.Schedules.Update(context.Background(), f.schedule); err != nil {
		t.Fatalf("update schedule: %v", err)
	}

	if _, err := f.scheduler.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sched := f.reload(t); sched.Enabled {
		t.Error("expected schedule to be disabled")
	}
}

func TestTick_DispatchFailureLeavesPendingBatch(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("broker down")

	res, err := f.scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected failure, got %+v", res)
	}

	b, err := f.store.Batches.GetByID(context.Background(), BatchID("s1", *f.schedule.NextDueAt))
	if err != nil || b.Status != domain.BatchStatusPending {
		t.Errorf("expected pending batch, got %v / %v", b, err)
	}
}

// --- Run Tests ---

type fakeLeader struct {
	mu       sync.Mutex
	leader   bool
	released bool
}

func (l *fakeLeader) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader, nil
}

func (l *fakeLeader) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func TestRun_OnlyLeaderTicks(t *testing.T) {
	for _, leading := range []bool{false, true} {
		f := newFixture(t)
		leader := &fakeLeader{leader: leading}
		f.scheduler.cfg.Leader = leader

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		err := f.scheduler.Run(ctx, 10*time.Millisecond)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}

		want := 0
		if leading {
			want = 1
		}
		if got := f.dispatcher.count(); got != want {
			t.Errorf("leader=%v: expected %d dispatches, got %d", leading, want, got)
		}
		if leader.released != leading {
			t.Errorf("leader=%v: released=%v", leading, leader.released)
		}
	}
}

// --- Cron Tests ---

func TestNextDue_Timezone(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"}

	next, err := NextDue(sched, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Errorf("expected UTC result, got %v", next.Location())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sched   domain.Schedule
		wantErr bool
	}{
		{"standard", domain.Schedule{CronExpr: "*/15 * * * *"}, false},
		{"descriptor", domain.Schedule{CronExpr: "@daily", Timezone: "America/New_York"}, false},
		{"bad cron", domain.Schedule{CronExpr: "61 * * * *"}, true},
		{"seconds field not allowed", domain.Schedule{CronExpr: "0 0 9 * * *"}, true},
		{"bad timezone", domain.Schedule{CronExpr: "@hourly", Timezone: "Mars/Olympus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.sched)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
