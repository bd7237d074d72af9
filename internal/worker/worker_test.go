package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// gatedExecutor завершает run с выходом input; если gate задан, ждёт его.
type gatedExecutor struct {
	gate    chan struct{}
	started chan string
}

func (e *gatedExecutor) ExecuteRun(_ context.Context, run *domain.Run, _ *domain.Flow, _ orchestrator.Sink) error {
	if e.started != nil {
		e.started <- run.Input.(string)
	}
	if e.gate != nil {
		<-e.gate
	}
	run.MarkCompleted(run.Input.(string))
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []mq.RunCompletedPayload
}

func (p *fakePublisher) PublishRunCompleted(_ context.Context, payload mq.RunCompletedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

type fixture struct {
	store     *repo.Store
	publisher *fakePublisher
	worker    *Worker
}

func newFixture(t *testing.T, exec batch.FlowExecutor) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := repo.Open(ctx, repo.Options{Driver: "memory"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	flow := &domain.Flow{
		ID:    "f1",
		Name:  "f1",
		Nodes: []domain.Node{{ID: "in", Type: domain.NodeTypeUserInput, Config: &domain.EntryConfig{}}},
	}
	if err := store.Flows.Create(ctx, flow); err != nil {
		t.Fatalf("create flow: %v", err)
	}

	publisher := &fakePublisher{}
	manager := batch.NewManager(batch.Config{
		Executor: exec,
		Runs:     store.Runs,
		Batches:  store.Batches,
	})
	w := New(Config{Store: store, Manager: manager, Publisher: publisher, WorkerID: "w1"})
	return &fixture{store: store, publisher: publisher, worker: w}
}

func (f *fixture) createBatch(t *testing.T, b *domain.Batch) {
	t.Helper()
	if err := f.store.Batches.Create(context.Background(), b); err != nil {
		t.Fatalf("create batch: %v", err)
	}
}

func requested(batchID string) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(mq.MessageTypeBatchRequested, mq.BatchRequestedPayload{BatchID: batchID})}
}

func abort(batchID string) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(mq.MessageTypeBatchAbort, mq.BatchAbortPayload{BatchID: batchID})}
}

// --- batch.requested Tests ---

func TestHandleBatchRequested_RunsPendingBatch(t *testing.T) {
	f := newFixture(t, &gatedExecutor{})
	b := batch.NewBatch("b", []string{"f1"}, []string{"a", "b"})
	f.createBatch(t, b)

	if err := f.worker.handleBatchRequested(context.Background(), requested(b.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := f.store.Batches.GetByID(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if stored.Status != domain.BatchStatusCompleted || stored.Progress.Completed != 2 {
		t.Errorf("unexpected batch: status=%s progress=%+v", stored.Status, stored.Progress)
	}

	if len(f.publisher.payloads) != 2 {
		t.Fatalf("expected 2 run.completed, got %d", len(f.publisher.payloads))
	}
	last := f.publisher.payloads[1]
	if last.Completed != 2 || last.Total != 2 || last.BatchID != b.ID {
		t.Errorf("unexpected payload: %+v", last)
	}

	runs, err := f.store.Runs.List(context.Background(), repo.RunFilter{BatchID: b.ID})
	if err != nil || len(runs) != 2 {
		t.Errorf("expected 2 saved runs, got %d (%v)", len(runs), err)
	}
}

func TestHandleBatchRequested_FromInputSet(t *testing.T) {
	f := newFixture(t, &gatedExecutor{})
	set := &domain.InputSet{ID: "set", Name: "s", Inputs: []string{"x", "y", "z"}, CreatedAt: time.Now()}
	if err := f.store.InputSets.Create(context.Background(), set); err != nil {
		t.Fatalf("create set: %v", err)
	}
	b := batch.NewBatch("b", []string{"f1"}, nil)
	b.InputSetID = set.ID
	f.createBatch(t, b)

	if err := f.worker.handleBatchRequested(context.Background(), requested(b.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.publisher.payloads) != 3 {
		t.Errorf("expected 3 runs, got %d", len(f.publisher.payloads))
	}
}

func TestHandleBatchRequested_Redelivery(t *testing.T) {
	f := newFixture(t, &gatedExecutor{})
	b := batch.NewBatch("b", []string{"f1"}, []string{"a"})
	b.Finish(domain.BatchStatusCompleted)
	f.createBatch(t, b)

	// Завершённый batch подтверждается без повторного выполнения.
	if err := f.worker.handleBatchRequested(context.Background(), requested(b.ID)); err != nil {
		t.Errorf("expected ack, got %v", err)
	}
	if len(f.publisher.payloads) != 0 {
		t.Errorf("batch must not run again")
	}

	if err := f.worker.handleBatchRequested(context.Background(), requested("ghost")); err != nil {
		t.Errorf("unknown batch should be acked, got %v", err)
	}
}

func TestHandleBatchRequested_MissingFlowFailsBatch(t *testing.T) {
	f := newFixture(t, &gatedExecutor{})
	b := batch.NewBatch("b", []string{"f1", "deleted"}, []string{"a"})
	f.createBatch(t, b)

	if err := f.worker.handleBatchRequested(context.Background(), requested(b.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := f.store.Batches.GetByID(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if stored.Status != domain.BatchStatusFailed {
		t.Errorf("expected failed batch, got %s", stored.Status)
	}
	if len(stored.Inputs) != 1 {
		t.Errorf("inputs must be preserved, got %v", stored.Inputs)
	}
}

func TestHandleBatchRequested_MalformedPayload(t *testing.T) {
	f := newFixture(t, &gatedExecutor{})
	d := &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeBatchRequested, Payload: "not an object"}}

	if err := f.worker.handleBatchRequested(context.Background(), d); !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected ErrPermanent, got %v", err)
	}
}

// --- batch.abort Tests ---

func TestHandleBatchAbort(t *testing.T) {
	exec := &gatedExecutor{gate: make(chan struct{}), started: make(chan string, 8)}
	f := newFixture(t, exec)
	b := batch.NewBatch("b", []string{"f1"}, []string{"a", "b", "c", "d", "e"})
	f.createBatch(t, b)

	// Batch не выполняется на этом воркере — сообщение подтверждается.
	if err := f.worker.handleBatchAbort(context.Background(), abort(b.ID)); err != nil {
		t.Fatalf("abort of idle batch should be acked, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.worker.handleBatchRequested(context.Background(), requested(b.ID))
	}()

	// Ждём, пока пул заполнится (3 одновременных run).
	for range batch.DefaultConcurrency {
		select {
		case <-exec.started:
		case <-time.After(2 * time.Second):
			t.Fatal("runs did not start")
		}
	}

	if err := f.worker.handleBatchAbort(context.Background(), abort(b.ID)); err != nil {
		t.Fatalf("abort: %v", err)
	}
	close(exec.gate)

	if err := <-done; err != nil {
		t.Fatalf("batch: %v", err)
	}

	stored, err := f.store.Batches.GetByID(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if stored.Status != domain.BatchStatusAborted {
		t.Errorf("expected aborted, got %s", stored.Status)
	}
	if stored.Progress.Completed != batch.DefaultConcurrency {
		t.Errorf("expected %d completed runs, got %d", batch.DefaultConcurrency, stored.Progress.Completed)
	}
}
