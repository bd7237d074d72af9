package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	t.Cleanup(codec.Close)
	return codec
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func sampleRun() *domain.Run {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)
	return &domain.Run{
		ID:      "run-1",
		FlowID:  "flow-1",
		BatchID: "batch-1",
		Status:  domain.RunStatusCompleted,
		Input:   map[string]any{"topic": "tides"},
		NodeResults: []domain.NodeResult{
			{NodeID: "in", NodeType: domain.NodeTypeUserInput, Input: "tides", Output: "tides"},
			{
				NodeID:     "a",
				NodeType:   domain.NodeTypeStructuredOutput,
				Input:      "Build: tides",
				Output:     map[string]any{"score": 3.0},
				TokensUsed: 42,
				CostUSD:    0.01,
				LatencyMs:  120,
				ToolCalls: []domain.ToolCallTrace{
					{ID: "c1", ToolName: "view", Input: json.RawMessage(`{"path":"a.txt"}`), TextOutput: "1: x", Iteration: 1},
				},
				VFSSnapshot: map[string]string{"a.txt": "x"},
			},
		},
		FinalOutput: "done",
		FinalVFS:    map[string]string{"a.txt": "x"},
		Tokens:      domain.TokenUsage{Input: 30, Output: 12, Total: 42},
		CostUSD:     0.01,
		StartedAt:   started,
		CompletedAt: &completed,
	}
}

// --- Codec Tests ---

func TestCodec_RunPayloadKeepsJSONTypes(t *testing.T) {
	codec := newCodec(t)
	run := sampleRun()

	data, err := codec.EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got domain.Run
	if err := codec.DecodeRun(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.NodeResults) != 2 {
		t.Fatalf("expected 2 node results, got %d", len(got.NodeResults))
	}
	node := got.NodeResults[1]
	// Числа после чтения — float64, как после JSON API.
	if out, ok := node.Output.(map[string]any); !ok || out["score"] != 3.0 {
		t.Errorf("unexpected output: %#v", node.Output)
	}
	if len(node.ToolCalls) != 1 || string(node.ToolCalls[0].Input) != `{"path":"a.txt"}` {
		t.Errorf("tool calls not preserved: %+v", node.ToolCalls)
	}
	if got.FinalVFS["a.txt"] != "x" || node.VFSSnapshot["a.txt"] != "x" {
		t.Error("VFS not preserved")
	}
}

func TestCodec_DecodeEmptyPayload(t *testing.T) {
	codec := newCodec(t)

	var run domain.Run
	if err := codec.DecodeRun(nil, &run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.NodeResults == nil {
		t.Error("node results should be empty, not nil")
	}
}

// --- FlowRepo Tests ---

func TestFlowRepo_CreateConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewFlowRepo(mock)
	flow := domain.ExampleFlow()

	mock.ExpectExec("INSERT INTO flows").
		WithArgs(flow.ID, flow.Name, pgxmock.AnyArg(), flow.CreatedAt, flow.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := repo.Create(context.Background(), &flow); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFlowRepo_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewFlowRepo(mock)

	example := domain.ExampleFlow()
	doc, _ := json.Marshal(example)

	mock.ExpectQuery("SELECT doc FROM flows").
		WithArgs(example.ID).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	flow, err := repo.GetByID(context.Background(), example.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flow.Nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(flow.Nodes))
	}
	// Конфигурация узла восстанавливается в свой тип.
	if _, ok := flow.Nodes[2].Config.(*domain.StructuredOutputConfig); !ok {
		t.Errorf("expected StructuredOutputConfig, got %T", flow.Nodes[2].Config)
	}
}

func TestFlowRepo_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewFlowRepo(mock)

	mock.ExpectQuery("SELECT doc FROM flows").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFlowRepo_DeleteMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewFlowRepo(mock)

	mock.ExpectExec("DELETE FROM flows").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- RunRepo Tests ---

func TestRunRepo_SaveAndGet(t *testing.T) {
	mock := newMock(t)
	codec := newCodec(t)
	repo := NewRunRepo(mock, codec)
	run := sampleRun()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			run.ID, run.FlowID, run.BatchID, "completed",
			[]byte(`{"topic":"tides"}`),
			run.FinalOutput, 30, 12, 0.01,
			pgxmock.AnyArg(),
			run.StartedAt, run.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Save(context.Background(), run); err != nil {
		t.Fatalf("save: %v", err)
	}

	payload, err := codec.EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cols := []string{"id", "flow_id", "batch_id", "status", "input", "final_output",
		"tokens_input", "tokens_output", "cost_usd", "payload", "started_at", "completed_at"}
	mock.ExpectQuery("SELECT (.+) FROM runs WHERE id").
		WithArgs(run.ID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			run.ID, run.FlowID, run.BatchID, "completed", []byte(`{"topic":"tides"}`), run.FinalOutput,
			30, 12, 0.01, payload, run.StartedAt, run.CompletedAt,
		))

	got, err := repo.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RunStatusCompleted || got.Tokens.Total != 42 {
		t.Errorf("unexpected run: %+v", got)
	}
	if len(got.NodeResults) != 2 || got.NodeResults[1].TokensUsed != 42 {
		t.Errorf("node results not decoded: %+v", got.NodeResults)
	}
	if m, ok := got.Input.(map[string]any); !ok || m["topic"] != "tides" {
		t.Errorf("input not decoded: %#v", got.Input)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunRepo_ListDefaultLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewRunRepo(mock, newCodec(t))

	cols := []string{"id", "flow_id", "batch_id", "status", "input", "final_output",
		"tokens_input", "tokens_output", "cost_usd", "payload", "started_at", "completed_at"}
	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs("flow-1", "", defaultRunLimit).
		WillReturnRows(pgxmock.NewRows(cols))

	runs, err := repo.List(context.Background(), RunFilter{FlowID: "flow-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

// --- BatchRepo Tests ---

func TestBatchRepo_UpdateMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewBatchRepo(mock)

	batch := &domain.Batch{ID: "b1", Status: domain.BatchStatusRunning, Progress: domain.Progress{Completed: 1, Total: 4}}

	mock.ExpectExec("UPDATE batches").
		WithArgs("b1", "running", []byte(`[]`), 1, 4, batch.CompletedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Update(context.Background(), batch); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchRepo_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewBatchRepo(mock)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "name", "status", "flow_ids", "input_set_id", "inputs", "run_ids",
		"completed", "total", "created_at", "completed_at"}
	mock.ExpectQuery("SELECT (.+) FROM batches WHERE id").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"b1", "nightly", "aborted", []byte(`["f1","f2"]`), "", []byte(`["x"]`), []byte(`["r1"]`),
			1, 2, created, nil,
		))

	batch, err := repo.GetByID(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != domain.BatchStatusAborted {
		t.Errorf("expected aborted, got %s", batch.Status)
	}
	if len(batch.FlowIDs) != 2 || batch.RunIDs[0] != "r1" || batch.Progress.Total != 2 {
		t.Errorf("unexpected batch: %+v", batch)
	}
	if batch.CompletedAt != nil {
		t.Error("NULL completed_at should stay nil")
	}
}

// --- ScheduleRepo Tests ---

func TestScheduleRepo_ListDue(t *testing.T) {
	mock := newMock(t)
	repo := NewScheduleRepo(mock)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)

	cols := []string{"id", "name", "flow_ids", "input_set_id", "cron_expr", "timezone", "enabled",
		"next_due_at", "last_run_at", "last_batch_id", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT (.+) FROM schedules").
		WithArgs(now, 10).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"s1", "nightly", []byte(`["f1"]`), "set-1", "0 9 * * *", "UTC", true,
			&due, nil, "", now, now,
		))

	schedules, err := repo.ListDue(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(schedules))
	}
	s := schedules[0]
	if s.FlowIDs[0] != "f1" || s.NextDueAt == nil || !s.NextDueAt.Equal(due) || s.LastRunAt != nil {
		t.Errorf("unexpected schedule: %+v", s)
	}
	if !s.IsDue(now) {
		t.Error("schedule should be due")
	}
}
