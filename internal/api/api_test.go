package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/live"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/llm/llmtest"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

const echoFlowJSON = `{
	"id": "echo",
	"name": "Echo",
	"nodes": [
		{"id": "in", "type": "user-input"},
		{"id": "agent", "type": "agent", "config": {"message_template": "{{input}}"}},
		{"id": "out", "type": "output"}
	],
	"edges": [
		{"id": "e1", "source": "in", "target": "agent"},
		{"id": "e2", "source": "agent", "target": "out"}
	]
}`

const echoFlowYAML = `
id: echo
name: Echo v2
nodes:
  - id: in
    type: user-input
  - id: out
    type: output
edges:
  - id: e1
    source: in
    target: out
`

// fakeDispatcher запоминает batches вместо запуска.
type fakeDispatcher struct {
	mu      sync.Mutex
	batches []*domain.Batch
	err     error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, b *domain.Batch, _ []domain.Flow, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.batches = append(d.batches, b)
	return nil
}

type fakeAborter struct {
	err     error
	aborted []string
}

func (a *fakeAborter) Abort(_ context.Context, batchID string) error {
	if a.err != nil {
		return a.err
	}
	a.aborted = append(a.aborted, batchID)
	return nil
}

type testServer struct {
	mux        *http.ServeMux
	store      *repo.Store
	dispatcher *fakeDispatcher
	aborter    *fakeAborter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := repo.Open(context.Background(), repo.Options{Driver: "memory"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	provider := llmtest.New("fake")
	provider.Responder = func(req llm.TurnRequest) llmtest.Turn {
		return llmtest.Text("echo: "+req.Messages[len(req.Messages)-1].Content, 3, 2)
	}
	client := llm.NewClient(llm.ClientConfig{
		Registry:    llm.NewRegistry("fake", provider),
		Credentials: llm.StaticCredentials{"fake": "k"},
	})

	ts := &testServer{
		mux:        http.NewServeMux(),
		store:      store,
		dispatcher: &fakeDispatcher{},
		aborter:    &fakeAborter{},
	}
	h := NewHandler(Config{
		Store:      store,
		Executor:   orchestrator.New(orchestrator.Config{Models: client}),
		Dispatcher: ts.dispatcher,
		Aborter:    ts.aborter,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createEchoFlow(t *testing.T) {
	t.Helper()
	if rec := ts.do(t, "POST", "/api/v1/flows", echoFlowJSON); rec.Code != http.StatusCreated {
		t.Fatalf("create flow: %d %s", rec.Code, rec.Body)
	}
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

// sseEvents разбирает тело SSE на типы событий.
func sseEvents(body string) []string {
	var types []string
	for _, line := range strings.Split(body, "\n") {
		if typ, ok := strings.CutPrefix(line, "event: "); ok {
			types = append(types, typ)
		}
	}
	return types
}

// --- Flow Tests ---

func TestFlows_CRUD(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	rec := ts.do(t, "GET", "/api/v1/flows", "")
	flows := decodeData[[]FlowSummary](t, rec)
	if len(flows) != 1 || flows[0].ID != "echo" || flows[0].Nodes != 3 {
		t.Fatalf("unexpected list: %+v", flows)
	}

	rec = ts.do(t, "GET", "/api/v1/flows/echo?format=yaml", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/yaml" {
		t.Fatalf("yaml export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "name: Echo") {
		t.Errorf("unexpected yaml: %s", rec.Body)
	}

	rec = ts.do(t, "PUT", "/api/v1/flows/echo", echoFlowYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	if flow := decodeData[domain.Flow](t, rec); flow.Name != "Echo v2" || len(flow.Nodes) != 2 {
		t.Errorf("unexpected updated flow: %+v", flow)
	}

	if rec = ts.do(t, "DELETE", "/api/v1/flows/echo", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = ts.do(t, "GET", "/api/v1/flows/echo", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateFlow_Invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"nodes": [`, http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
		{"cycle", `{"name":"c","nodes":[{"id":"a","type":"user-input"},{"id":"b","type":"agent"},{"id":"c","type":"agent"}],
			"edges":[{"id":"1","source":"a","target":"b"},{"id":"2","source":"b","target":"c"},{"id":"3","source":"c","target":"b"}]}`, http.StatusBadRequest},
		{"unknown node type", `{"name":"u","nodes":[{"id":"a","type":"teleport"}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, "POST", "/api/v1/flows", tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestImportFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	// Тот же ID без overwrite — конфликт.
	rec := ts.do(t, "POST", "/api/v1/flows/import", echoFlowYAML)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = ts.do(t, "POST", "/api/v1/flows/import?overwrite=true", echoFlowYAML)
	if rec.Code != http.StatusCreated {
		t.Fatalf("overwrite: %d %s", rec.Code, rec.Body)
	}

	flow, err := ts.store.Flows.GetByID(context.Background(), "echo")
	if err != nil {
		t.Fatalf("get flow: %v", err)
	}
	if flow.Name != "Echo v2" {
		t.Errorf("flow not overwritten: %s", flow.Name)
	}
}

// --- Run Tests ---

func TestCreateRun_Sync(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	rec := ts.do(t, "POST", "/api/v1/flows/echo/runs", `{"input":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: %d %s", rec.Code, rec.Body)
	}
	run := decodeData[domain.Run](t, rec)
	if run.Status != domain.RunStatusCompleted || run.FinalOutput != "echo: hello" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.NodeResults) != 3 || run.Tokens.Total != 5 {
		t.Errorf("unexpected results: %d nodes, %d tokens", len(run.NodeResults), run.Tokens.Total)
	}

	rec = ts.do(t, "GET", "/api/v1/runs/"+run.ID, "")
	if got := decodeData[domain.Run](t, rec); got.ID != run.ID || len(got.NodeResults) != 3 {
		t.Errorf("saved run mismatch: %+v", got)
	}

	rec = ts.do(t, "GET", "/api/v1/flows/echo/runs", "")
	if runs := decodeData[[]RunSummary](t, rec); len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("unexpected history: %+v", runs)
	}
}

func TestCreateRun_Validation(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	if rec := ts.do(t, "POST", "/api/v1/flows/missing/runs", `{"input":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown flow, got %d", rec.Code)
	}
	if rec := ts.do(t, "POST", "/api/v1/flows/echo/runs", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing input, got %d", rec.Code)
	}
}

func TestCreateRun_Stream(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	rec := ts.do(t, "POST", "/api/v1/flows/echo/runs", `{"input":"hi"}`, "Accept", "text/event-stream")
	if rec.Code != http.StatusOK {
		t.Fatalf("stream: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %s", ct)
	}

	types := sseEvents(rec.Body.String())
	if len(types) == 0 || types[len(types)-1] != "run_completed" {
		t.Fatalf("stream must end with run_completed, got %v", types)
	}
	nodeResults := 0
	for _, typ := range types {
		if typ == "node_result" {
			nodeResults++
		}
	}
	if nodeResults != 3 {
		t.Errorf("expected 3 node_result events, got %d (%v)", nodeResults, types)
	}

	runID := rec.Header().Get("X-Run-ID")
	if _, err := ts.store.Runs.GetByID(context.Background(), runID); err != nil {
		t.Errorf("streamed run not saved: %v", err)
	}
}

func TestRunEvents_ReplaysSavedRun(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	run := decodeData[domain.Run](t, ts.do(t, "POST", "/api/v1/flows/echo/runs", `{"input":"x"}`))

	rec := ts.do(t, "GET", "/api/v1/runs/"+run.ID+"/events", "")
	want := []string{"node_result", "node_result", "node_result", "run_completed"}
	if got := sseEvents(rec.Body.String()); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStreamEvents_LaggingSubscriberGetsInterrupted(t *testing.T) {
	hub := live.NewMemoryHub(live.MemoryConfig{Buffer: 1})
	defer hub.Close()
	h := NewHandler(Config{Hub: hub, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx := context.Background()
	events, err := hub.Subscribe(ctx, "run-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Второе событие не помещается в буфер: подписчик отключается.
	for _, text := range []string{"a", "b", "c"} {
		e, _ := live.NewEvent("run-1", live.EventDelta, live.DeltaData{NodeID: "n", Text: text})
		if err := hub.Publish(ctx, e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1/events", nil)
	rec := httptest.NewRecorder()
	h.streamEvents(req, newSSE(rec), "run-1", events)

	body := rec.Body.String()
	want := []string{"delta", "interrupted"}
	if got := sseEvents(body); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !strings.Contains(body, `"last_seq":1`) || !strings.Contains(body, `"run_id":"run-1"`) {
		t.Errorf("interrupted frame must carry run id and last seq: %q", body)
	}
}

func TestStreamEvents_TerminalEventEndsStream(t *testing.T) {
	h := NewHandler(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	events := make(chan live.Event, 2)
	done, _ := live.NewEvent("run-2", live.EventRunCompleted, live.RunData{RunID: "run-2"})
	events <- done
	close(events)

	rec := httptest.NewRecorder()
	h.streamEvents(httptest.NewRequest("GET", "/", nil), newSSE(rec), "run-2", events)

	if got := sseEvents(rec.Body.String()); strings.Join(got, ",") != "run_completed" {
		t.Errorf("expected only run_completed, got %v", got)
	}
}

func TestCredentialsFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-API-Key-openai", "sk-1")
	h.Set("X-Api-Key-Google-Vertex", "g-1")
	h.Set("X-API-Key-unknown", "nope")

	keys := credentialsFromHeaders(h)
	if len(keys) != 2 || keys["openai"] != "sk-1" || keys["google-vertex"] != "g-1" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

// --- Batch Tests ---

func TestCreateBatch(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	rec := ts.do(t, "POST", "/api/v1/batches", `{"name":"b","flow_ids":["echo"],"inputs":["a","b"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create batch: %d %s", rec.Code, rec.Body)
	}
	b := decodeData[domain.Batch](t, rec)
	if b.Status != domain.BatchStatusPending || b.Progress.Total != 2 {
		t.Errorf("unexpected batch: %+v", b)
	}
	if len(ts.dispatcher.batches) != 1 || ts.dispatcher.batches[0].ID != b.ID {
		t.Fatalf("batch not dispatched")
	}

	rec = ts.do(t, "GET", "/api/v1/batches/"+b.ID, "")
	if got := decodeData[domain.Batch](t, rec); got.ID != b.ID {
		t.Errorf("stored batch mismatch: %+v", got)
	}
}

func TestCreateBatch_FromInputSet(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	rec := ts.do(t, "POST", "/api/v1/input-sets", `{"name":"topics","inputs":["x","y","z"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create input set: %d %s", rec.Code, rec.Body)
	}
	set := decodeData[domain.InputSet](t, rec)

	rec = ts.do(t, "POST", "/api/v1/batches", `{"flow_ids":["echo"],"input_set_id":"`+set.ID+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create batch: %d %s", rec.Code, rec.Body)
	}
	if b := decodeData[domain.Batch](t, rec); b.Progress.Total != 3 || b.InputSetID != set.ID {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestCreateBatch_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no flows", `{"flow_ids":[],"inputs":["a"]}`, http.StatusBadRequest},
		{"no inputs", `{"flow_ids":["echo"]}`, http.StatusBadRequest},
		{"empty inputs", `{"flow_ids":["echo"],"inputs":[]}`, http.StatusBadRequest},
		{"unknown flow", `{"flow_ids":["ghost"],"inputs":["a"]}`, http.StatusNotFound},
		{"unknown input set", `{"flow_ids":["echo"],"input_set_id":"ghost"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, "POST", "/api/v1/batches", tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
	if len(ts.dispatcher.batches) != 0 {
		t.Errorf("nothing should be dispatched")
	}
}

func TestAbortBatch(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	running := batch.NewBatch("r", []string{"f"}, []string{"a"})
	running.Status = domain.BatchStatusRunning
	done := batch.NewBatch("d", []string{"f"}, []string{"a"})
	done.Finish(domain.BatchStatusCompleted)
	for _, b := range []*domain.Batch{running, done} {
		if err := ts.store.Batches.Create(ctx, b); err != nil {
			t.Fatalf("create batch: %v", err)
		}
	}

	if rec := ts.do(t, "POST", "/api/v1/batches/"+running.ID+"/abort", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("abort: %d %s", rec.Code, rec.Body)
	}
	if len(ts.aborter.aborted) != 1 || ts.aborter.aborted[0] != running.ID {
		t.Errorf("aborter not called: %v", ts.aborter.aborted)
	}

	rec := ts.do(t, "POST", "/api/v1/batches/"+done.ID+"/abort", "")
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != ErrCodeInvalidState {
		t.Errorf("expected 422 for finished batch, got %d", rec.Code)
	}

	if rec := ts.do(t, "POST", "/api/v1/batches/ghost/abort", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	ts.aborter.err = batch.ErrNotRunning
	if rec := ts.do(t, "POST", "/api/v1/batches/"+running.ID+"/abort", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 when not running, got %d", rec.Code)
	}
}

func TestCreateBatch_DispatchFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)
	ts.dispatcher.err = errors.New("broker down")

	rec := ts.do(t, "POST", "/api/v1/batches", `{"flow_ids":["echo"],"inputs":["a"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

// --- Input Set Tests ---

func TestInputSets(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, "POST", "/api/v1/input-sets", `{"name":"empty","inputs":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty inputs, got %d", rec.Code)
	}

	set := decodeData[domain.InputSet](t, ts.do(t, "POST", "/api/v1/input-sets", `{"name":"s","inputs":["a"]}`))

	if sets := decodeData[[]domain.InputSet](t, ts.do(t, "GET", "/api/v1/input-sets", "")); len(sets) != 1 {
		t.Errorf("expected 1 set, got %d", len(sets))
	}
	if rec := ts.do(t, "DELETE", "/api/v1/input-sets/"+set.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := ts.do(t, "GET", "/api/v1/input-sets/"+set.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

// --- Schedule Tests ---

func TestSchedules(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)
	set := decodeData[domain.InputSet](t, ts.do(t, "POST", "/api/v1/input-sets", `{"name":"s","inputs":["a"]}`))

	rec := ts.do(t, "POST", "/api/v1/schedules",
		`{"name":"nightly","flow_ids":["echo"],"input_set_id":"`+set.ID+`","cron_expr":"0 3 * * *"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create schedule: %d %s", rec.Code, rec.Body)
	}
	sched := decodeData[domain.Schedule](t, rec)
	if !sched.Enabled || sched.NextDueAt == nil || sched.Timezone != "UTC" {
		t.Errorf("unexpected schedule: %+v", sched)
	}
	if sched.NextDueAt != nil && (sched.NextDueAt.Hour() != 3 || sched.NextDueAt.Minute() != 0) {
		t.Errorf("next due not at 03:00 UTC: %v", sched.NextDueAt)
	}

	rec = ts.do(t, "PUT", "/api/v1/schedules/"+sched.ID+"/enabled", `{"enabled":false}`)
	if got := decodeData[domain.Schedule](t, rec); got.Enabled {
		t.Errorf("schedule still enabled")
	}

	if rec = ts.do(t, "DELETE", "/api/v1/schedules/"+sched.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
}

func TestCreateSchedule_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.createEchoFlow(t)
	set := decodeData[domain.InputSet](t, ts.do(t, "POST", "/api/v1/input-sets", `{"name":"s","inputs":["a"]}`))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad cron", `{"flow_ids":["echo"],"input_set_id":"` + set.ID + `","cron_expr":"every day"}`, http.StatusBadRequest},
		{"bad timezone", `{"flow_ids":["echo"],"input_set_id":"` + set.ID + `","cron_expr":"@daily","timezone":"Nowhere/City"}`, http.StatusBadRequest},
		{"missing cron", `{"flow_ids":["echo"],"input_set_id":"` + set.ID + `"}`, http.StatusBadRequest},
		{"unknown input set", `{"flow_ids":["echo"],"input_set_id":"ghost","cron_expr":"@daily"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, "POST", "/api/v1/schedules", tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

// --- Misc Tests ---

func TestProvidersAndHealth(t *testing.T) {
	ts := newTestServer(t)

	providers := decodeData[[]llm.ProviderInfo](t, ts.do(t, "GET", "/api/v1/providers", ""))
	if len(providers) != 3 {
		t.Errorf("expected 3 providers, got %d", len(providers))
	}

	if rec := ts.do(t, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
