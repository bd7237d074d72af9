package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/llm/llmtest"
)

// recorder — Sink, запоминающий всё полученное.
type recorder struct {
	mu      sync.Mutex
	results []domain.NodeResult
	events  []NodeEvent
}

func (r *recorder) OnNodeResult(_ string, res domain.NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) OnEvent(ev NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newExecutor(p llm.Provider) *Executor {
	client := llm.NewClient(llm.ClientConfig{
		Registry:    llm.NewRegistry(p.Name(), p),
		Credentials: llm.StaticCredentials{p.Name(): "k"},
	})
	return New(Config{Models: client})
}

func mustParse(t *testing.T, doc string) *domain.Flow {
	t.Helper()
	flow, err := engine.ParseFlowAuto([]byte(doc))
	if err != nil {
		t.Fatalf("parse flow: %v", err)
	}
	return flow
}

// --- Execute Tests ---

func TestExecute_ExampleFlow(t *testing.T) {
	p := llmtest.New(llm.ProviderAnthropic,
		llmtest.Text("design doc", 100, 50),
		llmtest.Call(llm.ToolCall{ID: "s", Name: llm.StructuredOutputTool, Arguments: `{"html":"<h1>Game</h1>"}`}),
	)
	exec := newExecutor(p)
	flow := domain.ExampleFlow()
	rec := &recorder{}

	run, err := exec.Execute(context.Background(), &flow, "photosynthesis", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Status != domain.RunStatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.FinalOutput != "<h1>Game</h1>" {
		t.Errorf("unexpected final output: %q", run.FinalOutput)
	}
	if len(run.NodeResults) != 5 || len(rec.results) != 5 {
		t.Fatalf("expected 5 node results, got %d (sink %d)", len(run.NodeResults), len(rec.results))
	}

	designer := run.NodeResults[1]
	if designer.Input != "Design an interactive educational game about: photosynthesis" {
		t.Errorf("designer input not rendered: %v", designer.Input)
	}
	if designer.Output != "design doc" || designer.TokensUsed != 150 {
		t.Errorf("unexpected designer result: %+v", designer)
	}

	builder := run.NodeResults[2]
	if !strings.HasSuffix(builder.Input.(string), "\n\ndesign doc") {
		t.Errorf("builder input should embed designer output: %v", builder.Input)
	}
	if m, ok := builder.Output.(map[string]any); !ok || m["html"] != "<h1>Game</h1>" {
		t.Errorf("structured output not parsed: %#v", builder.Output)
	}

	// Промпты узлов уходят в системное сообщение.
	reqs := p.Requests()
	if len(reqs) != 2 || !strings.HasPrefix(reqs[0].Messages[0].Content, "You are an expert educational game designer") {
		t.Errorf("unexpected provider requests: %d", len(reqs))
	}

	if run.Tokens.Total != 152 {
		t.Errorf("expected 152 tokens, got %d", run.Tokens.Total)
	}
	if run.CostUSD <= 0 {
		t.Error("expected positive cost")
	}

	// Дельты текста дизайнера дошли до sink.
	var text strings.Builder
	for _, ev := range rec.events {
		if ev.Type == llm.EventDelta && ev.NodeID == "agent-designer" {
			text.WriteString(ev.Text)
		}
	}
	if text.String() != "design doc" {
		t.Errorf("expected streamed deltas, got %q", text.String())
	}
}

func TestExecute_RouterBranch(t *testing.T) {
	p := llmtest.New("fake",
		llmtest.Call(llm.ToolCall{ID: "s", Name: llm.StructuredOutputTool, Arguments: `{"category":"a"}`}),
	)
	flow := mustParse(t, `
name: Router
nodes:
  - {id: in, type: user-input}
  - id: cls
    type: structured-output
    config: {output_schema: '{"type":"object"}'}
  - id: route
    type: router
    config:
      rules: [{field: category, operator: equals, value: A, target: X}]
  - {id: Y, type: output}
  - {id: X, type: output}
edges:
  - {id: e1, source: in, target: cls}
  - {id: e2, source: cls, target: route}
  - {id: e3, source: route, target: Y}
  - {id: e4, source: route, target: X}
`)

	run, err := newExecutor(p).Execute(context.Background(), flow, "classify me", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(run.NodeResults) != 4 {
		t.Fatalf("expected 4 visited nodes, got %d", len(run.NodeResults))
	}
	router := run.NodeResults[2]
	if out := router.Output.(map[string]any); out["routedTo"] != "X" {
		t.Errorf("expected routedTo X, got %v", out)
	}
	if last := run.NodeResults[3]; last.NodeID != "X" {
		t.Errorf("expected X to run, got %s", last.NodeID)
	}
	// Выход router-узла становится входом следующего узла.
	if !strings.Contains(run.FinalOutput, `"routedTo": "X"`) {
		t.Errorf("output should be indented JSON, got %q", run.FinalOutput)
	}
}

func TestExecute_ProviderFailure(t *testing.T) {
	boom := errors.New("upstream 503")
	p := llmtest.New("fake", llmtest.Fail(boom))
	flow := mustParse(t, `{
		"name": "fail",
		"nodes": [
			{"id": "in", "type": "user-input"},
			{"id": "a", "type": "agent"},
			{"id": "out", "type": "output"}
		],
		"edges": [
			{"id": "e1", "source": "in", "target": "a"},
			{"id": "e2", "source": "a", "target": "out"}
		]
	}`)
	rec := &recorder{}

	run, err := newExecutor(p).Execute(context.Background(), flow, "x", rec)

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
	if runErr.NodeID != "a" || !errors.Is(err, boom) {
		t.Errorf("unexpected run error: %v", runErr)
	}
	var tErr *llm.TransportError
	if !errors.As(err, &tErr) {
		t.Error("transport error should propagate untouched")
	}

	if run.Status != domain.RunStatusFailed || run.CompletedAt == nil {
		t.Errorf("expected finalized failed run, got %s", run.Status)
	}
	if !strings.Contains(run.FinalOutput, "upstream 503") {
		t.Errorf("final output should hold error text, got %q", run.FinalOutput)
	}
	if len(rec.results) != 2 || rec.results[1].Error == "" || rec.results[1].Output != nil {
		t.Errorf("failing node result should be pushed with error: %+v", rec.results)
	}
}

func TestExecute_InvalidSchemaFailsBeforeCall(t *testing.T) {
	p := llmtest.New("fake")
	flow := &domain.Flow{
		Name: "bad schema",
		Nodes: []domain.Node{
			{ID: "s", Type: domain.NodeTypeStructuredOutput, Config: &domain.StructuredOutputConfig{OutputSchema: "{bad"}},
		},
	}

	run, err := newExecutor(p).Execute(context.Background(), flow, "x", nil)
	if !errors.Is(err, llm.ErrInvalidSchema) || !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected schema validation error, got %v", err)
	}
	if len(p.Requests()) != 0 {
		t.Error("provider must not be called")
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
}

func TestExecute_VFSToolsAndRenderer(t *testing.T) {
	p := llmtest.New("fake",
		llmtest.Call(
			llm.ToolCall{ID: "1", Name: "create_file", Arguments: `{"path":"style.css","content":"h1{color:red}"}`},
			llm.ToolCall{ID: "2", Name: "edit", Arguments: `{"path":"index.html","old_text":"TITLE","new_text":"Hello"}`},
		),
		llmtest.Text("files ready", 3, 3),
	)
	flow := mustParse(t, `
name: Builder
initial_vfs:
  index.html: '<html><head><link rel="stylesheet" href="style.css"></head><body><h1>TITLE</h1></body></html>'
nodes:
  - {id: in, type: user-input}
  - {id: a, type: agent, config: {tools_enabled: true}}
  - {id: r, type: html-renderer}
  - {id: out, type: output}
edges:
  - {id: e1, source: in, target: a}
  - {id: e2, source: a, target: r}
  - {id: e3, source: r, target: out}
`)
	rec := &recorder{}

	run, err := newExecutor(p).Execute(context.Background(), flow, "build", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agent := run.NodeResults[1]
	if len(agent.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(agent.ToolCalls))
	}
	if agent.VFSSnapshot["style.css"] != "h1{color:red}" {
		t.Errorf("agent VFS snapshot missing new file: %v", agent.VFSSnapshot)
	}
	if run.NodeResults[0].VFSSnapshot != nil {
		t.Error("entry node did not change VFS and must not carry a snapshot")
	}

	if !strings.Contains(run.FinalOutput, "<style>h1{color:red}</style>") {
		t.Errorf("stylesheet should be inlined, got %q", run.FinalOutput)
	}
	if !strings.Contains(run.FinalOutput, "<h1>Hello</h1>") {
		t.Errorf("edit should be visible to renderer, got %q", run.FinalOutput)
	}
	if strings.Contains(run.FinalOutput, "<link") {
		t.Errorf("link tag should be replaced, got %q", run.FinalOutput)
	}

	if len(run.FinalVFS) != 2 {
		t.Errorf("expected 2 files in final VFS, got %v", run.FinalVFS)
	}
	if !strings.Contains(flow.InitialVFS["index.html"], "TITLE") {
		t.Error("flow seed VFS must not be mutated by a run")
	}

	toolEvents := 0
	for _, ev := range rec.events {
		if ev.Type == llm.EventToolCall {
			toolEvents++
		}
	}
	if toolEvents != 2 {
		t.Errorf("expected 2 tool call events, got %d", toolEvents)
	}
}

func TestExecute_SinkPanicRecovered(t *testing.T) {
	flow := mustParse(t, `{"name":"echo","nodes":[{"id":"in","type":"user-input"},{"id":"out","type":"output"}],
		"edges":[{"id":"e","source":"in","target":"out"}]}`)
	sink := SinkFuncs{NodeResult: func(string, domain.NodeResult) { panic("boom") }}

	run, err := New(Config{}).Execute(context.Background(), flow, "hi", sink)
	if err != nil {
		t.Fatalf("sink panic must not fail the run: %v", err)
	}
	if run.FinalOutput != "hi" {
		t.Errorf("expected echo output, got %q", run.FinalOutput)
	}
}

func TestExecute_ObjectInputAndNoOutputNode(t *testing.T) {
	flow := &domain.Flow{
		Name:  "no output",
		Nodes: []domain.Node{{ID: "in", Type: domain.NodeTypeUserInput}},
	}

	run, err := New(Config{}).Execute(context.Background(), flow, map[string]any{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.FinalOutput != "" {
		t.Errorf("final output without output node should be empty, got %q", run.FinalOutput)
	}
	if m, ok := run.NodeResults[0].Output.(map[string]any); !ok || m["k"] != "v" {
		t.Errorf("entry should pass input through, got %v", run.NodeResults[0].Output)
	}
}

func TestExecute_CycleRejected(t *testing.T) {
	flow := &domain.Flow{
		Name: "cycle",
		Nodes: []domain.Node{
			{ID: "in", Type: domain.NodeTypeUserInput},
			{ID: "a", Type: domain.NodeTypeRouter},
			{ID: "b", Type: domain.NodeTypeRouter},
		},
		Edges: []domain.Edge{
			{ID: "1", Source: "in", Target: "a"},
			{ID: "2", Source: "a", Target: "b"},
			{ID: "3", Source: "b", Target: "a"},
		},
	}

	run, err := New(Config{}).Execute(context.Background(), flow, "x", nil)
	if !errors.Is(err, engine.ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
	if len(run.NodeResults) != 0 {
		t.Error("no node should run for a cyclic graph")
	}
}

func TestExecute_NoModelClient(t *testing.T) {
	flow := &domain.Flow{
		Name:  "agent only",
		Nodes: []domain.Node{{ID: "a", Type: domain.NodeTypeAgent, Config: &domain.AgentConfig{}}},
	}

	_, err := New(Config{}).Execute(context.Background(), flow, "x", nil)
	if !errors.Is(err, ErrNoModelClient) {
		t.Errorf("expected ErrNoModelClient, got %v", err)
	}
}

func TestExecute_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flow := domain.ExampleFlow()
	run, err := New(Config{}).Execute(ctx, &flow, "x", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
}

// --- Helper Tests ---

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(any) bool
	}{
		{"valid object", `{"a":1}`, func(v any) bool { m, ok := v.(map[string]any); return ok && m["a"] == 1.0 }},
		{"trailing comma repaired", `{"a": 1,}`, func(v any) bool { _, ok := v.(map[string]any); return ok }},
		{"plain text kept", "just words", func(v any) bool { return v == "just words" }},
		{"json string", `"quoted"`, func(v any) bool { return v == "quoted" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseStructured(tt.content); !tt.check(got) {
				t.Errorf("ParseStructured(%q) = %#v", tt.content, got)
			}
		})
	}
}
