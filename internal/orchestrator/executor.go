package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
)

// ModelClient — потоковый вызов модели (реализуется *llm.Client).
type ModelClient interface {
	Stream(ctx context.Context, req llm.Request) *llm.Stream
}

// Config — конфигурация Executor.
type Config struct {
	// Models — клиент моделей для agent и structured-output узлов.
	Models ModelClient

	// Logger — логгер; по умолчанию slog.Default().
	Logger *slog.Logger

	// Metrics — метрики; nil отключает запись.
	Metrics *telemetry.Metrics
}

// Executor выполняет flow.
//
// Executor не хранит состояния между вызовами и безопасен для
// одновременного использования из нескольких горутин: всё состояние
// run живёт в RunState.
type Executor struct {
	models  ModelClient
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		models:  cfg.Models,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(flowID string, input any) *domain.Run {
	return &domain.Run{
		ID:          uuid.NewString(),
		FlowID:      flowID,
		Status:      domain.RunStatusRunning,
		Input:       input,
		NodeResults: []domain.NodeResult{},
		StartedAt:   time.Now(),
	}
}

// Execute создаёт run и выполняет flow.
//
// Возвращаемый run всегда финализирован: COMPLETED или FAILED. При ошибке
// run также возвращается, а ошибка имеет тип *RunError.
func (e *Executor) Execute(ctx context.Context, flow *domain.Flow, input any, sink Sink) (*domain.Run, error) {
	flowID := ""
	if flow != nil {
		flowID = flow.ID
	}
	run := NewRun(flowID, input)
	err := e.ExecuteRun(ctx, run, flow, sink)
	return run, err
}

// ExecuteRun выполняет flow в рамках заранее созданного run.
func (e *Executor) ExecuteRun(ctx context.Context, run *domain.Run, flow *domain.Flow, sink Sink) error {
	logger := telemetry.WithRunID(e.logger, run.ID)
	if run.BatchID != "" {
		logger = telemetry.WithBatchID(logger, run.BatchID)
	}
	if sink == nil {
		sink = NopSink{}
	}
	sink = safeSink{sink: sink, logger: logger}

	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if flow == nil {
		return e.fail(run, logger, &RunError{RunID: run.ID, Err: ErrNilFlow})
	}
	logger = telemetry.WithFlowID(logger, flow.ID)

	graph, err := engine.NewGraph(flow)
	if err != nil {
		return e.fail(run, logger, &RunError{RunID: run.ID, Err: err})
	}
	entry, ignored, err := graph.Entry()
	if err != nil {
		return e.fail(run, logger, &RunError{RunID: run.ID, Err: err})
	}
	for _, n := range ignored {
		logger.Warn("extra start node ignored", "node_id", n.ID, "entry", entry.ID)
	}

	state := NewRunState(run, graph)
	logger.Info("run started", "entry", entry.ID, "nodes", graph.Size())

	var finalOutput string
	current := entry.ID
	for current != "" {
		if err := ctx.Err(); err != nil {
			return e.finish(run, state, logger, &RunError{RunID: run.ID, NodeID: current, Err: err})
		}

		node := graph.Node(current)
		if node == nil {
			return e.finish(run, state, logger, &RunError{RunID: run.ID, NodeID: current, Err: ErrNodeNotFound})
		}
		if state.Visited(node.ID) {
			return e.finish(run, state, logger, &RunError{RunID: run.ID, NodeID: node.ID, Err: ErrNodeRevisited})
		}

		out, err := e.executeNode(ctx, state, node, sink, logger)
		if err != nil {
			return e.finish(run, state, logger, &RunError{RunID: run.ID, NodeID: node.ID, Err: err})
		}

		if out.terminal {
			finalOutput = engine.Stringify(out.output)
			break
		}
		current = out.next
		if !out.routed {
			current = ""
			if adj := graph.Adjacent(node.ID); len(adj) > 0 {
				current = adj[0]
			}
		}
	}

	run.FinalVFS = state.VFS.Map()
	run.MarkCompleted(finalOutput)
	e.metrics.RunFinished(string(run.Status))
	logger.Info("run completed",
		"nodes", len(run.NodeResults),
		"tokens", run.Tokens.Total,
		"cost", llm.FormatCost(run.CostUSD),
		"duration", run.Duration(),
	)
	return nil
}

// executeNode выполняет один узел, записывает результат и отправляет его в sink.
func (e *Executor) executeNode(ctx context.Context, state *RunState, node *domain.Node, sink Sink, logger *slog.Logger) (outcome, error) {
	nodeLogger := telemetry.WithNodeID(logger, node.ID, string(node.Type))
	input := state.Input(node.ID)
	start := time.Now()

	out, err := e.dispatch(ctx, state, node, input, sink)
	latency := time.Since(start)

	result := domain.NodeResult{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Input:      out.input,
		Output:     out.output,
		TokensUsed: out.tokens.Total,
		CostUSD:    out.cost,
		LatencyMs:  latency.Milliseconds(),
		ToolCalls:  out.toolCalls,
	}
	if result.Input == nil {
		result.Input = input
	}
	if out.vfsChanged {
		result.VFSSnapshot = state.VFS.Map()
	}
	if err != nil {
		result.Output = nil
		result.Error = err.Error()
	}

	state.Record(result)
	state.AddTokens(out.tokens)
	e.metrics.ObserveNode(string(node.Type), latency, err != nil)
	sink.OnNodeResult(state.Run.ID, result)

	if err != nil {
		nodeLogger.Warn("node failed", "error", err, "latency_ms", result.LatencyMs)
		return out, err
	}
	nodeLogger.Debug("node completed", "latency_ms", result.LatencyMs, "tokens", result.TokensUsed)
	return out, nil
}

// finish финализирует run после ошибки узла.
func (e *Executor) finish(run *domain.Run, state *RunState, logger *slog.Logger, runErr *RunError) error {
	run.FinalVFS = state.VFS.Map()
	return e.fail(run, logger, runErr)
}

func (e *Executor) fail(run *domain.Run, logger *slog.Logger, runErr *RunError) error {
	run.MarkFailed(runErr.Err.Error())
	e.metrics.RunFinished(string(run.Status))

	level := slog.LevelError
	if errors.Is(runErr.Err, context.Canceled) {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "run failed", "node_id", runErr.NodeID, "error", runErr.Err)
	return runErr
}
