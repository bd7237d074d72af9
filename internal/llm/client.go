package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
	"github.com/mimcmahon20/Shelly/internal/vfs"
)

// ClientConfig — зависимости клиента.
type ClientConfig struct {
	Registry    *Registry
	Credentials CredentialSupplier
	Logger      *slog.Logger
	Metrics     *telemetry.Metrics
}

// Client вызывает модели и ведёт цикл инструментов.
type Client struct {
	registry    *Registry
	credentials CredentialSupplier
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

// NewClient создаёт клиента.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Credentials == nil {
		cfg.Credentials = EnvCredentials{}
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry("")
	}
	return &Client{
		registry:    cfg.Registry,
		credentials: cfg.Credentials,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Registry возвращает реестр провайдеров клиента.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Stream запускает вызов модели.
//
// Запрос проверяется сразу: невалидная схема, неизвестный провайдер или
// отсутствующий ключ дают поток из одной ошибки без обращения к сети.
func (c *Client) Stream(ctx context.Context, req Request) *Stream {
	l, err := c.prepare(ctx, req)
	if err != nil {
		return failedStream(err)
	}
	return &Stream{iterator: l.run, loop: l}
}

// Complete — Stream + Collect.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	return c.Stream(ctx, req).Collect()
}

func (c *Client) prepare(ctx context.Context, req Request) (*loop, error) {
	var schema map[string]any
	if strings.TrimSpace(req.OutputSchema) != "" {
		if err := json.Unmarshal([]byte(req.OutputSchema), &schema); err != nil || schema == nil {
			detail := "not a JSON object"
			if err != nil {
				detail = err.Error()
			}
			return nil, &ValidationError{Field: "output_schema", Err: fmt.Errorf("%w: %s", ErrInvalidSchema, detail)}
		}
	}

	provider, err := c.registry.Resolve(req.Provider)
	if err != nil {
		return nil, &ValidationError{Field: "provider", Err: err}
	}

	apiKey, ok := credentialsFromContext(ctx, provider.Name())
	if !ok {
		apiKey, err = c.credentials.Credential(ctx, provider.Name())
		if err != nil {
			return nil, &ValidationError{Field: "credentials", Err: err}
		}
	}

	model := req.Model
	if model == "" {
		model = provider.DefaultModel()
	}
	maxIter := req.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}

	return &loop{
		ctx:      ctx,
		client:   c,
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		req:      req,
		schema:   schema,
		maxIter:  maxIter,
		state:    StateRequesting,
		logger:   c.logger.With("provider", provider.Name(), "model", model),
	}, nil
}

// loop — одно выполнение цикла инструментов.
type loop struct {
	ctx      context.Context
	client   *Client
	provider Provider
	apiKey   string
	model    string
	req      Request
	schema   map[string]any
	maxIter  int
	state    LoopState
	logger   *slog.Logger
}

func (l *loop) transition(to LoopState) {
	if !CanTransition(l.state, to) && l.state != to {
		l.logger.Warn("unexpected loop transition", "from", l.state, "to", to)
	}
	l.state = to
}

// tools возвращает инструменты раунда и принудительный инструмент.
func (l *loop) tools(round int) ([]Tool, string) {
	var tools []Tool
	offerVFS := l.req.ToolsEnabled && round <= l.maxIter
	if offerVFS {
		for _, def := range vfs.Definitions() {
			tools = append(tools, Tool{Name: def.Name, Description: def.Description, Parameters: def.Parameters})
		}
	}
	if l.schema == nil {
		return tools, ""
	}

	tools = append(tools, Tool{
		Name:        StructuredOutputTool,
		Description: "Return the structured output matching the schema",
		Parameters:  l.schema,
	})
	if offerVFS {
		return tools, ""
	}
	return tools, StructuredOutputTool
}

func (l *loop) run(yield func(Event, error) bool) {
	messages := []Message{
		{Role: RoleSystem, Content: l.req.SystemPrompt},
		{Role: RoleUser, Content: l.req.Message},
	}
	fs := l.req.VFS
	result := &Result{Provider: l.provider.Name(), Model: l.model}

	fail := func(err error) {
		l.transition(StateFailed)
		l.logger.Debug("model call failed", "rounds", result.Rounds, "error", err)
		yield(Event{Type: EventError, Err: err}, err)
	}

	for round := 1; ; round++ {
		if round > 1 {
			l.transition(StateRequesting)
		}
		if err := l.ctx.Err(); err != nil {
			fail(&TransportError{Provider: l.provider.Name(), Round: round, Err: err})
			return
		}

		tools, force := l.tools(round)
		offered := l.req.ToolsEnabled && round <= l.maxIter
		result.Rounds = round
		l.client.metrics.LLMRound(l.provider.Name())
		l.logger.Debug("model round", "round", round, "tools", len(tools), "messages", len(messages))

		l.transition(StateStreamingText)
		var (
			text     strings.Builder
			builders []*toolCallBuilder
			finish   string
		)
		turn := TurnRequest{Model: l.model, APIKey: l.apiKey, Messages: messages, Tools: tools, ForceTool: force}
		for chunk, err := range l.provider.Turn(l.ctx, turn) {
			if err != nil {
				fail(&TransportError{Provider: l.provider.Name(), Round: round, Err: err})
				return
			}
			switch chunk.Type {
			case ChunkText:
				text.WriteString(chunk.Text)
				if !yield(Event{Type: EventDelta, Text: chunk.Text}, nil) {
					return
				}
			case ChunkToolCall:
				if chunk.ToolCall != nil {
					builders = accumulateToolCall(builders, chunk.ToolCall)
				}
			case ChunkUsage:
				if chunk.Usage != nil {
					result.Tokens.Add(*chunk.Usage)
				}
			case ChunkFinish:
				finish = chunk.FinishReason
			}
		}
		result.FinishReason = finish
		calls := finishToolCalls(builders)

		if l.schema != nil {
			if call, ok := findCall(calls, StructuredOutputTool); ok {
				result.Content = call.Arguments
				result.Structured = true
				l.done(fs, result, yield)
				return
			}
		}

		if !offered || len(calls) == 0 || naturalStop(finish) {
			result.Content = text.String()
			l.done(fs, result, yield)
			return
		}

		l.transition(StateAwaitingToolResults)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		messages = append(messages, Message{Role: RoleAssistant, Content: text.String(), ToolCalls: calls})

		for _, call := range calls {
			args := rawArgs(call.Arguments)
			out, next, err := vfs.Apply(call.Name, args, fs)
			if err != nil {
				var toolErr *vfs.ToolError
				if !errors.As(err, &toolErr) {
					fail(err)
					return
				}
				out = "Error: " + toolErr.Error()
				l.logger.Debug("tool error", "tool", call.Name, "error", toolErr)
			}
			fs = next

			trace := domain.ToolCallTrace{
				ID:         call.ID,
				ToolName:   call.Name,
				Input:      args,
				TextOutput: out,
				Iteration:  round,
			}
			result.Traces = append(result.Traces, trace)
			l.client.metrics.ToolCalled(call.Name)
			if !yield(Event{Type: EventToolCall, ToolCall: &trace}, nil) {
				return
			}
			messages = append(messages, Message{Role: RoleTool, Content: out, ToolCallID: call.ID})
		}
	}
}

func (l *loop) done(fs vfs.FS, result *Result, yield func(Event, error) bool) {
	result.VFS = fs
	result.VFSChanged = !fs.Equal(l.req.VFS)
	l.transition(StateDone)
	l.client.metrics.AddTokens(l.provider.Name(), result.Tokens.Input, result.Tokens.Output)
	l.logger.Debug("model call done",
		"rounds", result.Rounds,
		"tool_calls", len(result.Traces),
		"tokens", result.Tokens.Total,
	)
	yield(Event{Type: EventDone, Result: result}, nil)
}

// naturalStop — модель сама завершила ход, вызовы инструментов игнорируются.
func naturalStop(finish string) bool {
	return finish == "stop" || finish == "end_turn"
}

func findCall(calls []ToolCall, name string) (ToolCall, bool) {
	for _, c := range calls {
		if c.Name == name {
			return c, true
		}
	}
	return ToolCall{}, false
}
