package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/llm"
)

// Системные промпты по умолчанию.
const (
	DefaultAgentPrompt      = "You are a helpful assistant."
	DefaultStructuredPrompt = "You are a helpful assistant. Return structured data."
)

// outcome — результат обработчика узла.
type outcome struct {
	// input — вход для записи в NodeResult (для LLM-узлов — отрендеренное сообщение).
	input any

	output any

	// next — следующий узел, выбранный router. Учитывается только при routed.
	next   string
	routed bool

	// terminal — узел завершает обход.
	terminal bool

	tokens     domain.TokenUsage
	cost       float64
	toolCalls  []domain.ToolCallTrace
	vfsChanged bool
}

// dispatch выбирает обработчик по типу конфигурации узла.
func (e *Executor) dispatch(ctx context.Context, state *RunState, node *domain.Node, input any, sink Sink) (outcome, error) {
	switch cfg := node.Config.(type) {
	case *domain.EntryConfig:
		return outcome{input: state.Run.Input, output: state.Run.Input}, nil

	case *domain.AgentConfig:
		return e.handleModel(ctx, state, node, cfg.ModelConfig, "", DefaultAgentPrompt, input, sink)

	case *domain.StructuredOutputConfig:
		out, err := e.handleModel(ctx, state, node, cfg.ModelConfig, cfg.OutputSchema, DefaultStructuredPrompt, input, sink)
		if err != nil {
			return out, err
		}
		if s, ok := out.output.(string); ok {
			out.output = ParseStructured(s)
		}
		return out, nil

	case *domain.RouterConfig:
		res := engine.Route(cfg, input, state.Graph.Adjacent(node.ID))
		return outcome{input: res.Input, output: res.Output(), next: res.Target, routed: true}, nil

	case *domain.HTMLRendererConfig:
		return outcome{input: input, output: RenderHTML(state.VFS, input)}, nil

	case *domain.OutputConfig:
		return outcome{input: input, output: engine.StringifyIndent(input), terminal: true}, nil

	case nil:
		// Узлы без config (flow собран в коде, а не разобран парсером).
		cfg, err := domain.NewNodeConfig(node.Type)
		if err != nil {
			return outcome{input: input}, err
		}
		withConfig := *node
		withConfig.Config = cfg
		return e.dispatch(ctx, state, &withConfig, input, sink)

	default:
		return outcome{input: input}, fmt.Errorf("%w: %s", domain.ErrUnknownNodeType, node.Type)
	}
}

// handleModel рендерит шаблон сообщения и вызывает модель.
// Фрагменты текста и вызовы инструментов уходят в sink по мере поступления.
func (e *Executor) handleModel(
	ctx context.Context,
	state *RunState,
	node *domain.Node,
	mc domain.ModelConfig,
	schema string,
	defaultPrompt string,
	input any,
	sink Sink,
) (outcome, error) {
	message := engine.Interpolate(mc.MessageTemplate, input)
	out := outcome{input: message}

	if e.models == nil {
		return out, ErrNoModelClient
	}

	system := mc.SystemPrompt
	if system == "" {
		system = defaultPrompt
	}

	stream := e.models.Stream(ctx, llm.Request{
		Provider:          mc.Provider,
		Model:             mc.Model,
		SystemPrompt:      system,
		Message:           message,
		OutputSchema:      schema,
		VFS:               state.VFS,
		ToolsEnabled:      mc.ToolsEnabled,
		MaxToolIterations: mc.MaxToolIterations,
	})

	var result *llm.Result
	for ev, err := range stream.Iter() {
		if err != nil {
			return out, err
		}
		switch ev.Type {
		case llm.EventDelta:
			sink.OnEvent(NodeEvent{RunID: state.Run.ID, NodeID: node.ID, Type: ev.Type, Text: ev.Text})
		case llm.EventToolCall:
			sink.OnEvent(NodeEvent{RunID: state.Run.ID, NodeID: node.ID, Type: ev.Type, ToolCall: ev.ToolCall})
		case llm.EventDone:
			result = ev.Result
		}
	}
	if result == nil {
		return out, errors.New("model stream ended without result")
	}

	if result.VFSChanged {
		state.SetVFS(result.VFS)
	}

	out.output = result.Content
	out.tokens = result.Tokens
	out.cost = llm.Cost(result.Model, result.Tokens.Input, result.Tokens.Output)
	out.toolCalls = result.Traces
	out.vfsChanged = result.VFSChanged
	return out, nil
}

// ParseStructured разбирает ответ structured-output узла.
//
// Порядок: JSON как есть, затем JSON после jsonrepair (только если
// получился объект или массив), иначе исходный текст.
func ParseStructured(content string) any {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return v
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return content
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return content
	}
	switch v.(type) {
	case map[string]any, []any:
		return v
	default:
		return content
	}
}
