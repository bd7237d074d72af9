// Package llmtest содержит тестовые провайдеры моделей.
package llmtest

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/llm"
)

// ErrScriptExhausted — провайдеру не хватило сценарных ходов.
var ErrScriptExhausted = errors.New("scripted provider: no more turns")

// Turn — сценарный ответ модели на один ход.
type Turn struct {
	Text      string
	ToolCalls []llm.ToolCall
	Usage     domain.TokenUsage
	Finish    string
	Err       error
}

// Text — ход с текстовым ответом.
func Text(text string, in, out int) Turn {
	return Turn{Text: text, Usage: domain.TokenUsage{Input: in, Output: out, Total: in + out}, Finish: "stop"}
}

// Call — ход с вызовами инструментов.
func Call(calls ...llm.ToolCall) Turn {
	return Turn{ToolCalls: calls, Usage: domain.TokenUsage{Input: 1, Output: 1, Total: 2}, Finish: "tool_calls"}
}

// Fail — ход, завершающийся ошибкой транспорта.
func Fail(err error) Turn {
	return Turn{Err: err}
}

// ScriptedProvider проигрывает заранее заданные ходы и запоминает запросы.
//
// Responder, если задан, вызывается вместо сценария (для параллельных тестов,
// где порядок ходов между run не определён).
type ScriptedProvider struct {
	ProviderName string
	Model        string
	Responder    func(req llm.TurnRequest) Turn

	mu       sync.Mutex
	turns    []Turn
	requests []llm.TurnRequest
}

// New создаёт провайдер с именем name и сценарием turns.
func New(name string, turns ...Turn) *ScriptedProvider {
	return &ScriptedProvider{ProviderName: name, Model: "scripted-model", turns: turns}
}

// Name реализует llm.Provider.
func (p *ScriptedProvider) Name() string { return p.ProviderName }

// DefaultModel реализует llm.Provider.
func (p *ScriptedProvider) DefaultModel() string { return p.Model }

// Requests возвращает копию полученных запросов.
func (p *ScriptedProvider) Requests() []llm.TurnRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.TurnRequest(nil), p.requests...)
}

func (p *ScriptedProvider) next(req llm.TurnRequest) Turn {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, req)

	if p.Responder != nil {
		return p.Responder(req)
	}
	if len(p.turns) == 0 {
		return Fail(ErrScriptExhausted)
	}
	t := p.turns[0]
	p.turns = p.turns[1:]
	return t
}

// Turn реализует llm.Provider. Текст отдаётся двумя фрагментами,
// аргументы инструмента — отдельным фрагментом после имени.
func (p *ScriptedProvider) Turn(ctx context.Context, req llm.TurnRequest) iter.Seq2[llm.Chunk, error] {
	t := p.next(req)
	return func(yield func(llm.Chunk, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(llm.Chunk{}, err)
			return
		}
		if t.Err != nil {
			yield(llm.Chunk{}, t.Err)
			return
		}

		if t.Text != "" {
			half := len(t.Text) / 2
			for _, part := range []string{t.Text[:half], t.Text[half:]} {
				if part == "" {
					continue
				}
				if !yield(llm.Chunk{Type: llm.ChunkText, Text: part}, nil) {
					return
				}
			}
		}

		for i, call := range t.ToolCalls {
			head := &llm.ToolCallDelta{Index: i, ID: call.ID, Name: call.Name}
			if !yield(llm.Chunk{Type: llm.ChunkToolCall, ToolCall: head}, nil) {
				return
			}
			args := &llm.ToolCallDelta{Index: i, Arguments: call.Arguments}
			if !yield(llm.Chunk{Type: llm.ChunkToolCall, ToolCall: args}, nil) {
				return
			}
		}

		usage := t.Usage
		if !yield(llm.Chunk{Type: llm.ChunkUsage, Usage: &usage}, nil) {
			return
		}
		if t.Finish != "" {
			yield(llm.Chunk{Type: llm.ChunkFinish, FinishReason: t.Finish}, nil)
		}
	}
}
