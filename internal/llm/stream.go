package llm

import (
	"errors"
	"iter"
	"strings"
)

// Stream — поток событий одного вызова модели.
//
// Поток нужно прочитать через Iter() или Collect(): провайдер держит
// открытое соединение, пока итератор не завершится.
type Stream struct {
	iterator iter.Seq2[Event, error]
	loop     *loop
}

// Iter возвращает итератор событий для range-over-func.
//
//	for ev, err := range stream.Iter() {
//	    if err != nil { ... }
//	    fmt.Print(ev.Text)
//	}
func (s *Stream) Iter() iter.Seq2[Event, error] {
	return s.iterator
}

// State возвращает текущее состояние цикла.
func (s *Stream) State() LoopState {
	if s.loop == nil {
		return StateFailed
	}
	return s.loop.state
}

// Collect читает поток до конца и возвращает итог.
func (s *Stream) Collect() (*Result, error) {
	var result *Result
	for ev, err := range s.iterator {
		if err != nil {
			return result, err
		}
		if ev.Type == EventDone {
			result = ev.Result
		}
	}
	if result == nil {
		return nil, errors.New("stream ended without result")
	}
	return result, nil
}

// failedStream — поток из одной ошибки (запрос отклонён до вызова).
func failedStream(err error) *Stream {
	return &Stream{
		iterator: func(yield func(Event, error) bool) {
			yield(Event{Type: EventError, Err: err}, err)
		},
	}
}

// toolCallBuilder собирает вызов инструмента из инкрементальных фрагментов.
type toolCallBuilder struct {
	id        string
	name      string
	arguments strings.Builder
}

// accumulateToolCall применяет фрагмент к списку сборщиков, расширяя его по индексу.
func accumulateToolCall(builders []*toolCallBuilder, delta *ToolCallDelta) []*toolCallBuilder {
	if delta.Index < 0 {
		return builders
	}
	for len(builders) <= delta.Index {
		builders = append(builders, &toolCallBuilder{})
	}

	b := builders[delta.Index]
	if delta.ID != "" {
		b.id = delta.ID
	}
	if delta.Name != "" {
		b.name = delta.Name
	}
	if delta.Arguments != "" {
		b.arguments.WriteString(delta.Arguments)
	}
	return builders
}

// finishToolCalls возвращает собранные вызовы в порядке индексов.
// Пустые слоты (пропуски индексов) отбрасываются.
func finishToolCalls(builders []*toolCallBuilder) []ToolCall {
	calls := make([]ToolCall, 0, len(builders))
	for _, b := range builders {
		if b.name == "" {
			continue
		}
		calls = append(calls, ToolCall{ID: b.id, Name: b.name, Arguments: b.arguments.String()})
	}
	return calls
}
