package orchestrator

import (
	"log/slog"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/llm"
)

// NodeEvent — промежуточное событие узла (фрагмент текста, вызов инструмента).
type NodeEvent struct {
	RunID    string                `json:"run_id"`
	NodeID   string                `json:"node_id"`
	Type     llm.EventType         `json:"type"`
	Text     string                `json:"text,omitempty"`
	ToolCall *domain.ToolCallTrace `json:"tool_call,omitempty"`
}

// Sink получает результаты run по мере выполнения.
//
// Методы вызываются синхронно из горутины run, поэтому должны быть быстрыми.
type Sink interface {
	OnNodeResult(runID string, result domain.NodeResult)
	OnEvent(event NodeEvent)
}

// NopSink игнорирует всё.
type NopSink struct{}

func (NopSink) OnNodeResult(string, domain.NodeResult) {}
func (NopSink) OnEvent(NodeEvent)                      {}

// SinkFuncs — Sink из функций; nil-поля игнорируются.
type SinkFuncs struct {
	NodeResult func(runID string, result domain.NodeResult)
	Event      func(event NodeEvent)
}

func (s SinkFuncs) OnNodeResult(runID string, result domain.NodeResult) {
	if s.NodeResult != nil {
		s.NodeResult(runID, result)
	}
}

func (s SinkFuncs) OnEvent(event NodeEvent) {
	if s.Event != nil {
		s.Event(event)
	}
}

// MultiSink рассылает события нескольким Sink по порядку.
type MultiSink []Sink

func (m MultiSink) OnNodeResult(runID string, result domain.NodeResult) {
	for _, s := range m {
		s.OnNodeResult(runID, result)
	}
}

func (m MultiSink) OnEvent(event NodeEvent) {
	for _, s := range m {
		s.OnEvent(event)
	}
}

// safeSink защищает run от паники в пользовательском Sink.
type safeSink struct {
	sink   Sink
	logger *slog.Logger
}

func (s safeSink) OnNodeResult(runID string, result domain.NodeResult) {
	defer s.recover("node_result")
	s.sink.OnNodeResult(runID, result)
}

func (s safeSink) OnEvent(event NodeEvent) {
	defer s.recover("event")
	s.sink.OnEvent(event)
}

func (s safeSink) recover(kind string) {
	if r := recover(); r != nil {
		s.logger.Error("sink panic recovered", "kind", kind, "panic", r)
	}
}
