package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
)

const publishTimeout = 2 * time.Second

// DeltaData — данные события delta.
type DeltaData struct {
	NodeID string `json:"node_id"`
	Text   string `json:"text"`
}

// ToolCallData — данные события tool_call.
type ToolCallData struct {
	NodeID   string                `json:"node_id"`
	ToolCall *domain.ToolCallTrace `json:"tool_call"`
}

// RunData — данные событий run_completed и run_failed.
type RunData struct {
	RunID       string            `json:"run_id"`
	FlowID      string            `json:"flow_id"`
	BatchID     string            `json:"batch_id,omitempty"`
	Status      domain.RunStatus  `json:"status"`
	FinalOutput string            `json:"final_output"`
	Tokens      domain.TokenUsage `json:"tokens"`
	CostUSD     float64           `json:"cost_usd"`
}

// Sink публикует события orchestrator в Hub.
//
// Ошибки публикации логируются и не прерывают run.
type Sink struct {
	hub    Hub
	logger *slog.Logger
}

var _ orchestrator.Sink = (*Sink)(nil)

// NewSink создаёт Sink.
func NewSink(hub Hub, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{hub: hub, logger: logger}
}

// OnNodeResult реализует orchestrator.Sink.
func (s *Sink) OnNodeResult(runID string, result domain.NodeResult) {
	s.publish(runID, EventNodeResult, result)
}

// OnEvent реализует orchestrator.Sink.
func (s *Sink) OnEvent(event orchestrator.NodeEvent) {
	switch event.Type {
	case llm.EventDelta:
		s.publish(event.RunID, EventDelta, DeltaData{NodeID: event.NodeID, Text: event.Text})
	case llm.EventToolCall:
		s.publish(event.RunID, EventToolCall, ToolCallData{NodeID: event.NodeID, ToolCall: event.ToolCall})
	}
}

// RunFinished публикует терминальное событие run.
func (s *Sink) RunFinished(run *domain.Run) {
	typ, data := runEnd(run)
	s.publish(run.ID, typ, data)
}

// Replay восстанавливает поток событий завершённого run из сохранённой
// записи: node_result по каждому узлу и терминальное событие.
func Replay(run *domain.Run) ([]Event, error) {
	events := make([]Event, 0, len(run.NodeResults)+1)
	for _, result := range run.NodeResults {
		event, err := NewEvent(run.ID, EventNodeResult, result)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	typ, data := runEnd(run)
	event, err := NewEvent(run.ID, typ, data)
	if err != nil {
		return nil, err
	}
	events = append(events, event)

	for i := range events {
		events[i].Seq = int64(i + 1)
	}
	return events, nil
}

func runEnd(run *domain.Run) (EventType, RunData) {
	typ := EventRunCompleted
	if run.Status == domain.RunStatusFailed {
		typ = EventRunFailed
	}
	return typ, RunData{
		RunID:       run.ID,
		FlowID:      run.FlowID,
		BatchID:     run.BatchID,
		Status:      run.Status,
		FinalOutput: run.FinalOutput,
		Tokens:      run.Tokens,
		CostUSD:     run.CostUSD,
	}
}

func (s *Sink) publish(runID string, typ EventType, data any) {
	event, err := NewEvent(runID, typ, data)
	if err != nil {
		s.logger.Error("failed to encode live event", "run_id", runID, "type", typ, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.hub.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish live event", "run_id", runID, "type", typ, "error", err)
	}
}
