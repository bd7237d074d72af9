package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed — hub закрыт.
var ErrClosed = errors.New("live hub closed")

// EventType — тип события SSE.
type EventType string

const (
	EventNodeResult   EventType = "node_result"
	EventDelta        EventType = "delta"
	EventToolCall     EventType = "tool_call"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"

	// EventInterrupted — подписка закрылась раньше терминального события
	// (подписчик отстал или hub остановлен). Hub его не публикует: кадр
	// пишет API последним в потоке. Клиент продолжает с LastSeq через
	// GET /runs/{id}/events или читает итог через GET /runs/{id}.
	EventInterrupted EventType = "interrupted"
)

// InterruptedData — данные события interrupted.
type InterruptedData struct {
	RunID   string `json:"run_id"`
	LastSeq int64  `json:"last_seq"`
}

// Event — событие run.
type Event struct {
	// Seq — порядковый номер в пределах run, начиная с 1. Назначается hub.
	Seq   int64           `json:"seq"`
	Type  EventType       `json:"type"`
	RunID string          `json:"run_id"`
	Data  json.RawMessage `json:"data"`
}

// Terminal возвращает true для последнего события run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}

// NewEvent кодирует data в JSON.
func NewEvent(runID string, typ EventType, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return Event{Type: typ, RunID: runID, Data: raw}, nil
}

// Hub публикует события и раздаёт их подписчикам.
type Hub interface {
	// Publish назначает событию Seq и рассылает его.
	Publish(ctx context.Context, event Event) error

	// Subscribe возвращает канал событий run: сначала история, затем
	// новые события. Канал закрывается после терминального события
	// или отмены ctx.
	Subscribe(ctx context.Context, runID string) (<-chan Event, error)
}
