package llm

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/vfs"
)

// DefaultMaxToolIterations — лимит раундов с инструментами по умолчанию.
const DefaultMaxToolIterations = 10

// StructuredOutputTool — имя принудительного инструмента для схемы ответа.
const StructuredOutputTool = "structured_output"

// Request — запрос узла к модели.
type Request struct {
	// Provider — имя провайдера; пустое заменяется провайдером по умолчанию.
	Provider string

	// Model — модель; пустая заменяется моделью провайдера по умолчанию.
	Model string

	SystemPrompt string
	Message      string

	// OutputSchema — JSON Schema ответа. Если задана, ответ возвращается
	// как аргументы инструмента structured_output.
	OutputSchema string

	// VFS — файловая система run на момент вызова.
	VFS vfs.FS

	ToolsEnabled      bool
	MaxToolIterations int
}

// Role — роль сообщения в диалоге.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message — один ход диалога.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // только для RoleAssistant
	ToolCallID string     // только для RoleTool
}

// ToolCall — завершённый вызов инструмента моделью.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool — определение инструмента, предлагаемого модели.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// TurnRequest — один ход модели.
type TurnRequest struct {
	Model    string
	APIKey   string
	Messages []Message
	Tools    []Tool

	// ForceTool — имя инструмента, который модель обязана вызвать.
	ForceTool string
}

// ChunkType — тип фрагмента потока провайдера.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkUsage    ChunkType = "usage"
	ChunkFinish   ChunkType = "finish"
)

// ToolCallDelta — инкрементальное обновление вызова инструмента.
// ID и Name приходят в первом фрагменте для индекса, дальше — куски Arguments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk — фрагмент потока одного хода.
type Chunk struct {
	Type         ChunkType
	Text         string
	ToolCall     *ToolCallDelta
	Usage        *domain.TokenUsage
	FinishReason string
}

// Provider — потоковый ход модели.
//
// Итератор должен быть полностью прочитан (или прерван break),
// иначе провайдер может удерживать HTTP соединение.
type Provider interface {
	Name() string
	DefaultModel() string
	Turn(ctx context.Context, req TurnRequest) iter.Seq2[Chunk, error]
}

// EventType — тип события клиентского потока.
type EventType string

const (
	EventDelta    EventType = "delta"
	EventToolCall EventType = "tool_call"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event — событие потока Client.Stream.
type Event struct {
	Type EventType `json:"type"`

	// Text — фрагмент текста (EventDelta).
	Text string `json:"text,omitempty"`

	// ToolCall — выполненный вызов инструмента (EventToolCall).
	ToolCall *domain.ToolCallTrace `json:"tool_call,omitempty"`

	// Result — итог (EventDone).
	Result *Result `json:"result,omitempty"`

	// Err — ошибка (EventError). Также приходит вторым значением итератора.
	Err error `json:"-"`
}

// Result — итог вызова модели.
type Result struct {
	// Content — финальный текст; для схемы — JSON аргументов structured_output.
	Content string `json:"content"`

	// Structured — Content получен через structured_output.
	Structured bool `json:"structured,omitempty"`

	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Tokens   domain.TokenUsage      `json:"tokens"`
	Rounds   int                    `json:"rounds"`
	Traces   []domain.ToolCallTrace `json:"tool_calls,omitempty"`

	// VFS — файловая система после всех вызовов инструментов.
	VFS vfs.FS `json:"vfs"`

	// VFSChanged — инструменты изменили VFS.
	VFSChanged bool `json:"vfs_changed,omitempty"`

	FinishReason string `json:"finish_reason,omitempty"`
}

// rawArgs возвращает аргументы как json.RawMessage; невалидный JSON
// сохраняется строкой, чтобы trace оставался сериализуемым.
func rawArgs(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
