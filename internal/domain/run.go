package domain

import (
	"encoding/json"
	"time"
)

// Run — одно выполнение flow от входного узла до завершения.
//
// Run создаётся когда:
//   - Пользователь запускает flow вручную (через API/CLI)
//   - BatchRunner выполняет очередную пару flow × input
//
// Результаты узлов добавляются по мере выполнения и больше не меняются.
// После перехода в COMPLETED или FAILED run неизменяем.
type Run struct {
	// ID — уникальный идентификатор run.
	ID string `json:"id"`

	// FlowID — ссылка на выполняемый flow.
	FlowID string `json:"flow_id"`

	// BatchID — batch, в рамках которого выполнялся run (пусто для ручных запусков).
	BatchID string `json:"batch_id,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Input — ввод верхнего уровня (строка или объект).
	Input any `json:"input"`

	// NodeResults — результаты узлов в порядке посещения.
	NodeResults []NodeResult `json:"node_results"`

	// FinalOutput — итоговый текст. Для FAILED содержит текст ошибки.
	FinalOutput string `json:"final_output"`

	// FinalVFS — состояние VFS после завершения run.
	FinalVFS map[string]string `json:"final_vfs,omitempty"`

	// Tokens — суммарное потребление токенов за run.
	Tokens TokenUsage `json:"tokens"`

	// CostUSD — оценка стоимости run в долларах.
	CostUSD float64 `json:"cost_usd"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения. Nil, пока run выполняется.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkCompleted переводит run в статус COMPLETED.
func (r *Run) MarkCompleted(finalOutput string) {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.FinalOutput = finalOutput
	r.CompletedAt = &now
}

// MarkFailed переводит run в статус FAILED, сохраняя текст ошибки в FinalOutput.
func (r *Run) MarkFailed(errText string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinalOutput = errText
	r.CompletedAt = &now
}

// NodeResult — результат выполнения одного узла.
//
// Записывается ровно один раз на каждый посещённый узел.
type NodeResult struct {
	// NodeID — ID узла.
	NodeID string `json:"node_id"`

	// NodeType — тип узла.
	NodeType NodeType `json:"node_type"`

	// Input — данные, поданные на вход узлу (для LLM-узлов — отрендеренное сообщение).
	Input any `json:"input"`

	// Output — результат узла.
	Output any `json:"output"`

	// TokensUsed — всего токенов (только для узлов, вызывающих модель).
	TokensUsed int `json:"tokens_used,omitempty"`

	// CostUSD — стоимость вызовов модели в узле.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// LatencyMs — время выполнения узла в миллисекундах.
	LatencyMs int64 `json:"latency_ms"`

	// Error — текст ошибки, если узел упал.
	Error string `json:"error,omitempty"`

	// ToolCalls — трасса вызовов инструментов.
	ToolCalls []ToolCallTrace `json:"tool_calls,omitempty"`

	// VFSSnapshot — состояние VFS после узла (только если узел его изменил).
	VFSSnapshot map[string]string `json:"vfs_snapshot,omitempty"`
}

// ToolCallTrace — запись об одном вызове инструмента моделью.
type ToolCallTrace struct {
	// ID — идентификатор вызова, присвоенный моделью.
	ID string `json:"id"`

	// ToolName — имя инструмента: view, edit, create_file, list_files.
	ToolName string `json:"tool_name"`

	// Input — аргументы вызова как JSON.
	Input json.RawMessage `json:"input"`

	// TextOutput — текстовый результат, возвращённый модели.
	TextOutput string `json:"text_output"`

	// Iteration — номер раунда запроса к модели (начиная с 1).
	Iteration int `json:"iteration"`
}

// TokenUsage — счётчики токенов.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add прибавляет other к счётчикам.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Total += other.Total
}
