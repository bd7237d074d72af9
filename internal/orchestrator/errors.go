package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки исполнителя.
var (
	// ErrNilFlow — flow не передан.
	ErrNilFlow = errors.New("flow is nil")

	// ErrNodeRevisited — курсор вернулся в уже выполненный узел.
	ErrNodeRevisited = errors.New("node visited twice in one run")

	// ErrNodeNotFound — переход указывает на несуществующий узел.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoModelClient — в flow есть LLM-узел, а клиент моделей не задан.
	ErrNoModelClient = errors.New("model client is not configured")
)

// RunError — ошибка, завершившая run.
type RunError struct {
	RunID  string
	NodeID string // пусто, если run упал до первого узла
	Err    error
}

// Error реализует интерфейс error.
func (e *RunError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %s: node %s: %v", e.RunID, e.NodeID, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *RunError) Unwrap() error {
	return e.Err
}
