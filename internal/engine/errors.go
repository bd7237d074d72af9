package engine

import (
	"errors"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// Ошибки валидации графа.
var (
	// ErrEmptyNodes — flow не содержит узлов.
	ErrEmptyNodes = errors.New("flow has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownEndpoint — ребро ссылается на несуществующий узел.
	ErrUnknownEndpoint = errors.New("edge references unknown node")

	// ErrUnknownRouteTarget — правило маршрутизации ссылается на несуществующий узел.
	ErrUnknownRouteTarget = errors.New("routing rule references unknown node")

	// ErrCyclicDependency — обнаружен цикл в графе.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrNoStartNode — в графе нет узла без входящих рёбер.
	ErrNoStartNode = errors.New("flow has no start nodes")

	// ErrConfigMismatch — Config не соответствует Type узла.
	ErrConfigMismatch = errors.New("node config does not match node type")
)

// Ошибки парсинга.
var (
	// ErrParseFlow — документ flow не удалось разобрать.
	ErrParseFlow = errors.New("flow parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку и общий маркер валидации.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrValidation}
	}
	return []error{e.Err, domain.ErrValidation}
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
