package llm

import (
	"errors"
	"fmt"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

var (
	// ErrUnknownProvider — провайдер не зарегистрирован.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidSchema — схема ответа не является JSON объектом.
	ErrInvalidSchema = errors.New("invalid output schema JSON")

	// ErrMissingCredentials — для провайдера нет ключа.
	ErrMissingCredentials = errors.New("missing provider credentials")
)

// ValidationError — запрос отклонён до обращения к провайдеру.
type ValidationError struct {
	Field string
	Err   error
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("llm request %s: %v", e.Field, e.Err)
}

// Unwrap возвращает базовую ошибку и общий маркер валидации.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, domain.ErrValidation}
}

// TransportError — сбой сети или провайдера. Повторов на этом уровне нет.
type TransportError struct {
	Provider string
	Round    int
	Err      error
}

// Error реализует интерфейс error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s (round %d): %v", e.Provider, e.Round, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *TransportError) Unwrap() error {
	return e.Err
}
