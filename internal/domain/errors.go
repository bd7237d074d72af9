package domain

import "errors"

var (
	// ErrUnknownNodeType — тип узла не поддерживается.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrValidation — общий маркер ошибок валидации (графа, схемы, запроса).
	// Типизированные ошибки валидации из engine и llm оборачивают его,
	// чтобы вызывающий код мог проверять errors.Is(err, ErrValidation).
	ErrValidation = errors.New("validation failed")
)
