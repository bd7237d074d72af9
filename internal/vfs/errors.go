package vfs

import "errors"

var (
	// ErrFileNotFound — файл отсутствует в FS.
	ErrFileNotFound = errors.New("file not found")

	// ErrTextNotFound — old_text не найден в файле.
	ErrTextNotFound = errors.New("old_text not found")

	// ErrUnknownTool — модель вызвала неизвестный инструмент.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments — аргументы инструмента не разобраны.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ToolError — ошибка выполнения инструмента.
//
// Не покидает цикл инструментов: превращается в текстовый результат,
// чтобы модель могла исправиться.
type ToolError struct {
	Tool   string // имя инструмента
	Path   string // путь файла, если применимо
	Err    error  // базовая ошибка
	Detail string // детали (для ErrInvalidArguments)
}

// Error формирует текст, который увидит модель (без префикса "Error: ").
func (e *ToolError) Error() string {
	switch {
	case errors.Is(e.Err, ErrFileNotFound):
		return "file not found: " + e.Path
	case errors.Is(e.Err, ErrTextNotFound):
		return "old_text not found in " + e.Path
	case errors.Is(e.Err, ErrUnknownTool):
		return "unknown tool: " + e.Tool
	case errors.Is(e.Err, ErrInvalidArguments):
		return "invalid arguments for " + e.Tool + ": " + e.Detail
	default:
		return e.Tool + ": " + e.Err.Error()
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ToolError) Unwrap() error {
	return e.Err
}
