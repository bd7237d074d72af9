package vfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Имена инструментов.
const (
	ToolView      = "view"
	ToolEdit      = "edit"
	ToolCreate    = "create_file"
	ToolListFiles = "list_files"
)

// NoFiles — ответ list_files для пустой FS.
const NoFiles = "(no files)"

// Definition — описание инструмента для модели.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Definitions возвращает JSON Schema определения четырёх инструментов.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolView,
			Description: "View the contents of a file with line numbers. Optionally specify a line range.",
			Parameters: object(map[string]any{
				"path": prop("string", "The file path to view"),
				"line_range": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "number"},
					"minItems":    2,
					"maxItems":    2,
					"description": "Optional [start, end] line range (1-indexed, inclusive)",
				},
			}, "path"),
		},
		{
			Name:        ToolEdit,
			Description: "Edit a file by replacing the first occurrence of old_text with new_text.",
			Parameters: object(map[string]any{
				"path":     prop("string", "The file path to edit"),
				"old_text": prop("string", "The text to find and replace"),
				"new_text": prop("string", "The replacement text"),
			}, "path", "old_text", "new_text"),
		},
		{
			Name:        ToolCreate,
			Description: "Create a new file or overwrite an existing file with the given content.",
			Parameters: object(map[string]any{
				"path":    prop("string", "The file path to create"),
				"content": prop("string", "The file content"),
			}, "path", "content"),
		},
		{
			Name:        ToolListFiles,
			Description: "List all files in the virtual filesystem.",
			Parameters:  object(map[string]any{}),
		},
	}
}

func object(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// Аргументы инструментов.
type (
	viewArgs struct {
		Path      *string   `json:"path"`
		LineRange []float64 `json:"line_range"`
	}
	editArgs struct {
		Path    *string `json:"path"`
		OldText *string `json:"old_text"`
		NewText *string `json:"new_text"`
	}
	createArgs struct {
		Path    *string `json:"path"`
		Content *string `json:"content"`
	}
)

// Execute выполняет инструмент и возвращает текстовый результат для модели
// и новую FS. Ошибки инструмента превращаются в строку "Error: ...".
// Исходная fs никогда не изменяется.
func Execute(name string, args json.RawMessage, fs FS) (string, FS) {
	out, next, err := Apply(name, args, fs)
	if err != nil {
		return "Error: " + err.Error(), fs
	}
	return out, next
}

// Apply — как Execute, но возвращает ToolError отдельно.
// При ошибке возвращается исходная fs.
func Apply(name string, args json.RawMessage, fs FS) (string, FS, error) {
	switch name {
	case ToolView:
		var a viewArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return "", fs, err
		}
		if a.Path == nil {
			return "", fs, missing(name, "path")
		}
		out, err := view(fs, *a.Path, a.LineRange)
		return out, fs, err

	case ToolEdit:
		var a editArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return "", fs, err
		}
		switch {
		case a.Path == nil:
			return "", fs, missing(name, "path")
		case a.OldText == nil:
			return "", fs, missing(name, "old_text")
		case a.NewText == nil:
			return "", fs, missing(name, "new_text")
		}
		return edit(fs, *a.Path, *a.OldText, *a.NewText)

	case ToolCreate:
		var a createArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return "", fs, err
		}
		switch {
		case a.Path == nil:
			return "", fs, missing(name, "path")
		case a.Content == nil:
			return "", fs, missing(name, "content")
		}
		return "Successfully created " + *a.Path, fs.With(*a.Path, *a.Content), nil

	case ToolListFiles:
		paths := fs.Paths()
		if len(paths) == 0 {
			return NoFiles, fs, nil
		}
		return strings.Join(paths, "\n"), fs, nil

	default:
		return "", fs, &ToolError{Tool: name, Err: ErrUnknownTool}
	}
}

func decodeArgs(tool string, args json.RawMessage, v any) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &ToolError{Tool: tool, Err: ErrInvalidArguments, Detail: err.Error()}
	}
	return nil
}

func missing(tool, field string) error {
	return &ToolError{Tool: tool, Err: ErrInvalidArguments, Detail: "missing " + field}
}

// view нумерует строки файла, начиная с 1 (или с начала диапазона).
func view(fs FS, path string, lineRange []float64) (string, error) {
	content, ok := fs.Get(path)
	if !ok {
		return "", &ToolError{Tool: ToolView, Path: path, Err: ErrFileNotFound}
	}

	lines := strings.Split(content, "\n")
	start, end := 1, len(lines)
	if len(lineRange) > 0 {
		start = max(1, int(lineRange[0]))
		if len(lineRange) > 1 {
			end = min(len(lines), int(lineRange[1]))
		}
	}
	if start > end {
		return "", nil
	}

	var b strings.Builder
	for i, line := range lines[start-1 : end] {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(start + i))
		b.WriteString(": ")
		b.WriteString(line)
	}
	return b.String(), nil
}

// edit заменяет первое вхождение oldText. Частичных правок не бывает.
func edit(fs FS, path, oldText, newText string) (string, FS, error) {
	content, ok := fs.Get(path)
	if !ok {
		return "", fs, &ToolError{Tool: ToolEdit, Path: path, Err: ErrFileNotFound}
	}
	if !strings.Contains(content, oldText) {
		return "", fs, &ToolError{Tool: ToolEdit, Path: path, Err: ErrTextNotFound}
	}
	updated := strings.Replace(content, oldText, newText, 1)
	return fmt.Sprintf("Successfully edited %s", path), fs.With(path, updated), nil
}
