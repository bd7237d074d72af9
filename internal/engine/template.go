package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// InputToken — плейсхолдер, подставляющий весь вход узла.
const InputToken = "input"

// placeholderRe находит {{path}} плейсхолдеры: идентификаторы, точки, '|' и '-'.
var placeholderRe = regexp.MustCompile(`\{\{([\w.|-]+)\}\}`)

// Interpolate рендерит {{path}} плейсхолдеры шаблона против data.
//
// Правила:
//   - {{input}} — весь вход: строка как есть, иначе JSON;
//   - {{a.b.c}} — значение по dot-path в data (строка как есть, иначе JSON);
//   - неразрешённый плейсхолдер остаётся в тексте без изменений.
//
// Пустой шаблон рендерится в сам вход.
func Interpolate(template string, data any) string {
	if template == "" {
		return Stringify(data)
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		key := token[2 : len(token)-2]

		if key == InputToken {
			return Stringify(data)
		}
		if value, ok := ResolvePath(data, key); ok {
			return Stringify(value)
		}
		return token
	})
}

// Placeholders возвращает ключи всех плейсхолдеров шаблона в порядке появления.
func Placeholders(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

// ResolvePath разрешает dot-path в объекте.
//
// Поддерживаются map[string]any, map[string]string, MergedInput
// и числовые индексы в []any. Для любых других значений путь не разрешается.
func ResolvePath(data any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			current = next
		case MergedInput:
			next, ok := v.Get(part)
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Stringify приводит значение к строке: строки как есть, остальное — компактный JSON.
// HTML-символы не экранируются, чтобы разметка проходила через шаблоны без изменений.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// StringifyIndent — как Stringify, но с отступами для JSON.
func StringifyIndent(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
