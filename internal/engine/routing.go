package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// RouteSource — откуда взялась цель маршрутизации.
type RouteSource string

const (
	RouteSourceRule     RouteSource = "rule"
	RouteSourceDefault  RouteSource = "default"
	RouteSourceAdjacent RouteSource = "adjacent"
	RouteSourceNone     RouteSource = "none"
)

// RouteResult — итог вычисления router-узла.
type RouteResult struct {
	// Target — ID следующего узла; пусто, если ветка завершается.
	Target string

	// Source — что выбрало Target.
	Source RouteSource

	// RuleIndex — индекс сработавшего правила или -1.
	RuleIndex int

	// Input — вход после JSON-декодирования строк.
	Input any
}

// Output возвращает выход router-узла: {"routedTo": id|null}.
func (r RouteResult) Output() map[string]any {
	if r.Target == "" {
		return map[string]any{"routedTo": nil}
	}
	return map[string]any{"routedTo": r.Target}
}

// Route вычисляет правила router-узла.
//
// Правила проверяются строго по порядку, первое совпадение выигрывает.
// Если ничего не совпало: DefaultTarget, затем первое исходящее ребро,
// иначе ветка завершается.
func Route(cfg *domain.RouterConfig, input any, adjacent []string) RouteResult {
	data := ParseRouterInput(input)
	result := RouteResult{RuleIndex: -1, Input: data, Source: RouteSourceNone}

	if cfg != nil {
		for i, rule := range cfg.Rules {
			if EvaluateRule(rule, data) {
				result.Target = rule.Target
				result.Source = RouteSourceRule
				result.RuleIndex = i
				return result
			}
		}

		if cfg.DefaultTarget != "" {
			result.Target = cfg.DefaultTarget
			result.Source = RouteSourceDefault
			return result
		}
	}

	if len(adjacent) > 0 {
		result.Target = adjacent[0]
		result.Source = RouteSourceAdjacent
	}
	return result
}

// ParseRouterInput декодирует строковый вход как JSON; при ошибке оставляет строку.
func ParseRouterInput(input any) any {
	s, ok := input.(string)
	if !ok {
		return input
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return input
	}
	return decoded
}

// EvaluateRule проверяет одно правило против данных.
//
// Не-объектный вход не совпадает ни с одним правилом. Отсутствующее или
// null поле сравнивается как пустая строка. equals/contains сравнивают
// строки без учёта регистра; gt/lt сравнивают числа: пустая строка
// считается нулём, нечисловой операнд даёт NaN, и сравнение ложно.
func EvaluateRule(rule domain.RoutingRule, data any) bool {
	if !isObject(data) {
		return false
	}

	var field string
	if value, ok := ResolvePath(data, rule.Field); ok {
		field = fieldString(value)
	}

	switch rule.Operator {
	case domain.OperatorEquals:
		return strings.EqualFold(field, rule.Value)
	case domain.OperatorContains:
		return strings.Contains(strings.ToLower(field), strings.ToLower(rule.Value))
	case domain.OperatorGT:
		return toNumber(field) > toNumber(rule.Value)
	case domain.OperatorLT:
		return toNumber(field) < toNumber(rule.Value)
	default:
		return false
	}
}

func isObject(v any) bool {
	switch v.(type) {
	case map[string]any, map[string]string, MergedInput, []any:
		return true
	default:
		return false
	}
}

// fieldString приводит значение поля к строке для сравнения.
func fieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return Stringify(val)
	}
}

// toNumber парсит число. Пустая строка (в том числе из пробелов) — 0,
// нечисловая — NaN.
func toNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
