package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// validate — общий экземпляр валидатора (кэширует метаданные структур).
var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseFlow разбирает flow из JSON и валидирует его.
func ParseFlow(data []byte) (*domain.Flow, error) {
	var flow domain.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFlow, err)
	}
	if err := Validate(&flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// ParseFlowYAML разбирает flow из YAML.
//
// YAML сначала декодируется в обобщённое дерево и перекодируется в JSON,
// чтобы узлы проходили тот же путь декодирования вариантов конфигурации.
func ParseFlowYAML(data []byte) (*domain.Flow, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFlow, err)
	}
	jsonData, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFlow, err)
	}
	return ParseFlow(jsonData)
}

// ParseFlowAuto выбирает JSON или YAML по первому значимому символу.
func ParseFlowAuto(data []byte) (*domain.Flow, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return ParseFlow(data)
	}
	return ParseFlowYAML(data)
}

// MarshalFlowYAML сериализует flow в YAML (через JSON-представление,
// чтобы ключи совпадали с JSON API).
func MarshalFlowYAML(flow *domain.Flow) ([]byte, error) {
	jsonData, err := json.Marshal(flow)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(jsonData, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}

// Validate выполняет полную валидацию flow.
//
// Проверяет:
//   - Теги структур (обязательные поля, операторы правил)
//   - Уникальность ID узлов и известность типов
//   - Соответствие Config типу узла
//   - Существование концов рёбер и целей маршрутизации
//   - Отсутствие циклов (делегируется Graph)
func Validate(flow *domain.Flow) error {
	if flow == nil || len(flow.Nodes) == 0 {
		return NewValidationError("", "nodes", "flow has no nodes", ErrEmptyNodes)
	}

	if err := validate.Struct(flow); err != nil {
		return structError("", err)
	}

	nodeIDs := make(map[string]bool, len(flow.Nodes))
	for i := range flow.Nodes {
		if err := ValidateNode(&flow.Nodes[i], nodeIDs); err != nil {
			return err
		}
	}

	for i := range flow.Nodes {
		node := &flow.Nodes[i]
		router, ok := node.Config.(*domain.RouterConfig)
		if !ok {
			continue
		}
		for _, rule := range router.Rules {
			if !nodeIDs[rule.Target] {
				return NewValidationError(node.ID, "rules",
					fmt.Sprintf("rule targets unknown node: %s", rule.Target), ErrUnknownRouteTarget)
			}
		}
		if router.DefaultTarget != "" && !nodeIDs[router.DefaultTarget] {
			return NewValidationError(node.ID, "default_target",
				fmt.Sprintf("default target is unknown node: %s", router.DefaultTarget), ErrUnknownRouteTarget)
		}
	}

	if _, err := NewGraph(flow); err != nil {
		return err
	}
	return nil
}

// ValidateNode валидирует один узел.
// nodeIDs — уже встреченные ID узлов (для проверки уникальности).
func ValidateNode(node *domain.Node, nodeIDs map[string]bool) error {
	if node.ID == "" {
		return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
	}
	if nodeIDs[node.ID] {
		return NewValidationError(node.ID, "id",
			fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
	}
	nodeIDs[node.ID] = true

	if !node.Type.Valid() {
		return NewValidationError(node.ID, "type",
			fmt.Sprintf("unknown node type: %s", node.Type), domain.ErrUnknownNodeType)
	}

	if node.Config == nil {
		cfg, err := domain.NewNodeConfig(node.Type)
		if err != nil {
			return NewValidationError(node.ID, "type", err.Error(), err)
		}
		node.Config = cfg
	}
	if node.Config.NodeType() != node.Type {
		return NewValidationError(node.ID, "config",
			fmt.Sprintf("config for %s attached to %s node", node.Config.NodeType(), node.Type), ErrConfigMismatch)
	}

	if err := validate.Struct(node.Config); err != nil {
		return structError(node.ID, err)
	}
	return nil
}

// structError преобразует ошибки validator в ValidationError.
func structError(nodeID string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(nodeID, "", err.Error(), err)
	}

	fe := verrs[0]
	msg := fmt.Sprintf("field %s failed %q", fe.Namespace(), fe.Tag())
	if fe.Param() != "" {
		msg += " (" + fe.Param() + ")"
	}
	return NewValidationError(nodeID, fe.Field(), msg, err)
}
