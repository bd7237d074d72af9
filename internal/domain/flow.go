package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flow — пользовательский граф вычислений.
//
// Flow — это "рецепт": набор узлов (Node) и рёбер (Edge), описывающих,
// как пользовательский ввод проходит через вызовы модели, ветвления и
// рендеринг до финального результата. Каждый запуск (Run) выполняет
// снимок flow на момент старта.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID string `json:"id"`

	// Name — человекочитаемое имя flow (например, "Designer + Builder").
	Name string `json:"name" validate:"required,max=200"`

	// Nodes — узлы графа в порядке объявления.
	// Порядок важен: при нескольких стартовых узлах выигрывает первый.
	Nodes []Node `json:"nodes" validate:"required,min=1,dive"`

	// Edges — рёбра графа в порядке объявления.
	// Порядок определяет порядок ключей при слиянии входов.
	Edges []Edge `json:"edges" validate:"dive"`

	// InitialVFS — начальное состояние виртуальной файловой системы.
	// Каждый run получает собственную копию.
	InitialVFS map[string]string `json:"initial_vfs,omitempty"`

	// CreatedAt — время создания flow.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// Node возвращает узел по ID или nil.
func (f *Flow) Node(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// Edge — направленная связь между двумя узлами.
type Edge struct {
	// ID — идентификатор ребра.
	ID string `json:"id" validate:"required"`

	// Source — ID узла-источника.
	Source string `json:"source" validate:"required"`

	// Target — ID узла-приёмника.
	Target string `json:"target" validate:"required"`
}

// NodeType — тип узла графа.
type NodeType string

const (
	// NodeTypeUserInput — точка входа, передаёт ввод run без изменений.
	NodeTypeUserInput NodeType = "user-input"

	// NodeTypeAgent — вызов модели с опциональным циклом инструментов.
	NodeTypeAgent NodeType = "agent"

	// NodeTypeStructuredOutput — вызов модели со схемой ответа.
	NodeTypeStructuredOutput NodeType = "structured-output"

	// NodeTypeRouter — условное ветвление.
	NodeTypeRouter NodeType = "router"

	// NodeTypeHTMLRenderer — сборка HTML-документа из VFS.
	NodeTypeHTMLRenderer NodeType = "html-renderer"

	// NodeTypeOutput — терминальный узел.
	NodeTypeOutput NodeType = "output"
)

// Valid возвращает true для известных типов узлов.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeUserInput, NodeTypeAgent, NodeTypeStructuredOutput,
		NodeTypeRouter, NodeTypeHTMLRenderer, NodeTypeOutput:
		return true
	default:
		return false
	}
}

// Node — узел графа.
//
// Config — вариант, соответствующий Type. Набор полей зависит от типа,
// поэтому конфигурация хранится как отдельный тип на каждый вид узла,
// а не как общий мешок опциональных полей.
type Node struct {
	// ID — уникальный в пределах flow идентификатор.
	ID string `json:"id" validate:"required"`

	// Type — тип узла.
	Type NodeType `json:"type" validate:"required"`

	// Label — подпись для редактора.
	Label string `json:"label,omitempty"`

	// Config — конфигурация узла (*AgentConfig, *RouterConfig и т.д.).
	Config NodeConfig `json:"config,omitempty"`
}

// NodeConfig — конфигурация конкретного типа узла.
type NodeConfig interface {
	NodeType() NodeType
}

// ModelConfig — общие настройки узлов, вызывающих модель.
type ModelConfig struct {
	// Provider — имя провайдера: "anthropic", "openai", "google-vertex".
	Provider string `json:"provider,omitempty"`

	// Model — идентификатор модели у провайдера.
	Model string `json:"model,omitempty"`

	// SystemPrompt — системный промпт. Пустой заменяется значением по умолчанию.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MessageTemplate — шаблон сообщения пользователя с {{path}} плейсхолдерами.
	MessageTemplate string `json:"message_template,omitempty"`

	// ToolsEnabled — разрешить модели работать с VFS через инструменты.
	ToolsEnabled bool `json:"tools_enabled,omitempty"`

	// MaxToolIterations — максимальное число раундов с инструментами.
	MaxToolIterations int `json:"max_tool_iterations,omitempty" validate:"gte=0,lte=100"`
}

// EntryConfig — конфигурация узла user-input (пустая).
type EntryConfig struct{}

// AgentConfig — конфигурация узла agent.
type AgentConfig struct {
	ModelConfig
}

// StructuredOutputConfig — конфигурация узла structured-output.
type StructuredOutputConfig struct {
	ModelConfig

	// OutputSchema — JSON Schema ответа в виде строки.
	OutputSchema string `json:"output_schema,omitempty"`
}

// RuleOperator — оператор сравнения в правиле маршрутизации.
type RuleOperator string

const (
	OperatorEquals   RuleOperator = "equals"
	OperatorContains RuleOperator = "contains"
	OperatorGT       RuleOperator = "gt"
	OperatorLT       RuleOperator = "lt"
)

// RoutingRule — одно правило маршрутизации.
type RoutingRule struct {
	// Field — dot-path к полю входных данных (например, "result.category").
	Field string `json:"field" validate:"required"`

	// Operator — оператор сравнения.
	Operator RuleOperator `json:"operator" validate:"required,oneof=equals contains gt lt"`

	// Value — значение для сравнения (всегда строка).
	Value string `json:"value"`

	// Target — ID узла, куда перейти при совпадении.
	Target string `json:"target" validate:"required"`
}

// RouterConfig — конфигурация узла router.
type RouterConfig struct {
	// Rules — правила, проверяемые строго по порядку.
	Rules []RoutingRule `json:"rules,omitempty" validate:"dive"`

	// DefaultTarget — узел по умолчанию, если ни одно правило не сработало.
	DefaultTarget string `json:"default_target,omitempty"`
}

// HTMLRendererConfig — конфигурация узла html-renderer (пустая).
type HTMLRendererConfig struct{}

// OutputConfig — конфигурация узла output (пустая).
type OutputConfig struct{}

func (*EntryConfig) NodeType() NodeType            { return NodeTypeUserInput }
func (*AgentConfig) NodeType() NodeType            { return NodeTypeAgent }
func (*StructuredOutputConfig) NodeType() NodeType { return NodeTypeStructuredOutput }
func (*RouterConfig) NodeType() NodeType           { return NodeTypeRouter }
func (*HTMLRendererConfig) NodeType() NodeType     { return NodeTypeHTMLRenderer }
func (*OutputConfig) NodeType() NodeType           { return NodeTypeOutput }

// NewNodeConfig возвращает пустую конфигурацию для типа узла.
func NewNodeConfig(t NodeType) (NodeConfig, error) {
	switch t {
	case NodeTypeUserInput:
		return &EntryConfig{}, nil
	case NodeTypeAgent:
		return &AgentConfig{}, nil
	case NodeTypeStructuredOutput:
		return &StructuredOutputConfig{}, nil
	case NodeTypeRouter:
		return &RouterConfig{}, nil
	case NodeTypeHTMLRenderer:
		return &HTMLRendererConfig{}, nil
	case NodeTypeOutput:
		return &OutputConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
}

// UnmarshalJSON декодирует config в вариант, соответствующий type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     string          `json:"id"`
		Type   NodeType        `json:"type"`
		Label  string          `json:"label,omitempty"`
		Config json.RawMessage `json:"config,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cfg, err := NewNodeConfig(raw.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("node %s: decode %s config: %w", raw.ID, raw.Type, err)
		}
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Label = raw.Label
	n.Config = cfg
	return nil
}
