package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// GraphNode — узел в индексе графа.
type GraphNode struct {
	// Node — определение узла из flow.
	Node *domain.Node

	// ID — идентификатор узла.
	ID string

	// InDegree — количество входящих рёбер.
	InDegree int

	// Sources — источники входящих рёбер в порядке объявления рёбер.
	Sources []string

	// Targets — приёмники исходящих рёбер в порядке объявления рёбер.
	Targets []string
}

// Graph — неизменяемый индекс смежности flow.
//
// Строится один раз на run и дальше только читается.
type Graph struct {
	flow  *domain.Flow
	nodes map[string]*GraphNode
	order []*GraphNode // порядок объявления
}

// NewGraph строит Graph из flow.
//
// Проверяет, что концы рёбер существуют и что граф ацикличен
// (алгоритм Кана). Цикл даёт ErrCyclicDependency: обход курсором
// по циклу никогда бы не завершился.
func NewGraph(flow *domain.Flow) (*Graph, error) {
	if flow == nil || len(flow.Nodes) == 0 {
		return nil, NewValidationError("", "nodes", "flow has no nodes", ErrEmptyNodes)
	}

	g := &Graph{
		flow:  flow,
		nodes: make(map[string]*GraphNode, len(flow.Nodes)),
		order: make([]*GraphNode, 0, len(flow.Nodes)),
	}

	for i := range flow.Nodes {
		node := &flow.Nodes[i]
		if node.ID == "" {
			return nil, NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
		}
		if _, exists := g.nodes[node.ID]; exists {
			return nil, NewValidationError(node.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
		}
		gn := &GraphNode{Node: node, ID: node.ID}
		g.nodes[node.ID] = gn
		g.order = append(g.order, gn)
	}

	for _, edge := range flow.Edges {
		from, ok := g.nodes[edge.Source]
		if !ok {
			return nil, NewValidationError("", "edges",
				fmt.Sprintf("edge %s: unknown source %s", edge.ID, edge.Source), ErrUnknownEndpoint)
		}
		to, ok := g.nodes[edge.Target]
		if !ok {
			return nil, NewValidationError("", "edges",
				fmt.Sprintf("edge %s: unknown target %s", edge.ID, edge.Target), ErrUnknownEndpoint)
		}
		from.Targets = append(from.Targets, to.ID)
		to.Sources = append(to.Sources, from.ID)
		to.InDegree++
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.nodes))
	queue := make([]*GraphNode, 0)
	for _, node := range g.order {
		inDegree[node.ID] = node.InDegree
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++

		for _, target := range node.Targets {
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, g.nodes[target])
			}
		}
	}

	if visited != len(g.nodes) {
		return NewValidationError("", "edges", "graph contains a cycle", ErrCyclicDependency)
	}
	return nil
}

// Flow возвращает исходный flow.
func (g *Graph) Flow() *domain.Flow {
	return g.flow
}

// Node возвращает узел по ID или nil.
func (g *Graph) Node(id string) *domain.Node {
	if gn, ok := g.nodes[id]; ok {
		return gn.Node
	}
	return nil
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// StartNodes возвращает узлы без входящих рёбер в порядке объявления.
func (g *Graph) StartNodes() []*domain.Node {
	starts := make([]*domain.Node, 0, 1)
	for _, gn := range g.order {
		if gn.InDegree == 0 {
			starts = append(starts, gn.Node)
		}
	}
	return starts
}

// Entry возвращает точку входа: первый стартовый узел в порядке объявления.
// Остальные стартовые узлы возвращаются во втором значении.
func (g *Graph) Entry() (*domain.Node, []*domain.Node, error) {
	starts := g.StartNodes()
	if len(starts) == 0 {
		return nil, nil, NewValidationError("", "edges", "flow has no start nodes", ErrNoStartNode)
	}
	return starts[0], starts[1:], nil
}

// Adjacent возвращает приёмники исходящих рёбер в порядке объявления.
func (g *Graph) Adjacent(id string) []string {
	if gn, ok := g.nodes[id]; ok {
		return gn.Targets
	}
	return nil
}

// Incoming возвращает источники входящих рёбер в порядке объявления.
func (g *Graph) Incoming(id string) []string {
	if gn, ok := g.nodes[id]; ok {
		return gn.Sources
	}
	return nil
}

// ResolveInput вычисляет вход узла.
//
//   - нет входящих рёбер — вход run верхнего уровня;
//   - одно ребро — записанный выход источника;
//   - несколько — MergedInput, ключи которого — ID источников в порядке рёбер.
//
// Источники, которые ещё не выполнялись (например, отрезанные router),
// пропускаются. Если не выполнился ни один, используется вход run.
func (g *Graph) ResolveInput(id string, outputs map[string]any, topLevel any) any {
	sources := g.Incoming(id)

	switch len(sources) {
	case 0:
		return topLevel
	case 1:
		if out, ok := outputs[sources[0]]; ok {
			return out
		}
		return topLevel
	}

	merged := MergedInput{Values: make(map[string]any, len(sources))}
	for _, src := range sources {
		out, ok := outputs[src]
		if !ok {
			continue
		}
		if _, seen := merged.Values[src]; !seen {
			merged.Keys = append(merged.Keys, src)
		}
		merged.Values[src] = out
	}
	if len(merged.Keys) == 0 {
		return topLevel
	}
	return merged
}

// MergedInput — объединённые выходы нескольких источников.
//
// Keys хранит порядок объявления рёбер, чтобы сериализация была
// детерминированной и совпадала с порядком в графе.
type MergedInput struct {
	Keys   []string
	Values map[string]any
}

// Get возвращает выход источника.
func (m MergedInput) Get(key string) (any, bool) {
	v, ok := m.Values[key]
	return v, ok
}

// MarshalJSON сериализует объект с ключами в порядке рёбер.
func (m MergedInput) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.Values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
