package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

func node(id string, t domain.NodeType) domain.Node {
	cfg, _ := domain.NewNodeConfig(t)
	return domain.Node{ID: id, Type: t, Config: cfg}
}

func edge(src, dst string) domain.Edge {
	return domain.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func TestNewGraph_SimpleChain(t *testing.T) {
	flow := &domain.Flow{
		Name: "chain",
		Nodes: []domain.Node{
			node("A", domain.NodeTypeUserInput),
			node("B", domain.NodeTypeAgent),
			node("C", domain.NodeTypeOutput),
		},
		Edges: []domain.Edge{edge("A", "B"), edge("B", "C")},
	}

	g, err := NewGraph(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}

	starts := g.StartNodes()
	if len(starts) != 1 || starts[0].ID != "A" {
		t.Errorf("expected single start node A, got %v", starts)
	}

	if adj := g.Adjacent("A"); len(adj) != 1 || adj[0] != "B" {
		t.Errorf("expected A -> [B], got %v", adj)
	}
	if in := g.Incoming("C"); len(in) != 1 || in[0] != "B" {
		t.Errorf("expected C <- [B], got %v", in)
	}
}

func TestNewGraph_Cycle(t *testing.T) {
	flow := &domain.Flow{
		Name: "cycle",
		Nodes: []domain.Node{
			node("A", domain.NodeTypeUserInput),
			node("B", domain.NodeTypeAgent),
			node("C", domain.NodeTypeAgent),
		},
		Edges: []domain.Edge{edge("A", "B"), edge("B", "C"), edge("C", "B")},
	}

	_, err := NewGraph(flow)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Error("cycle error should be a validation error")
	}
}

func TestNewGraph_UnknownEndpoint(t *testing.T) {
	flow := &domain.Flow{
		Name:  "dangling",
		Nodes: []domain.Node{node("A", domain.NodeTypeUserInput)},
		Edges: []domain.Edge{edge("A", "ghost")},
	}

	_, err := NewGraph(flow)
	if !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("expected ErrUnknownEndpoint, got %v", err)
	}
}

func TestGraph_EntryPicksFirstDeclared(t *testing.T) {
	flow := &domain.Flow{
		Name: "two-starts",
		Nodes: []domain.Node{
			node("second", domain.NodeTypeUserInput),
			node("first", domain.NodeTypeUserInput),
			node("out", domain.NodeTypeOutput),
		},
		Edges: []domain.Edge{edge("first", "out"), edge("second", "out")},
	}

	g, err := NewGraph(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ignored, err := g.Entry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != "second" {
		t.Errorf("expected entry 'second' (declaration order), got %s", entry.ID)
	}
	if len(ignored) != 1 || ignored[0].ID != "first" {
		t.Errorf("expected 'first' to be ignored, got %v", ignored)
	}
}

// --- ResolveInput Tests ---

func TestResolveInput(t *testing.T) {
	// A → C, B → C, C → D
	flow := &domain.Flow{
		Name: "merge",
		Nodes: []domain.Node{
			node("A", domain.NodeTypeUserInput),
			node("B", domain.NodeTypeUserInput),
			node("C", domain.NodeTypeAgent),
			node("D", domain.NodeTypeOutput),
		},
		Edges: []domain.Edge{edge("B", "C"), edge("A", "C"), edge("C", "D")},
	}
	g, err := NewGraph(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs := map[string]any{"A": "from-a", "B": map[string]any{"x": 1.0}, "C": "from-c"}

	if got := g.ResolveInput("A", outputs, "top"); got != "top" {
		t.Errorf("start node should get top-level input, got %v", got)
	}
	if got := g.ResolveInput("D", outputs, "top"); got != "from-c" {
		t.Errorf("single edge should pass source output, got %v", got)
	}

	merged, ok := g.ResolveInput("C", outputs, "top").(MergedInput)
	if !ok {
		t.Fatalf("expected MergedInput, got %T", g.ResolveInput("C", outputs, "top"))
	}
	if len(merged.Keys) != 2 || merged.Keys[0] != "B" || merged.Keys[1] != "A" {
		t.Errorf("keys should follow edge order [B A], got %v", merged.Keys)
	}
	if merged.Values["A"] != "from-a" {
		t.Errorf("expected A output, got %v", merged.Values["A"])
	}

	data, err := json.Marshal(merged)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"B":{"x":1},"A":"from-a"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestResolveInput_UnvisitedSourceFallsBack(t *testing.T) {
	flow := &domain.Flow{
		Name: "fallback",
		Nodes: []domain.Node{
			node("A", domain.NodeTypeUserInput),
			node("B", domain.NodeTypeOutput),
		},
		Edges: []domain.Edge{edge("A", "B")},
	}
	g, err := NewGraph(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := g.ResolveInput("B", map[string]any{}, "top"); got != "top" {
		t.Errorf("expected fallback to top-level input, got %v", got)
	}
}
