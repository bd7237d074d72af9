package orchestrator

import (
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/vfs"
)

// RunState — состояние одного run в памяти.
//
// Принадлежит одной горутине: узлы выполняются последовательно,
// поэтому блокировки не нужны.
//
// Содержит:
//   - Run, куда дописываются результаты узлов
//   - Граф flow
//   - Выходы выполненных узлов (nodeID → output)
//   - Текущую VFS run
type RunState struct {
	// Run — run, который заполняется по мере выполнения.
	Run *domain.Run

	// Graph — индекс графа flow.
	Graph *engine.Graph

	// VFS — файловая система run.
	VFS vfs.FS

	// outputs — выходы выполненных узлов.
	outputs map[string]any

	// visited — посещённые узлы.
	visited map[string]bool
}

// NewRunState создаёт состояние run. VFS копируется из flow.InitialVFS.
func NewRunState(run *domain.Run, graph *engine.Graph) *RunState {
	return &RunState{
		Run:     run,
		Graph:   graph,
		VFS:     vfs.New(graph.Flow().InitialVFS),
		outputs: make(map[string]any),
		visited: make(map[string]bool),
	}
}

// Input вычисляет вход узла по входящим рёбрам.
func (s *RunState) Input(nodeID string) any {
	return s.Graph.ResolveInput(nodeID, s.outputs, s.Run.Input)
}

// Visited возвращает true, если узел уже выполнялся.
func (s *RunState) Visited(nodeID string) bool {
	return s.visited[nodeID]
}

// Output возвращает записанный выход узла.
func (s *RunState) Output(nodeID string) (any, bool) {
	out, ok := s.outputs[nodeID]
	return out, ok
}

// Record записывает результат узла. Вызывается ровно один раз на узел.
// Выход упавшего узла в карту выходов не попадает.
func (s *RunState) Record(result domain.NodeResult) {
	s.visited[result.NodeID] = true
	if result.Error == "" {
		s.outputs[result.NodeID] = result.Output
	}
	s.Run.NodeResults = append(s.Run.NodeResults, result)
	s.Run.CostUSD += result.CostUSD
}

// AddTokens прибавляет токены узла к итогам run.
func (s *RunState) AddTokens(usage domain.TokenUsage) {
	s.Run.Tokens.Add(usage)
}

// SetVFS заменяет VFS run новым снимком.
func (s *RunState) SetVFS(next vfs.FS) {
	s.VFS = next
}
