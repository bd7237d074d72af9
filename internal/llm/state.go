package llm

// LoopState — состояние цикла инструментов.
type LoopState string

const (
	StateRequesting          LoopState = "requesting"
	StateStreamingText       LoopState = "streaming_text"
	StateAwaitingToolResults LoopState = "awaiting_tool_results"
	StateDone                LoopState = "done"
	StateFailed              LoopState = "failed"
)

// IsTerminal возвращает true для Done и Failed.
func (s LoopState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions — допустимые переходы.
var transitions = map[LoopState][]LoopState{
	StateRequesting:          {StateStreamingText, StateFailed},
	StateStreamingText:       {StateDone, StateAwaitingToolResults, StateFailed},
	StateAwaitingToolResults: {StateRequesting, StateFailed},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to LoopState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
