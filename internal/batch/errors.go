package batch

import "errors"

var (
	// ErrAlreadyRunning — batch с таким ID уже выполняется.
	ErrAlreadyRunning = errors.New("batch already running")

	// ErrNotRunning — batch с таким ID не выполняется в этом процессе.
	ErrNotRunning = errors.New("batch not running")

	// ErrNoTasks — пустой список flows или входов.
	ErrNoTasks = errors.New("batch has no tasks")

	// ErrRunnerUsed — Runner уже запускался.
	ErrRunnerUsed = errors.New("runner already used")
)
