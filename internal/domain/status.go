package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted — run дошёл до конца без ошибок.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — выполнение узла завершилось ошибкой.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// BatchStatus — статус batch.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ ABORTED (отмена запрошена и хотя бы одна задача пропущена)
//	                  ↘ FAILED  (сбой самого раннера, не отдельных run)
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusAborted   BatchStatus = "aborted"
	BatchStatusFailed    BatchStatus = "failed"
)

// IsTerminal возвращает true, если batch завершён.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusAborted, BatchStatusFailed:
		return true
	default:
		return false
	}
}

// ParseBatchStatus парсит строку в BatchStatus.
func ParseBatchStatus(s string) BatchStatus {
	switch s {
	case "running":
		return BatchStatusRunning
	case "completed":
		return BatchStatusCompleted
	case "aborted":
		return BatchStatusAborted
	case "failed":
		return BatchStatusFailed
	default:
		return BatchStatusPending
	}
}
