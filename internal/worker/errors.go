package worker

import "errors"

// Ошибки воркера.
var (
	// ErrBatchNotFound — batch не найден в хранилище.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchNotPending — batch уже взят в работу или завершён.
	ErrBatchNotPending = errors.New("batch is not in PENDING status")
)
