package domain

import "time"

// Batch — набор run по декартову произведению flows × inputs.
type Batch struct {
	// ID — уникальный идентификатор batch.
	ID string `json:"id"`

	// Name — имя для отображения.
	Name string `json:"name,omitempty"`

	// FlowIDs — выбранные flows (порядок определяет порядок задач).
	FlowIDs []string `json:"flow_ids" validate:"required,min=1,dive,required"`

	// InputSetID — набор входов, из которого взяты Inputs (опционально).
	InputSetID string `json:"input_set_id,omitempty"`

	// Inputs — входные записи.
	Inputs []string `json:"inputs" validate:"required,min=1"`

	// RunIDs — созданные run в порядке завершения.
	RunIDs []string `json:"run_ids"`

	// Progress — счётчики выполнения.
	Progress Progress `json:"progress"`

	// Status — текущий статус.
	Status BatchStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress — прогресс batch.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Finish переводит batch в финальный статус.
func (b *Batch) Finish(status BatchStatus) {
	now := time.Now()
	b.Status = status
	b.CompletedAt = &now
}

// InputSet — именованный список входов для batch.
type InputSet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Inputs    []string  `json:"inputs" validate:"required,min=1"`
	CreatedAt time.Time `json:"created_at"`
}
