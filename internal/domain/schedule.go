package domain

import "time"

// Schedule — расписание регрессионных прогонов.
//
// Когда расписание срабатывает, scheduler создаёт Batch по выбранным flows
// и набору входов. Это позволяет регулярно прогонять одни и те же входы
// и сравнивать результаты между версиями промптов.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID string `json:"id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// FlowIDs — flows, которые нужно прогнать.
	FlowIDs []string `json:"flow_ids" validate:"required,min=1"`

	// InputSetID — набор входов для batch.
	InputSetID string `json:"input_set_id" validate:"required"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "0 0 * * 0"     — каждое воскресенье в полночь
	CronExpr string `json:"cron_expr" validate:"required"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию "UTC".
	Timezone string `json:"timezone"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastBatchID — ID последнего созданного batch.
	LastBatchID string `json:"last_batch_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordBatch записывает информацию о запуске.
func (s *Schedule) RecordBatch(batchID string, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastBatchID = batchID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
