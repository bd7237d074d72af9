// Package scheduler запускает регрессионные batches по расписанию.
//
// На каждом тике Scheduler выбирает расписания с истекшим next_due_at,
// создаёт по каждому batch (flows × входы набора) и передаёт его
// Dispatcher: в очередь воркеров или в локальный batch.Manager.
//
// ID batch выводится из ID расписания и времени срабатывания, поэтому
// повторная обработка того же срабатывания (например, после сбоя до
// обновления расписания) не создаёт второй batch.
//
// Когда хранилище — Postgres, тики выполняет только лидер, выбранный
// через pg_try_advisory_lock (repo.AdvisoryLock).
package scheduler
