// Package batch выполняет flows по декартову произведению flows × inputs.
//
// Задачи строятся в порядке flow-major: все входы первого flow, затем все
// входы второго и т.д. Одновременно выполняется не больше Concurrency задач
// (по умолчанию 3). Каждый run получает собственную копию VFS и карту
// выходов, поэтому задачи ничего не разделяют.
//
// Отмена рекомендательная: Abort только запрещает допуск новых задач,
// уже запущенные run доходят до конца.
//
// Статусы batch:
//
//	pending → running → completed
//	                  ↘ aborted (отмена и хотя бы одна задача пропущена)
//	                  ↘ failed  (сбой самого раннера, например записи в хранилище)
//
// Ошибка отдельного run не останавливает batch: она записывается в run.
package batch
