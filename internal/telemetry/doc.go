// Package telemetry — логи и метрики сервисов Shelly.
//
// Логи: slog, JSON или text (SHELLY_LOG_FORMAT), уровень из SHELLY_LOG_LEVEL.
// Контекст записи добавляется хелперами WithRunID, WithFlowID и т.д.
//
// Метрики: Prometheus (run, узлы, токены, инструменты, batch, HTTP).
// Методы Metrics допускают nil-получатель, поэтому компоненты в тестах
// создаются без метрик.
package telemetry
