// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище, executor, dispatcher, hub, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging + metrics, recovery, лимит тела)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - sse.go              — Server-Sent Events
//   - dto.go              — Data Transfer Objects (request/response)
//   - flow_handler.go     — обработчики для /flows
//   - run_handler.go      — обработчики для /runs
//   - batch_handler.go    — обработчики для /batches и /input-sets
//   - schedule_handler.go — обработчики для /schedules
//
// API предоставляет REST endpoints для управления flows, runs, batches и
// schedules, а также поток событий выполняющегося run.
package api
