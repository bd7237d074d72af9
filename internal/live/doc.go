// Package live рассылает события выполняющихся run наблюдателям (SSE).
//
// Hub хранит историю событий run, поэтому подписчик, пришедший позже,
// сначала получает уже опубликованные события, затем живой поток.
// Подписка закрывается после run_completed или run_failed.
//
// Реализации:
//   - MemoryHub — в пределах одного процесса
//   - RedisHub  — через Redis pub/sub (воркер публикует, API читает)
package live
