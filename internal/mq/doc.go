// Package mq связывает API, планировщик и воркеры через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим переподключением
//   - topology.go   — exchanges, очереди и привязки
//   - publisher.go  — публикация сообщений о batch и run
//   - consumer.go   — потребление с ручным ack/nack
//
// Типы сообщений:
//   - batch.requested — batch создан и ждёт воркера
//   - batch.abort     — запрос отмены batch (получает каждый воркер)
//   - run.completed   — run из batch завершён
//
// Exchanges:
//   - shelly.batches — события batch и run
//   - shelly.dlq     — dead letter queue
package mq
