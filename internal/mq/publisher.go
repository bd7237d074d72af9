package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeBatchRequested MessageType = "batch.requested"
	MessageTypeBatchAbort     MessageType = "batch.abort"
	MessageTypeRunCompleted   MessageType = "run.completed"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// BatchRequestedPayload — batch сохранён в статусе PENDING и ждёт воркера.
type BatchRequestedPayload struct {
	BatchID string `json:"batch_id"`

	// ScheduleID — расписание, создавшее batch (пусто для ручного запуска).
	ScheduleID string `json:"schedule_id,omitempty"`
}

// BatchAbortPayload — запрос отмены batch.
type BatchAbortPayload struct {
	BatchID string `json:"batch_id"`
}

// RunCompletedPayload — итог одного run из batch.
type RunCompletedPayload struct {
	RunID   string           `json:"run_id"`
	BatchID string           `json:"batch_id"`
	FlowID  string           `json:"flow_id"`
	Status  domain.RunStatus `json:"status"`
	Tokens  int              `json:"tokens"`
	CostUSD float64          `json:"cost_usd"`

	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// RunCompleted собирает payload из run и прогресса batch.
func RunCompleted(run *domain.Run, progress domain.Progress) RunCompletedPayload {
	return RunCompletedPayload{
		RunID:     run.ID,
		BatchID:   run.BatchID,
		FlowID:    run.FlowID,
		Status:    run.Status,
		Tokens:    run.Tokens.Total,
		CostUSD:   run.CostUSD,
		Completed: progress.Completed,
		Total:     progress.Total,
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishBatchRequested ставит batch в очередь воркеров.
func (p *Publisher) PublishBatchRequested(ctx context.Context, payload BatchRequestedPayload) error {
	return p.Publish(ctx, ExchangeBatches, RoutingKeyBatchRequested, NewMessage(MessageTypeBatchRequested, payload))
}

// PublishBatchAbort рассылает запрос отмены всем воркерам.
func (p *Publisher) PublishBatchAbort(ctx context.Context, batchID string) error {
	return p.Publish(ctx, ExchangeBatches, RoutingKeyBatchAbort,
		NewMessage(MessageTypeBatchAbort, BatchAbortPayload{BatchID: batchID}))
}

// PublishRunCompleted публикует итог run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, payload RunCompletedPayload) error {
	return p.Publish(ctx, ExchangeBatches, RoutingKeyRunCompleted, NewMessage(MessageTypeRunCompleted, payload))
}

// Dispatch реализует batch.Dispatcher: batch уходит в очередь воркеров.
func (p *Publisher) Dispatch(ctx context.Context, b *domain.Batch, _ []domain.Flow, scheduleID string) error {
	return p.PublishBatchRequested(ctx, BatchRequestedPayload{BatchID: b.ID, ScheduleID: scheduleID})
}

// Abort реализует batch.Aborter.
func (p *Publisher) Abort(ctx context.Context, batchID string) error {
	return p.PublishBatchAbort(ctx, batchID)
}
