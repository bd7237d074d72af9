package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeBatches Exchange = "shelly.batches"
	ExchangeDLQ     Exchange = "shelly.dlq"
)

// Queues.
const (
	QueueBatchesRequested Queue = "batches.requested"
	QueueRunsCompleted    Queue = "runs.completed"
	QueueDLQBatches       Queue = "dlq.batches"

	// queueAbortPrefix — префикс очереди отмены конкретного воркера.
	queueAbortPrefix = "batches.abort."
)

// Routing keys.
const (
	RoutingKeyBatchRequested RoutingKey = "batch.requested"
	RoutingKeyBatchAbort     RoutingKey = "batch.abort"
	RoutingKeyRunCompleted   RoutingKey = "run.completed"
	RoutingKeyDLQBatches     RoutingKey = "batches"
)

// AbortQueue возвращает имя очереди отмены для воркера workerID.
//
// Batch выполняется одним воркером, но какой именно, отправитель не знает,
// поэтому batch.abort доставляется в очередь каждого воркера.
func AbortQueue(workerID string) Queue {
	return Queue(queueAbortPrefix + workerID)
}

// SetupTopology объявляет общую топологию.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// DeclareAbortQueue объявляет очередь отмены воркера. Очередь удаляется
// брокером, когда воркер отключается, поэтому её нужно объявлять заново
// после каждого переподключения (см. ConsumerConfig.Declare).
func DeclareAbortQueue(workerID string) func(ch *amqp.Channel) error {
	return func(ch *amqp.Channel) error {
		q := AbortQueue(workerID)
		_, err := ch.QueueDeclare(
			string(q), // name
			false,     // durable
			true,      // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(string(q), string(RoutingKeyBatchAbort), string(ExchangeBatches), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
		return nil
	}
}

func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeBatches, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQBatches),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// batches.requested — отвергнутые запросы уходят в DLQ
		{QueueBatchesRequested, dlqArgs},
		{QueueRunsCompleted, nil},
		{QueueDLQBatches, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueBatchesRequested, RoutingKeyBatchRequested, ExchangeBatches},
		{QueueRunsCompleted, RoutingKeyRunCompleted, ExchangeBatches},
		{QueueDLQBatches, RoutingKeyDLQBatches, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Shelly RabbitMQ Topology:

    shelly.batches (direct)
    ├── batches.requested [routing: batch.requested]
    │       Consumer: Worker
    │       DLQ: dlq.batches
    ├── batches.abort.<worker> [routing: batch.abort]
    │       Consumer: each Worker (auto-delete)
    └── runs.completed [routing: run.completed]
            Consumer: external observers

    shelly.dlq (direct)
    └── dlq.batches [routing: batches]
            Manual processing
  `
}
