package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// fakeAck запоминает, как было подтверждено сообщение.
type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ConsumerConfig{
		Queue:   QueueBatchesRequested,
		Handler: h,
	})
}

func delivery(t *testing.T, msg *Message, redelivered bool) (amqp.Delivery, *fakeAck) {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ack := &fakeAck{}
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}, ack
}

// --- Consumer Tests ---

func TestHandleDelivery_Ack(t *testing.T) {
	var got BatchRequestedPayload
	c := newTestConsumer(func(_ context.Context, d *Delivery) error {
		var err error
		got, err = ParsePayload[BatchRequestedPayload](&d.Message)
		return err
	})

	raw, ack := delivery(t, NewMessage(MessageTypeBatchRequested, BatchRequestedPayload{BatchID: "b1", ScheduleID: "s1"}), false)
	c.handleDelivery(context.Background(), raw)

	if !ack.acked || ack.nacked {
		t.Errorf("expected ack, got %+v", ack)
	}
	if got.BatchID != "b1" || got.ScheduleID != "s1" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHandleDelivery_Requeue(t *testing.T) {
	c := newTestConsumer(func(context.Context, *Delivery) error { return errors.New("db down") })

	// Первая неудача — обратно в очередь.
	raw, ack := delivery(t, NewMessage(MessageTypeBatchRequested, BatchRequestedPayload{BatchID: "b1"}), false)
	c.handleDelivery(context.Background(), raw)
	if !ack.nacked || !ack.requeue {
		t.Errorf("expected nack with requeue, got %+v", ack)
	}

	// Повторная — в DLQ.
	raw, ack = delivery(t, NewMessage(MessageTypeBatchRequested, BatchRequestedPayload{BatchID: "b1"}), true)
	c.handleDelivery(context.Background(), raw)
	if !ack.nacked || ack.requeue {
		t.Errorf("expected nack without requeue on redelivery, got %+v", ack)
	}
}

func TestHandleDelivery_Permanent(t *testing.T) {
	c := newTestConsumer(func(context.Context, *Delivery) error {
		return errors.Join(ErrPermanent, errors.New("batch not found"))
	})

	raw, ack := delivery(t, NewMessage(MessageTypeBatchRequested, BatchRequestedPayload{BatchID: "b1"}), false)
	c.handleDelivery(context.Background(), raw)
	if !ack.nacked || ack.requeue {
		t.Errorf("expected dead-lettering, got %+v", ack)
	}
}

func TestHandleDelivery_MalformedBody(t *testing.T) {
	called := false
	c := newTestConsumer(func(context.Context, *Delivery) error { called = true; return nil })

	ack := &fakeAck{}
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{oops")})

	if called {
		t.Error("handler must not be called for malformed body")
	}
	if !ack.nacked || ack.requeue {
		t.Errorf("expected dead-lettering, got %+v", ack)
	}
}

// --- Payload Tests ---

func TestParsePayload_WrongShape(t *testing.T) {
	msg := &Message{Type: MessageTypeBatchAbort, Payload: map[string]any{"batch_id": 42.0}}

	_, err := ParsePayload[BatchAbortPayload](msg)
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("expected ErrPermanent, got %v", err)
	}
}

func TestRunCompleted(t *testing.T) {
	run := &domain.Run{
		ID:      "r1",
		FlowID:  "f1",
		BatchID: "b1",
		Status:  domain.RunStatusCompleted,
		Tokens:  domain.TokenUsage{Input: 10, Output: 5, Total: 15},
		CostUSD: 0.5,
	}

	p := RunCompleted(run, domain.Progress{Completed: 2, Total: 4})
	if p.RunID != "r1" || p.BatchID != "b1" || p.FlowID != "f1" || p.Tokens != 15 {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.Completed != 2 || p.Total != 4 {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestAbortQueue(t *testing.T) {
	if q := AbortQueue("w-1"); q != "batches.abort.w-1" {
		t.Errorf("unexpected queue name: %s", q)
	}
}
