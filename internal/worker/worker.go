package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// RunPublisher публикует итоги run (реализуется *mq.Publisher).
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, payload mq.RunCompletedPayload) error
}

// Worker выполняет batches из очереди.
type Worker struct {
	store     *repo.Store
	manager   *batch.Manager
	publisher RunPublisher
	conn      *mq.Connection
	workerID  string

	consumers []*mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Store — хранилище batches, flows и наборов входов.
	Store *repo.Store

	// Manager выполняет batches; его Config задаёт executor, sink и
	// хранилище run.
	Manager *batch.Manager

	// MQ
	Publisher RunPublisher
	Conn      *mq.Connection

	// WorkerID — имя очереди отмены этого воркера.
	WorkerID string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		store:     cfg.Store,
		manager:   cfg.Manager,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		workerID:  cfg.WorkerID,
		logger:    logger.With("worker_id", cfg.WorkerID),
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для batches.requested (по одному batch за раз)
//   - Consumer для собственной очереди отмены
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker")

	w.consumers = []*mq.Consumer{
		mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:   mq.QueueBatchesRequested,
			Handler: w.handleBatchRequested,
		}),
		mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:   mq.AbortQueue(w.workerID),
			Handler: w.handleBatchAbort,
			Declare: mq.DeclareAbortQueue(w.workerID),
		}),
	}

	for _, consumer := range w.consumers {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer error", "error", err)
			}
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего batch.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, consumer := range w.consumers {
		consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
