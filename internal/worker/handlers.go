package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// handleBatchRequested обрабатывает batch.requested.
func (w *Worker) handleBatchRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.BatchRequestedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse batch.requested payload", "error", err)
		return err
	}

	w.logger.Debug("received batch.requested event",
		"batch_id", payload.BatchID,
		"schedule_id", payload.ScheduleID,
	)

	if err := w.processBatch(ctx, payload.BatchID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrBatchNotFound) || errors.Is(err, ErrBatchNotPending) || errors.Is(err, batch.ErrAlreadyRunning) {
			w.logger.Debug("batch not processed", "batch_id", payload.BatchID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process batch", "batch_id", payload.BatchID, "error", err)
		return err
	}
	return nil
}

// handleBatchAbort обрабатывает batch.abort.
// Batch, не активный на этом воркере, пропускается.
func (w *Worker) handleBatchAbort(_ context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.BatchAbortPayload](&delivery.Message)
	if err != nil {
		return err
	}

	if err := w.manager.Abort(payload.BatchID); err != nil {
		if errors.Is(err, batch.ErrNotRunning) {
			w.logger.Debug("abort for batch not running here", "batch_id", payload.BatchID)
			return nil
		}
		return err
	}

	w.logger.Info("batch abort requested", "batch_id", payload.BatchID)
	return nil
}

// processBatch загружает batch и выполняет его до конца.
func (w *Worker) processBatch(ctx context.Context, batchID string) error {
	// 1. Загружаем batch
	b, err := w.store.Batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return fmt.Errorf("get batch: %w", err)
	}

	// 2. Проверяем статус
	if b.Status != domain.BatchStatusPending {
		return ErrBatchNotPending
	}

	// 3. Загружаем flows и входы. Удалённый flow или набор входов
	// делает batch невыполнимым: он завершается FAILED.
	flows, err := batch.LoadFlows(ctx, w.store.Flows, b.FlowIDs)
	if err == nil {
		var inputs []string
		if inputs, err = batch.ResolveInputs(ctx, w.store.InputSets, b); err == nil {
			b.Inputs = inputs
		}
	}
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		w.logger.Warn("batch references missing data", "batch_id", b.ID, "error", err)
		b.Finish(domain.BatchStatusFailed)
		if uErr := w.store.Batches.Update(ctx, b); uErr != nil {
			return errors.Join(err, uErr)
		}
		return nil
	}

	w.logger.Info("batch started",
		"batch_id", b.ID,
		"flows", len(flows),
		"inputs", len(b.Inputs),
	)

	// 4. Выполняем, публикуя итог каждого run
	err = w.manager.Run(ctx, b, flows, b.Inputs, func(progress domain.Progress, run *domain.Run) {
		if pubErr := w.publisher.PublishRunCompleted(ctx, mq.RunCompleted(run, progress)); pubErr != nil {
			w.logger.Warn("failed to publish run.completed", "run_id", run.ID, "error", pubErr)
		}
	})
	if err != nil {
		// Batch уже FAILED; повторная доставка ничего не даст.
		return fmt.Errorf("%w: run batch %s: %w", mq.ErrPermanent, b.ID, err)
	}

	w.logger.Info("batch finished",
		"batch_id", b.ID,
		"status", b.Status,
		"completed", b.Progress.Completed,
		"total", b.Progress.Total,
	)
	return nil
}
