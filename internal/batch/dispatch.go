package batch

import (
	"context"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// Dispatcher запускает сохранённый batch в статусе PENDING.
//
// Реализации: *Manager (в текущем процессе) и *mq.Publisher (через очередь
// воркеров).
type Dispatcher interface {
	Dispatch(ctx context.Context, b *domain.Batch, flows []domain.Flow, scheduleID string) error
}

// Aborter запрашивает отмену batch.
type Aborter interface {
	Abort(ctx context.Context, batchID string) error
}

// Dispatch реализует Dispatcher: batch выполняется в фоне и не зависит
// от отмены ctx запроса.
func (m *Manager) Dispatch(ctx context.Context, b *domain.Batch, flows []domain.Flow, scheduleID string) error {
	logger := m.cfg.Logger.With("batch_id", b.ID)
	if scheduleID != "" {
		logger = logger.With("schedule_id", scheduleID)
	}
	return m.Start(context.WithoutCancel(ctx), b, flows, b.Inputs, nil, func(err error) {
		if err != nil {
			logger.Error("batch failed", "error", err)
		}
	})
}

// LocalAborter — Aborter поверх Manager.
type LocalAborter struct {
	Manager *Manager
}

// Abort реализует Aborter.
func (a LocalAborter) Abort(_ context.Context, batchID string) error {
	return a.Manager.Abort(batchID)
}
