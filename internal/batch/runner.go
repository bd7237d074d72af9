package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
)

// DefaultConcurrency — сколько задач batch выполняется одновременно.
const DefaultConcurrency = 3

// FlowExecutor выполняет один run (реализуется *orchestrator.Executor).
type FlowExecutor interface {
	ExecuteRun(ctx context.Context, run *domain.Run, flow *domain.Flow, sink orchestrator.Sink) error
}

// RunFinisher — Sink, которому нужно знать о завершении run
// (например, live.Sink публикует run_completed).
type RunFinisher interface {
	RunFinished(run *domain.Run)
}

// ProgressFunc вызывается после завершения каждой задачи.
// Вызовы сериализованы; run уже финализирован.
type ProgressFunc func(progress domain.Progress, run *domain.Run)

// Config — конфигурация Runner.
type Config struct {
	// Executor выполняет run.
	Executor FlowExecutor

	// Runs — куда сохранять завершённые run; nil отключает запись.
	Runs repo.RunStore

	// Batches — куда сохранять состояние batch; nil отключает запись.
	Batches repo.BatchStore

	// Sink получает события всех run batch (например, live hub).
	Sink orchestrator.Sink

	// Concurrency — предел одновременных задач. По умолчанию 3.
	Concurrency int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Runner выполняет один batch.
//
// Runner одноразовый: Run можно вызвать один раз. Abort безопасен
// из любой горутины.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	aborted   atomic.Bool
	started   atomic.Bool
	completed atomic.Int64

	// mu сериализует изменение batch, запись в хранилище и onProgress.
	mu    sync.Mutex
	batch *domain.Batch
}

// NewRunner создаёт Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}
}

// Abort запрещает допуск новых задач. Запущенные задачи доходят до конца.
func (r *Runner) Abort() {
	r.aborted.Store(true)
}

// Aborted возвращает true, если отмена запрошена.
func (r *Runner) Aborted() bool {
	return r.aborted.Load()
}

// Snapshot возвращает копию текущего состояния batch.
func (r *Runner) Snapshot() domain.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch == nil {
		return domain.Batch{}
	}
	snap := *r.batch
	snap.RunIDs = append([]string(nil), r.batch.RunIDs...)
	return snap
}

// Run выполняет batch до конца и финализирует его статус.
//
// Возвращает ошибку только при сбое самого раннера (batch получает
// статус FAILED). Ошибки отдельных run записываются в сами run.
func (r *Runner) Run(ctx context.Context, b *domain.Batch, flows []domain.Flow, inputs []string, onProgress ProgressFunc) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerUsed
	}
	logger := telemetry.WithBatchID(r.logger, b.ID)
	tasks := Tasks(flows, inputs)

	r.mu.Lock()
	r.batch = b
	r.mu.Unlock()
	if len(tasks) == 0 {
		return r.finish(ctx, logger, domain.BatchStatusFailed, ErrNoTasks)
	}

	r.mu.Lock()
	b.Inputs = inputs
	if b.RunIDs == nil {
		b.RunIDs = []string{}
	}
	b.Progress = domain.Progress{Total: len(tasks)}
	b.Status = domain.BatchStatusRunning
	err := r.saveBatch(ctx)
	r.mu.Unlock()
	if err != nil {
		return r.finish(ctx, logger, domain.BatchStatusFailed, err)
	}

	r.cfg.Metrics.BatchStarted()
	defer r.cfg.Metrics.BatchFinished()
	logger.Info("batch started", "tasks", len(tasks), "concurrency", r.cfg.Concurrency)

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	// slots ограничивает допуск: проверка отмены идёт после того, как
	// освободилось место, и непосредственно перед запуском задачи.
	slots := make(chan struct{}, r.cfg.Concurrency)
	skipped := 0

admit:
	for i, task := range tasks {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			skipped = len(tasks) - i
			break admit
		}
		if r.aborted.Load() || ctx.Err() != nil {
			<-slots
			skipped = len(tasks) - i
			break
		}

		g.Go(func() error {
			defer func() { <-slots }()
			return r.runTask(ctx, b, task, logger, onProgress)
		})
	}

	if err := g.Wait(); err != nil {
		return r.finish(ctx, logger, domain.BatchStatusFailed, err)
	}
	if skipped > 0 {
		logger.Info("batch aborted", "skipped", skipped)
		return r.finish(ctx, logger, domain.BatchStatusAborted, nil)
	}
	return r.finish(ctx, logger, domain.BatchStatusCompleted, nil)
}

// runTask выполняет одну задачу. Ошибка run не возвращается:
// возвращаются только сбои раннера (паника, запись в хранилище).
func (r *Runner) runTask(ctx context.Context, b *domain.Batch, task Task, logger *slog.Logger, onProgress ProgressFunc) (err error) {
	run := orchestrator.NewRun(task.Flow.ID, task.Input)
	run.BatchID = b.ID

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %d panicked: %v", task.Index, p)
			r.cfg.Metrics.BatchTask("panic")
		}
	}()

	runErr := r.cfg.Executor.ExecuteRun(ctx, run, task.Flow, r.cfg.Sink)
	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
		logger.Debug("batch task failed", "task", task.Index, "run_id", run.ID, "error", runErr)
	}
	r.cfg.Metrics.BatchTask(outcome)
	if f, ok := r.cfg.Sink.(RunFinisher); ok {
		f.RunFinished(run)
	}

	// Результат сохраняется даже при отменённом ctx.
	persistCtx := context.WithoutCancel(ctx)
	if r.cfg.Runs != nil {
		if err := r.cfg.Runs.Save(persistCtx, run); err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b.RunIDs = append(b.RunIDs, run.ID)
	b.Progress.Completed = int(r.completed.Add(1))
	if err := r.saveBatch(persistCtx); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(b.Progress, run)
	}
	return nil
}

// finish финализирует batch. Вызывается после того, как все задачи завершены.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, status domain.BatchStatus, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batch.Finish(status)
	if err := r.saveBatch(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to save final batch state", "error", err)
		if cause == nil {
			cause = err
		}
	}

	if cause != nil {
		logger.Error("batch failed", "error", cause)
		return cause
	}
	logger.Info("batch finished",
		"status", status,
		"completed", r.batch.Progress.Completed,
		"total", r.batch.Progress.Total,
	)
	return nil
}

func (r *Runner) saveBatch(ctx context.Context) error {
	if r.cfg.Batches == nil {
		return nil
	}
	if err := r.cfg.Batches.Update(ctx, r.batch); err != nil {
		return fmt.Errorf("save batch %s: %w", r.batch.ID, err)
	}
	return nil
}
