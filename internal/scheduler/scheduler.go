package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// LockKey — ключ advisory-блокировки лидера планировщика.
const LockKey int64 = 424242

// batchNamespace — пространство имён для детерминированных ID batch.
var batchNamespace = uuid.MustParse("6f1d0c1e-9a0b-4c55-8f3e-5b0e7d7f2a10")

// Leader — выбор лидера среди нескольких планировщиков.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules  repo.ScheduleStore
	Flows      repo.FlowStore
	InputSets  repo.InputSetStore
	Batches    repo.BatchStore
	Dispatcher batch.Dispatcher

	// Leader — nil означает единственный экземпляр.
	Leader Leader

	Logger *slog.Logger

	// BatchSize — сколько расписаний обрабатывать за тик. По умолчанию 100.
	BatchSize int

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Scheduler обрабатывает расписания с истекшим сроком.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
}

// TickResult — итог одного тика.
type TickResult struct {
	Due        int
	Dispatched int
	Skipped    int
	Failed     int
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{cfg: cfg, logger: cfg.Logger.With("component", "scheduler")}
}

// BatchID возвращает ID batch для срабатывания расписания в момент due.
func BatchID(scheduleID string, due time.Time) string {
	return uuid.NewSHA1(batchNamespace, fmt.Appendf(nil, "%s_%d", scheduleID, due.Unix())).String()
}

// Run вызывает Tick каждые interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	leading := false
	defer func() {
		if leading && s.cfg.Leader != nil {
			if err := s.cfg.Leader.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release leadership", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.cfg.Leader != nil {
			ok, err := s.cfg.Leader.TryAcquire(ctx)
			if err != nil {
				s.logger.Warn("leader election failed", "error", err)
				continue
			}
			if ok != leading {
				s.logger.Info("leadership changed", "leader", ok)
			}
			leading = ok
			if !leading {
				continue
			}
		}

		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick обрабатывает все расписания с истекшим сроком.
// Ошибка одного расписания не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	now := s.cfg.Now()

	schedules, err := s.cfg.Schedules.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("list due schedules: %w", err)
	}

	res := TickResult{Due: len(schedules)}
	if len(schedules) == 0 {
		return res, nil
	}

	for i := range schedules {
		sched := &schedules[i]
		dispatched, err := s.processSchedule(ctx, sched, now)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
		case dispatched:
			res.Dispatched++
		default:
			res.Skipped++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", res.Due,
		"dispatched", res.Dispatched,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// processSchedule создаёт и запускает batch для одного срабатывания.
// Возвращает true, если batch был запущен этим вызовом.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	logger := s.logger.With("schedule_id", sched.ID)

	nextDue, err := NextDue(sched, now)
	if err != nil {
		// Некорректное расписание не должно срабатывать на каждом тике.
		sched.Enabled = false
		sched.UpdatedAt = now
		if uErr := s.cfg.Schedules.Update(ctx, sched); uErr != nil {
			return false, errors.Join(err, uErr)
		}
		logger.Error("schedule disabled", "error", err)
		return false, nil
	}

	due := now
	if sched.NextDueAt != nil {
		due = *sched.NextDueAt
	}

	b, flows, err := s.buildBatch(ctx, sched, due)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return false, err
		}
		// Flow или набор входов удалён: пропускаем срабатывание.
		logger.Warn("schedule references missing data, skipping", "error", err)
		sched.RecordBatch(sched.LastBatchID, nextDue)
		return false, s.cfg.Schedules.Update(ctx, sched)
	}

	created := true
	if err := s.cfg.Batches.Create(ctx, b); err != nil {
		if !errors.Is(err, repo.ErrAlreadyExists) {
			return false, fmt.Errorf("create batch: %w", err)
		}
		created = false
		logger.Debug("batch already created for this occurrence", "batch_id", b.ID)
	}

	sched.RecordBatch(b.ID, nextDue)
	if err := s.cfg.Schedules.Update(ctx, sched); err != nil {
		return false, fmt.Errorf("update schedule: %w", err)
	}

	if !created {
		return false, nil
	}
	if err := s.cfg.Dispatcher.Dispatch(ctx, b, flows, sched.ID); err != nil {
		// Batch остаётся PENDING и виден в API.
		return false, fmt.Errorf("dispatch batch %s: %w", b.ID, err)
	}

	logger.Info("scheduled batch dispatched",
		"batch_id", b.ID,
		"flows", len(b.FlowIDs),
		"inputs", len(b.Inputs),
		"next_due_at", nextDue,
	)
	return true, nil
}

func (s *Scheduler) buildBatch(ctx context.Context, sched *domain.Schedule, due time.Time) (*domain.Batch, []domain.Flow, error) {
	flows, err := batch.LoadFlows(ctx, s.cfg.Flows, sched.FlowIDs)
	if err != nil {
		return nil, nil, err
	}
	set, err := s.cfg.InputSets.GetByID(ctx, sched.InputSetID)
	if err != nil {
		return nil, nil, fmt.Errorf("input set %s: %w", sched.InputSetID, err)
	}

	name := sched.Name
	if name == "" {
		name = sched.ID
	}
	b := batch.NewBatch(fmt.Sprintf("%s @ %s", name, due.UTC().Format(time.RFC3339)), sched.FlowIDs, set.Inputs)
	b.ID = BatchID(sched.ID, due)
	b.InputSetID = set.ID
	return b, flows, nil
}
