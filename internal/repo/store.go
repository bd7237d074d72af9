package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// FlowStore — хранилище flows.
type FlowStore interface {
	Create(ctx context.Context, flow *domain.Flow) error
	GetByID(ctx context.Context, id string) (*domain.Flow, error)
	List(ctx context.Context) ([]domain.Flow, error)
	Update(ctx context.Context, flow *domain.Flow) error
	Delete(ctx context.Context, id string) error
}

// RunStore — хранилище runs.
//
// Save вставляет или перезаписывает run целиком: run сохраняется
// после завершения, частичных обновлений нет.
type RunStore interface {
	Save(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, filter RunFilter) ([]domain.Run, error)
}

// RunFilter — параметры фильтрации runs. Пустые поля не фильтруют.
type RunFilter struct {
	FlowID  string
	BatchID string
	Limit   int
}

// BatchStore — хранилище batches.
type BatchStore interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, limit int) ([]domain.Batch, error)
	Update(ctx context.Context, batch *domain.Batch) error
}

// InputSetStore — хранилище наборов входов.
type InputSetStore interface {
	Create(ctx context.Context, set *domain.InputSet) error
	GetByID(ctx context.Context, id string) (*domain.InputSet, error)
	List(ctx context.Context) ([]domain.InputSet, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleStore — хранилище расписаний.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context) ([]domain.Schedule, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id string) error
}

// Store — набор хранилищ одного бэкенда.
type Store struct {
	Flows     FlowStore
	Runs      RunStore
	Batches   BatchStore
	InputSets InputSetStore
	Schedules ScheduleStore

	// Pool — пул Postgres; nil для SQLite.
	Pool *pgxpool.Pool

	closers []func()
}

// Close закрывает соединения бэкенда.
func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// SeedExampleFlow сохраняет демонстрационный flow, если хранилище пусто.
// Возвращает true, если flow был добавлен.
func SeedExampleFlow(ctx context.Context, flows FlowStore) (bool, error) {
	existing, err := flows.List(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	example := domain.ExampleFlow()
	if err := flows.Create(ctx, &example); err != nil {
		return false, err
	}
	return true, nil
}

// limitOr возвращает limit или def, если limit не задан.
func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
