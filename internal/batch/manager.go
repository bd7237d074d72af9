package batch

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// Manager отслеживает выполняющиеся в процессе batches, чтобы их можно
// было отменить по ID (из API или по сообщению batch.abort).
type Manager struct {
	cfg Config

	mu      sync.Mutex
	runners map[string]*Runner
	wg      sync.WaitGroup
}

// NewManager создаёт Manager. cfg используется для каждого Runner.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		runners: make(map[string]*Runner),
	}
}

// Run выполняет batch синхронно.
func (m *Manager) Run(ctx context.Context, b *domain.Batch, flows []domain.Flow, inputs []string, onProgress ProgressFunc) error {
	runner, err := m.register(b.ID)
	if err != nil {
		return err
	}
	defer m.unregister(b.ID)
	return runner.Run(ctx, b, flows, inputs, onProgress)
}

// Start запускает batch в фоне. done, если не nil, получает итоговую ошибку.
func (m *Manager) Start(ctx context.Context, b *domain.Batch, flows []domain.Flow, inputs []string, onProgress ProgressFunc, done func(error)) error {
	runner, err := m.register(b.ID)
	if err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.unregister(b.ID)

		err := runner.Run(ctx, b, flows, inputs, onProgress)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Abort запрашивает отмену batch.
func (m *Manager) Abort(batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runner, ok := m.runners[batchID]
	if !ok {
		return ErrNotRunning
	}
	runner.Abort()
	return nil
}

// Snapshot возвращает текущее состояние выполняющегося batch.
func (m *Manager) Snapshot(batchID string) (domain.Batch, bool) {
	m.mu.Lock()
	runner, ok := m.runners[batchID]
	m.mu.Unlock()
	if !ok {
		return domain.Batch{}, false
	}
	return runner.Snapshot(), true
}

// Active возвращает ID выполняющихся batches.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait ждёт завершения всех batches, запущенных через Start.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) register(batchID string) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runners[batchID]; exists {
		return nil, ErrAlreadyRunning
	}
	runner := NewRunner(m.cfg)
	m.runners[batchID] = runner
	return runner, nil
}

func (m *Manager) unregister(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, batchID)
}
