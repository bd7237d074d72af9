package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// Task — одна пара flow × input.
type Task struct {
	// Index — позиция в плоском списке задач.
	Index int

	Flow  *domain.Flow
	Input string
}

// Tasks строит плоский список задач: flow-major, затем input-minor.
func Tasks(flows []domain.Flow, inputs []string) []Task {
	tasks := make([]Task, 0, len(flows)*len(inputs))
	for i := range flows {
		for _, input := range inputs {
			tasks = append(tasks, Task{Index: len(tasks), Flow: &flows[i], Input: input})
		}
	}
	return tasks
}

// NewBatch создаёт batch в статусе PENDING.
func NewBatch(name string, flowIDs, inputs []string) *domain.Batch {
	return &domain.Batch{
		ID:        uuid.NewString(),
		Name:      name,
		FlowIDs:   flowIDs,
		Inputs:    inputs,
		RunIDs:    []string{},
		Progress:  domain.Progress{Total: len(flowIDs) * len(inputs)},
		Status:    domain.BatchStatusPending,
		CreatedAt: time.Now(),
	}
}

// LoadFlows загружает flows batch в порядке ids.
func LoadFlows(ctx context.Context, store repo.FlowStore, ids []string) ([]domain.Flow, error) {
	flows := make([]domain.Flow, 0, len(ids))
	for _, id := range ids {
		flow, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load flow %s: %w", id, err)
		}
		flows = append(flows, *flow)
	}
	return flows, nil
}

// ResolveInputs возвращает входы batch: явные или из набора входов.
func ResolveInputs(ctx context.Context, store repo.InputSetStore, b *domain.Batch) ([]string, error) {
	if len(b.Inputs) > 0 || b.InputSetID == "" {
		return b.Inputs, nil
	}
	set, err := store.GetByID(ctx, b.InputSetID)
	if err != nil {
		return nil, fmt.Errorf("load input set %s: %w", b.InputSetID, err)
	}
	return set.Inputs, nil
}
