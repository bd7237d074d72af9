package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

const defaultBatchLimit = 50

// BatchRepo — репозиторий batches в Postgres.
type BatchRepo struct {
	db DB
}

// NewBatchRepo создаёт новый BatchRepo.
func NewBatchRepo(db DB) *BatchRepo {
	return &BatchRepo{db: db}
}

const batchColumns = `id, name, status, flow_ids, input_set_id, inputs, run_ids,
	completed, total, created_at, completed_at`

// Create создаёт новый batch.
func (r *BatchRepo) Create(ctx context.Context, batch *domain.Batch) error {
	flowIDs, inputs, runIDs, err := marshalBatchLists(batch)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		batch.ID,
		batch.Name,
		string(batch.Status),
		flowIDs,
		batch.InputSetID,
		inputs,
		runIDs,
		batch.Progress.Completed,
		batch.Progress.Total,
		batch.CreatedAt,
		batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByID возвращает batch по ID.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	batch, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return batch, err
}

// List возвращает batches, новые первыми.
func (r *BatchRepo) List(ctx context.Context, limit int) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limitOr(limit, defaultBatchLimit))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

// Update сохраняет статус, прогресс и созданные runs.
func (r *BatchRepo) Update(ctx context.Context, batch *domain.Batch) error {
	runIDs, err := json.Marshal(nonNil(batch.RunIDs))
	if err != nil {
		return fmt.Errorf("marshal run ids: %w", err)
	}

	query := `
		UPDATE batches
		SET status = $2, run_ids = $3, completed = $4, total = $5, completed_at = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		batch.ID,
		string(batch.Status),
		runIDs,
		batch.Progress.Completed,
		batch.Progress.Total,
		batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var (
		batch                   domain.Batch
		status                  string
		flowIDs, inputs, runIDs []byte
	)
	err := row.Scan(
		&batch.ID,
		&batch.Name,
		&status,
		&flowIDs,
		&batch.InputSetID,
		&inputs,
		&runIDs,
		&batch.Progress.Completed,
		&batch.Progress.Total,
		&batch.CreatedAt,
		&batch.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	batch.Status = domain.ParseBatchStatus(status)
	for _, f := range []struct {
		data []byte
		dst  *[]string
	}{{flowIDs, &batch.FlowIDs}, {inputs, &batch.Inputs}, {runIDs, &batch.RunIDs}} {
		if err := unmarshalStrings(f.data, f.dst); err != nil {
			return nil, err
		}
	}
	return &batch, nil
}

func marshalBatchLists(batch *domain.Batch) (flowIDs, inputs, runIDs []byte, err error) {
	if flowIDs, err = json.Marshal(nonNil(batch.FlowIDs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal flow ids: %w", err)
	}
	if inputs, err = json.Marshal(nonNil(batch.Inputs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal inputs: %w", err)
	}
	if runIDs, err = json.Marshal(nonNil(batch.RunIDs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal run ids: %w", err)
	}
	return flowIDs, inputs, runIDs, nil
}

// nonNil заменяет nil-срез пустым, чтобы в JSONB попал [] а не null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func unmarshalStrings(data []byte, dst *[]string) error {
	*dst = []string{}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal list: %w", err)
	}
	if *dst == nil {
		*dst = []string{}
	}
	return nil
}
