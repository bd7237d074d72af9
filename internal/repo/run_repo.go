package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// defaultRunLimit — размер страницы истории runs по умолчанию.
const defaultRunLimit = 50

// RunRepo — репозиторий runs в Postgres.
//
// Скалярные поля лежат в колонках (для фильтров и истории), результаты
// узлов и финальная VFS — в payload, закодированном Codec.
type RunRepo struct {
	db    DB
	codec *Codec
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(db DB, codec *Codec) *RunRepo {
	return &RunRepo{db: db, codec: codec}
}

const runColumns = `id, flow_id, batch_id, status, input, final_output,
	tokens_input, tokens_output, cost_usd, payload, started_at, completed_at`

// Save вставляет или перезаписывает run.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	payload, err := r.codec.EncodeRun(run)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			final_output = EXCLUDED.final_output,
			tokens_input = EXCLUDED.tokens_input,
			tokens_output = EXCLUDED.tokens_output,
			cost_usd = EXCLUDED.cost_usd,
			payload = EXCLUDED.payload,
			completed_at = EXCLUDED.completed_at
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.FlowID,
		run.BatchID,
		string(run.Status),
		input,
		run.FinalOutput,
		run.Tokens.Input,
		run.Tokens.Output,
		run.CostUSD,
		payload,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := r.scanRun(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает runs, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1 = '' OR flow_id = $1)
		  AND ($2 = '' OR batch_id = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, filter.FlowID, filter.BatchID, limitOr(filter.Limit, defaultRunLimit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует строку в Run. pgx.Rows удовлетворяет pgx.Row.
func (r *RunRepo) scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run     domain.Run
		status  string
		input   []byte
		payload []byte
	)
	err := row.Scan(
		&run.ID,
		&run.FlowID,
		&run.BatchID,
		&status,
		&input,
		&run.FinalOutput,
		&run.Tokens.Input,
		&run.Tokens.Output,
		&run.CostUSD,
		&payload,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.Tokens.Total = run.Tokens.Input + run.Tokens.Output
	if len(input) > 0 {
		if err := json.Unmarshal(input, &run.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if err := r.codec.DecodeRun(payload, &run); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &run, nil
}
