package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// FlowRepo — репозиторий flows в Postgres.
//
// Граф хранится документом JSONB: узлы и рёбра читаются и пишутся только
// вместе, а JSON — канонический формат flow в API.
type FlowRepo struct {
	db DB
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(db DB) *FlowRepo {
	return &FlowRepo{db: db}
}

// Create создаёт новый flow.
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	query := `
		INSERT INTO flows (id, name, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		flow.ID,
		flow.Name,
		doc,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByID возвращает flow по ID.
func (r *FlowRepo) GetByID(ctx context.Context, id string) (*domain.Flow, error) {
	query := `SELECT doc FROM flows WHERE id = $1`

	var doc []byte
	err := r.db.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow by id: %w", err)
	}
	return decodeFlow(doc)
}

// List возвращает все flows, последние изменённые первыми.
func (r *FlowRepo) List(ctx context.Context) ([]domain.Flow, error) {
	query := `SELECT doc FROM flows ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flow, err := decodeFlow(doc)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// Update перезаписывает flow.
func (r *FlowRepo) Update(ctx context.Context, flow *domain.Flow) error {
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	query := `
		UPDATE flows
		SET name = $2, doc = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, flow.ID, flow.Name, doc, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет flow. Runs flow остаются в истории.
func (r *FlowRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeFlow(doc []byte) (*domain.Flow, error) {
	var flow domain.Flow
	if err := json.Unmarshal(doc, &flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &flow, nil
}
