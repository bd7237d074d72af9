package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// InputSetRepo — репозиторий наборов входов в Postgres.
type InputSetRepo struct {
	db DB
}

// NewInputSetRepo создаёт новый InputSetRepo.
func NewInputSetRepo(db DB) *InputSetRepo {
	return &InputSetRepo{db: db}
}

// Create создаёт набор входов.
func (r *InputSetRepo) Create(ctx context.Context, set *domain.InputSet) error {
	inputs, err := json.Marshal(nonNil(set.Inputs))
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	query := `
		INSERT INTO input_sets (id, name, inputs, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, set.ID, set.Name, inputs, set.CreatedAt); err != nil {
		return fmt.Errorf("insert input set: %w", err)
	}
	return nil
}

// GetByID возвращает набор входов по ID.
func (r *InputSetRepo) GetByID(ctx context.Context, id string) (*domain.InputSet, error) {
	query := `SELECT id, name, inputs, created_at FROM input_sets WHERE id = $1`

	set, err := scanInputSet(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return set, err
}

// List возвращает все наборы входов.
func (r *InputSetRepo) List(ctx context.Context) ([]domain.InputSet, error) {
	query := `SELECT id, name, inputs, created_at FROM input_sets ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list input sets: %w", err)
	}
	defer rows.Close()

	var sets []domain.InputSet
	for rows.Next() {
		set, err := scanInputSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}
	return sets, rows.Err()
}

// Delete удаляет набор входов.
func (r *InputSetRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM input_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete input set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInputSet(row pgx.Row) (*domain.InputSet, error) {
	var (
		set    domain.InputSet
		inputs []byte
	)
	if err := row.Scan(&set.ID, &set.Name, &inputs, &set.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan input set: %w", err)
	}
	if err := unmarshalStrings(inputs, &set.Inputs); err != nil {
		return nil, err
	}
	return &set, nil
}
