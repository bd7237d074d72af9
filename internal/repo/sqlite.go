package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// MemoryPath — база SQLite в памяти процесса.
const MemoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flows (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	flow_id       TEXT NOT NULL,
	batch_id      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	input         TEXT,
	final_output  TEXT NOT NULL DEFAULT '',
	tokens_input  INTEGER NOT NULL DEFAULT 0,
	tokens_output INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	payload       BLOB,
	started_at    INTEGER NOT NULL,
	completed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS runs_flow_started_idx ON runs (flow_id, started_at DESC);
CREATE INDEX IF NOT EXISTS runs_batch_idx ON runs (batch_id);
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS input_sets (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS schedules (
	id          TEXT PRIMARY KEY,
	enabled     INTEGER NOT NULL,
	next_due_at INTEGER,
	created_at  INTEGER NOT NULL,
	data        BLOB NOT NULL
);
`

// OpenSQLite открывает встроенное хранилище SQLite и применяет схему.
//
// Flows хранятся JSON-документом, runs — колонками плюс payload в Codec,
// batches, наборы входов и расписания — целиком в Codec. Пул ограничен
// одним соединением: SQLite сериализует запись, а база ":memory:"
// существует только внутри своего соединения.
func OpenSQLite(ctx context.Context, path string, codec *Codec) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &Store{
		Flows:     &sqliteFlows{db: db},
		Runs:      &sqliteRuns{db: db, codec: codec},
		Batches:   &sqliteBatches{db: db, codec: codec},
		InputSets: &sqliteInputSets{db: db, codec: codec},
		Schedules: &sqliteSchedules{db: db, codec: codec},
		closers:   []func(){func() { db.Close() }},
	}, nil
}

// --- Flows ---

type sqliteFlows struct {
	db *sql.DB
}

func (s *sqliteFlows) Create(ctx context.Context, flow *domain.Flow) error {
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO flows (id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		flow.ID, flow.Name, string(doc), flow.CreatedAt.UnixNano(), flow.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return expectAffected(res, ErrAlreadyExists)
}

func (s *sqliteFlows) GetByID(ctx context.Context, id string) (*domain.Flow, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM flows WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow by id: %w", err)
	}
	return decodeFlow([]byte(doc))
}

func (s *sqliteFlows) List(ctx context.Context) ([]domain.Flow, error) {
	docs, err := queryBlobs(ctx, s.db, `SELECT doc FROM flows ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	flows := make([]domain.Flow, 0, len(docs))
	for _, doc := range docs {
		flow, err := decodeFlow(doc)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, nil
}

func (s *sqliteFlows) Update(ctx context.Context, flow *domain.Flow) error {
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE flows SET name = ?, doc = ?, updated_at = ? WHERE id = ?`,
		flow.Name, string(doc), flow.UpdatedAt.UnixNano(), flow.ID)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

func (s *sqliteFlows) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "flows", id)
}

// --- Runs ---

type sqliteRuns struct {
	db    *sql.DB
	codec *Codec
}

func (s *sqliteRuns) Save(ctx context.Context, run *domain.Run) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	payload, err := s.codec.EncodeRun(run)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FlowID, run.BatchID, string(run.Status), string(input), run.FinalOutput,
		run.Tokens.Input, run.Tokens.Output, run.CostUSD, payload,
		run.StartedAt.UnixNano(), unixNanoPtr(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *sqliteRuns) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	runs, err := s.query(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

func (s *sqliteRuns) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	return s.query(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE (? = '' OR flow_id = ?) AND (? = '' OR batch_id = ?)
		ORDER BY started_at DESC
		LIMIT ?`,
		filter.FlowID, filter.FlowID, filter.BatchID, filter.BatchID, limitOr(filter.Limit, defaultRunLimit))
}

// query читает все строки до декодирования, чтобы не держать соединение.
func (s *sqliteRuns) query(ctx context.Context, query string, args ...any) ([]domain.Run, error) {
	type rawRun struct {
		run         domain.Run
		status      string
		input       sql.NullString
		payload     []byte
		startedAt   int64
		completedAt sql.NullInt64
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var raws []rawRun
	for rows.Next() {
		var r rawRun
		if err := rows.Scan(
			&r.run.ID, &r.run.FlowID, &r.run.BatchID, &r.status, &r.input, &r.run.FinalOutput,
			&r.run.Tokens.Input, &r.run.Tokens.Output, &r.run.CostUSD, &r.payload,
			&r.startedAt, &r.completedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	runs := make([]domain.Run, 0, len(raws))
	for _, r := range raws {
		run := r.run
		run.Status = domain.RunStatus(r.status)
		run.Tokens.Total = run.Tokens.Input + run.Tokens.Output
		run.StartedAt = time.Unix(0, r.startedAt)
		if r.completedAt.Valid {
			t := time.Unix(0, r.completedAt.Int64)
			run.CompletedAt = &t
		}
		if r.input.Valid && r.input.String != "" {
			if err := json.Unmarshal([]byte(r.input.String), &run.Input); err != nil {
				return nil, fmt.Errorf("unmarshal input: %w", err)
			}
		}
		if err := s.codec.DecodeRun(r.payload, &run); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// --- Batches ---

type sqliteBatches struct {
	db    *sql.DB
	codec *Codec
}

func (s *sqliteBatches) Create(ctx context.Context, batch *domain.Batch) error {
	data, err := s.codec.Encode(batch)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO batches (id, created_at, data) VALUES (?, ?, ?)`,
		batch.ID, batch.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return expectAffected(res, ErrAlreadyExists)
}

func (s *sqliteBatches) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	if err := getBlob(ctx, s.db, s.codec, `SELECT data FROM batches WHERE id = ?`, id, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *sqliteBatches) List(ctx context.Context, limit int) ([]domain.Batch, error) {
	blobs, err := queryBlobs(ctx, s.db, `SELECT data FROM batches ORDER BY created_at DESC LIMIT ?`,
		limitOr(limit, defaultBatchLimit))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return decodeAll[domain.Batch](s.codec, blobs)
}

func (s *sqliteBatches) Update(ctx context.Context, batch *domain.Batch) error {
	data, err := s.codec.Encode(batch)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE batches SET data = ? WHERE id = ?`, data, batch.ID)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

// --- Input sets ---

type sqliteInputSets struct {
	db    *sql.DB
	codec *Codec
}

func (s *sqliteInputSets) Create(ctx context.Context, set *domain.InputSet) error {
	data, err := s.codec.Encode(set)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO input_sets (id, created_at, data) VALUES (?, ?, ?)`,
		set.ID, set.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("insert input set: %w", err)
	}
	return nil
}

func (s *sqliteInputSets) GetByID(ctx context.Context, id string) (*domain.InputSet, error) {
	var set domain.InputSet
	if err := getBlob(ctx, s.db, s.codec, `SELECT data FROM input_sets WHERE id = ?`, id, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *sqliteInputSets) List(ctx context.Context) ([]domain.InputSet, error) {
	blobs, err := queryBlobs(ctx, s.db, `SELECT data FROM input_sets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list input sets: %w", err)
	}
	return decodeAll[domain.InputSet](s.codec, blobs)
}

func (s *sqliteInputSets) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "input_sets", id)
}

// --- Schedules ---

type sqliteSchedules struct {
	db    *sql.DB
	codec *Codec
}

func (s *sqliteSchedules) Create(ctx context.Context, schedule *domain.Schedule) error {
	data, err := s.codec.Encode(schedule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, enabled, next_due_at, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Enabled, unixNanoPtr(schedule.NextDueAt), schedule.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *sqliteSchedules) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	var schedule domain.Schedule
	if err := getBlob(ctx, s.db, s.codec, `SELECT data FROM schedules WHERE id = ?`, id, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *sqliteSchedules) List(ctx context.Context) ([]domain.Schedule, error) {
	blobs, err := queryBlobs(ctx, s.db, `SELECT data FROM schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return decodeAll[domain.Schedule](s.codec, blobs)
}

func (s *sqliteSchedules) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	blobs, err := queryBlobs(ctx, s.db, `
		SELECT data FROM schedules
		WHERE enabled = 1 AND next_due_at IS NOT NULL AND next_due_at <= ?
		ORDER BY next_due_at ASC
		LIMIT ?`, now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return decodeAll[domain.Schedule](s.codec, blobs)
}

func (s *sqliteSchedules) Update(ctx context.Context, schedule *domain.Schedule) error {
	data, err := s.codec.Encode(schedule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ?, next_due_at = ?, data = ? WHERE id = ?`,
		schedule.Enabled, unixNanoPtr(schedule.NextDueAt), data, schedule.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

func (s *sqliteSchedules) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "schedules", id)
}

// --- Helpers ---

// deleteByID удаляет запись; table — всегда константа из этого файла.
func deleteByID(ctx context.Context, db *sql.DB, table, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return expectAffected(res, ErrNotFound)
}

func expectAffected(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errNone
	}
	return nil
}

func getBlob(ctx context.Context, db *sql.DB, codec *Codec, query, id string, dst any) error {
	var data []byte
	err := db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return codec.Decode(data, dst)
}

// queryBlobs читает первую колонку всех строк.
func queryBlobs(ctx context.Context, db *sql.DB, query string, args ...any) ([][]byte, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		blobs = append(blobs, b)
	}
	return blobs, rows.Err()
}

func decodeAll[T any](codec *Codec, blobs [][]byte) ([]T, error) {
	out := make([]T, 0, len(blobs))
	for _, b := range blobs {
		var v T
		if err := codec.Decode(b, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func unixNanoPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
