package diary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists diary entries in PostgreSQL. Context
// snapshots are stored as a jsonb array.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS diary_entries (
			id BIGSERIAL PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL DEFAULT now(),
			context JSONB NOT NULL DEFAULT '[]'::jsonb,
			summary TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_diary_entries_date ON diary_entries (date);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, entry Entry) (Entry, error) {
	entry = normalize(entry)
	contexts, err := json.Marshal(entry.Contexts)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal context: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("begin create entry: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO diary_entries (date, context, summary) VALUES ($1, $2, $3) RETURNING id`,
		entry.Date,
		contexts,
		entry.Summary,
	).Scan(&entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("commit entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, date, context, summary FROM diary_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, date, context, summary FROM diary_entries WHERE id=$1`, id)
	e, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM diary_entries WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanPostgresEntry(row pgx.Row) (Entry, error) {
	var (
		e   Entry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Date, &raw, &e.Summary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	if err := decodeContexts(raw, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
