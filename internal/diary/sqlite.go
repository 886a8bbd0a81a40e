package diary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ent0n29/audiodiary/internal/conversation"
)

// SQLiteRepository stores diary entries in a single SQLite file. It is the
// zero-infrastructure option for running the service on a laptop.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS diary_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, entry Entry) (Entry, error) {
	entry = normalize(entry)
	contexts, err := json.Marshal(entry.Contexts)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal context: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin create entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO diary_entries (date, context, summary) VALUES (?, ?, ?)`,
		entry.Date.UTC().Format(time.RFC3339Nano),
		string(contexts),
		entry.Summary,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("read entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit entry: %w", err)
	}
	return entry, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, date, context, summary FROM diary_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
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

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, date, context, summary FROM diary_entries WHERE id=?`, id)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM diary_entries WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (Entry, error) {
	var (
		e    Entry
		date string
		raw  string
	)
	if err := row.Scan(&e.ID, &date, &raw, &e.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry date: %w", err)
	}
	e.Date = t
	if err := decodeContexts([]byte(raw), &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// decodeContexts accepts both a JSON array and a single object, since
// older rows held one context snapshot rather than a list.
func decodeContexts(raw []byte, e *Entry) error {
	e.Contexts = []conversation.Context{}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '{' {
		var single conversation.Context
		if err := json.Unmarshal(raw, &single); err != nil {
			return fmt.Errorf("decode context: %w", err)
		}
		e.Contexts = append(e.Contexts, single)
		return nil
	}
	if err := json.Unmarshal(raw, &e.Contexts); err != nil {
		return fmt.Errorf("decode context: %w", err)
	}
	return nil
}
