package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path string `yaml:"path"` // sqlite file, ":memory:" for tests
}

// Memo is one generation attempt, successful or not.
type Memo struct {
	ID          uuid.UUID `json:"id"`
	Provider    string    `json:"provider"`
	VoiceID     string    `json:"voice_id,omitempty"`
	Text        string    `json:"text"`
	Instruction string    `json:"instruction,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

type DB struct {
	db *sql.DB
}

func New(ctx context.Context, cfg *Config) (*DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	// single process, single writer
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memos (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			voice_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			instruction TEXT NOT NULL DEFAULT '',
			output_path TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to migrate history db: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Insert(ctx context.Context, memo *Memo) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO memos (id, provider, voice_id, text, instruction, output_path, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, memo.ID.String(), memo.Provider, memo.VoiceID, memo.Text, memo.Instruction,
		memo.OutputPath, memo.Error, memo.DurationMS, memo.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert memo: %w", err)
	}

	return nil
}

// List returns up to limit memos, newest first.
func (d *DB) List(ctx context.Context, limit int) ([]Memo, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, provider, voice_id, text, instruction, output_path, error, duration_ms, created_at
		FROM memos
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query memos: %w", err)
	}
	defer rows.Close()

	var memos []Memo

	for rows.Next() {
		var memo Memo
		var id string

		if err = rows.Scan(&id, &memo.Provider, &memo.VoiceID, &memo.Text, &memo.Instruction,
			&memo.OutputPath, &memo.Error, &memo.DurationMS, &memo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}

		if memo.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse memo id: %w", err)
		}

		memos = append(memos, memo)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memos: %w", err)
	}

	return memos, nil
}
