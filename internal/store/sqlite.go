package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_history (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		source        TEXT NOT NULL,
		status        TEXT NOT NULL,
		output        TEXT NOT NULL,
		error_message TEXT NOT NULL,
		creation_date INTEGER NOT NULL,
		exec_time     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id  TEXT NOT NULL,
		username TEXT NOT NULL,
		message  TEXT NOT NULL,
		date     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_task_date ON messages (task_id, date)`,
}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveTask(ctx context.Context, task *Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history (id, name, source, status, output, error_message, creation_date, exec_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			status = excluded.status,
			output = excluded.output,
			error_message = excluded.error_message,
			creation_date = excluded.creation_date,
			exec_time = excluded.exec_time`,
		task.ID, task.Name, task.Source, string(task.Status), task.Output, task.ErrorMessage,
		toMillis(task.CreatedAt), task.ExecMillis)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (*Task, error) {
	var (
		t       Task
		status  string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, status, output, error_message, creation_date, exec_time
		FROM task_history WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Source, &status, &t.Output, &t.ErrorMessage, &created, &t.ExecMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	t.Status = Status(status)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

func (s *SQLite) ListTasks(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.status, t.creation_date, t.exec_time, COALESCE(c.n, 0)
		FROM task_history t
		LEFT JOIN (SELECT task_id, COUNT(*) AS n FROM messages GROUP BY task_id) c
		ON c.task_id = t.id
		ORDER BY t.creation_date, t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	summaries := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			status  string
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &status, &created, &sum.ExecMillis, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		sum.Status = Status(status)
		sum.CreatedAt = fromMillis(created)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLite) exists(ctx context.Context, taskID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM task_history WHERE id = ?`, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQLite) AddMessage(ctx context.Context, msg Message) error {
	if err := s.exists(ctx, msg.TaskID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (task_id, username, message, date) VALUES (?, ?, ?, ?)`,
		msg.TaskID, msg.Username, msg.Text, toMillis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *SQLite) Messages(ctx context.Context, taskID string, since time.Time) ([]Message, error) {
	if err := s.exists(ctx, taskID); err != nil {
		return nil, err
	}
	query := `SELECT task_id, username, message, date FROM messages WHERE task_id = ? ORDER BY date, id`
	args := []any{taskID}
	if !since.IsZero() {
		query = `SELECT task_id, username, message, date FROM messages WHERE task_id = ? AND date > ? ORDER BY date, id`
		args = append(args, toMillis(since))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()
	msgs := []Message{}
	for rows.Next() {
		var (
			msg  Message
			date int64
		)
		if err := rows.Scan(&msg.TaskID, &msg.Username, &msg.Text, &date); err != nil {
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		msg.CreatedAt = fromMillis(date)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
