package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS task_history (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		source        TEXT NOT NULL,
		status        TEXT NOT NULL,
		output        TEXT NOT NULL,
		error_message TEXT NOT NULL,
		creation_date BIGINT NOT NULL,
		exec_time     BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id       BIGSERIAL PRIMARY KEY,
		task_id  TEXT NOT NULL REFERENCES task_history (id) ON DELETE CASCADE,
		username TEXT NOT NULL,
		message  TEXT NOT NULL,
		date     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_task_date ON messages (task_id, date)`,
}

// Postgres is a Store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, which may be a URL or a key=value string,
// and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) SaveTask(ctx context.Context, task *Task) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO task_history (id, name, source, status, output, error_message, creation_date, exec_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			status = EXCLUDED.status,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			creation_date = EXCLUDED.creation_date,
			exec_time = EXCLUDED.exec_time`,
		task.ID, task.Name, task.Source, string(task.Status), task.Output, task.ErrorMessage,
		toMillis(task.CreatedAt), task.ExecMillis)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (*Task, error) {
	var (
		t       Task
		status  string
		created int64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, source, status, output, error_message, creation_date, exec_time
		FROM task_history WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Source, &status, &t.Output, &t.ErrorMessage, &created, &t.ExecMillis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	t.Status = Status(status)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

func (p *Postgres) ListTasks(ctx context.Context) ([]Summary, error) {
	rows, err := p.pool.Query(ctx, `
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
			count   int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &status, &created, &sum.ExecMillis, &count); err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		sum.Status = Status(status)
		sum.CreatedAt = fromMillis(created)
		sum.MessageCount = int(count)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (p *Postgres) exists(ctx context.Context, taskID string) error {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM task_history WHERE id = $1`, taskID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) AddMessage(ctx context.Context, msg Message) error {
	if err := p.exists(ctx, msg.TaskID); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO messages (task_id, username, message, date) VALUES ($1, $2, $3, $4)`,
		msg.TaskID, msg.Username, msg.Text, toMillis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (p *Postgres) Messages(ctx context.Context, taskID string, since time.Time) ([]Message, error) {
	if err := p.exists(ctx, taskID); err != nil {
		return nil, err
	}
	query := `SELECT task_id, username, message, date FROM messages WHERE task_id = $1 ORDER BY date, id`
	args := []any{taskID}
	if !since.IsZero() {
		query = `SELECT task_id, username, message, date FROM messages WHERE task_id = $1 AND date > $2 ORDER BY date, id`
		args = append(args, toMillis(since))
	}
	rows, err := p.pool.Query(ctx, query, args...)
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

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*Postgres)(nil)
