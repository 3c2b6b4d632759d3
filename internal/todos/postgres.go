package todos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/tasktrack/internal/reliability"
)

const connectAttempts = 5

// SQLSTATE codes that make a connect retry pointless.
const (
	pgInvalidPassword    = "28P01"
	pgInvalidCatalogName = "3D000"
)

const todoColumns = `id, title, note, completed, due_date, created_at, updated_at`

// PostgresStore persists todos in PostgreSQL. Mutations of an existing row
// lock it for the duration of the read-modify-write.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

func NewPostgresStore(ctx context.Context, databaseURL string, clock Clock) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	// The database often comes up alongside the API, so give it a few tries.
	err = reliability.Retry(ctx, connectAttempts, 250*time.Millisecond, 4*time.Second, connectProbe(pool.Ping))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initTodoSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, clock: clockOrDefault(clock)}, nil
}

// connectProbe wraps ping so that fatal server answers end the retry loop.
func connectProbe(ping func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := ping(ctx)
		if isFatalConnectError(err) {
			return reliability.Permanent(err)
		}
		return err
	}
}

// isFatalConnectError reports server answers that another attempt cannot
// change: bad credentials and a missing database.
func isFatalConnectError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgInvalidPassword, pgInvalidCatalogName:
		return true
	default:
		return false
	}
}

func initTodoSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			due_date TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_seq ON todos (seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init todo schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Task, error) {
	query := `SELECT ` + todoColumns + ` FROM todos`
	var args []any
	switch filter {
	case FilterActive:
		query += ` WHERE completed = $1`
		args = append(args, false)
	case FilterCompleted:
		query += ` WHERE completed = $1`
		args = append(args, true)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0, 16)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todo rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE id=$1`, id)
	t, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Task, error) {
	t := newTask(uuid.NewString(), in, s.clock.Now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO todos (id, title, note, completed, due_date, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Title, t.Note, t.Completed, t.DueDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Replace(ctx context.Context, id string, in ReplaceInput) (Task, error) {
	return s.mutate(ctx, id, func(t Task, now time.Time) Task {
		return in.apply(t, now)
	})
}

func (s *PostgresStore) Merge(ctx context.Context, id string, patch Patch) (Task, error) {
	return s.mutate(ctx, id, func(t Task, now time.Time) Task {
		return patch.apply(t, now)
	})
}

func (s *PostgresStore) mutate(ctx context.Context, id string, fn func(Task, time.Time) Task) (Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Task{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE id=$1 FOR UPDATE`, id)
	current, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("lock todo: %w", err)
	}

	next := fn(current, s.clock.Now())
	_, err = tx.Exec(ctx,
		`UPDATE todos SET title=$2, note=$3, completed=$4, due_date=$5, updated_at=$6 WHERE id=$1`,
		next.ID, next.Title, next.Note, next.Completed, next.DueDate, next.UpdatedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("update todo: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Task{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Remove(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanTodo(row pgx.Row) (Task, error) {
	var (
		t   Task
		due *time.Time
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Note, &t.Completed, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.DueDate = copyTime(due)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
