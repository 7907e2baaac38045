package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/taskagent/internal/domain"
)

// SQLiteStore implements TaskStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT,
			due_date TEXT,
			priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low', 'medium', 'high')),
			status TEXT NOT NULL DEFAULT 'todo' CHECK(status IN ('todo', 'in progress', 'done')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, due_date)`,
		// Stamp updated_at for writers that do not set it themselves.
		`CREATE TRIGGER IF NOT EXISTS update_task_timestamp
		AFTER UPDATE ON tasks
		WHEN NEW.updated_at = OLD.updated_at
		BEGIN
			UPDATE tasks SET updated_at = datetime('now') WHERE id = NEW.id;
		END`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddTask inserts a task and returns its ID.
func (s *SQLiteStore) AddTask(ctx context.Context, task domain.NewTask) (int64, error) {
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, due_date, priority, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.Title, nullString(task.Description), nullString(task.DueDate), task.Priority, task.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// GetTask retrieves a task by ID. It returns nil when the task does not exist.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, due_date, priority, status, created_at, updated_at FROM tasks WHERE id = ?`,
		taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus changes a task's status and returns the updated task,
// or nil when no task has the given ID.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) (*domain.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.now(), taskID)
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetTask(ctx, taskID)
}

// GetTasksByStatus lists tasks with the given status, most urgent first:
// high before medium before low, then earliest due date, undated last.
func (s *SQLiteStore) GetTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, due_date, priority, status, created_at, updated_at
		FROM tasks
		WHERE status = ?
		ORDER BY
			CASE priority
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				WHEN 'low' THEN 3
				ELSE 4
			END,
			due_date IS NULL,
			due_date ASC,
			id ASC`,
		status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// GetTaskSummary counts tasks per status. Every known status is present.
func (s *SQLiteStore) GetTaskSummary(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[domain.TaskStatus]int, len(domain.AllTaskStatuses))
	for _, st := range domain.AllTaskStatuses {
		summary[st] = 0
	}
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// PopulateSampleTasks seeds demo data into an empty table and returns how many rows were added.
func (s *SQLiteStore) PopulateSampleTasks(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&existing); err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	now := s.now()
	for _, t := range sampleTasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (title, description, due_date, priority, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Title, nullString(t.Description), nullString(t.DueDate), t.Priority, t.Status, now, now); err != nil {
			return 0, fmt.Errorf("insert sample task: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(sampleTasks), nil
}

// ClearAllTasks removes every task and returns how many were removed.
func (s *SQLiteStore) ClearAllTasks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var sampleTasks = []domain.NewTask{
	{Title: "Complete AI assignment", Description: "Finish the machine learning project for CS101", DueDate: "2023-12-15", Priority: domain.TaskPriorityHigh, Status: domain.TaskStatusTodo},
	{Title: "Grocery shopping", Description: "Buy milk, eggs, and bread", DueDate: "2023-12-10", Priority: domain.TaskPriorityMedium, Status: domain.TaskStatusTodo},
	{Title: "Call mom", Description: "Wish her happy birthday", DueDate: "2023-12-12", Priority: domain.TaskPriorityHigh, Status: domain.TaskStatusInProgress},
	{Title: "Read research paper", Description: "Read the latest paper on transformers", DueDate: "2023-12-20", Priority: domain.TaskPriorityLow, Status: domain.TaskStatusTodo},
	{Title: "Submit expense report", Description: "Submit monthly expenses to accounting", DueDate: "2023-12-05", Priority: domain.TaskPriorityMedium, Status: domain.TaskStatusDone},
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var description, dueDate sql.NullString
	if err := row.Scan(&task.ID, &task.Title, &description, &dueDate, &task.Priority, &task.Status, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		task.Description = description.String
	}
	if dueDate.Valid {
		task.DueDate = dueDate.String
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
