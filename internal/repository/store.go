// Package store defines the task storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/xiaot623/taskagent/internal/domain"
)

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Task operations
	AddTask(ctx context.Context, task domain.NewTask) (int64, error)
	GetTask(ctx context.Context, taskID int64) (*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) (*domain.Task, error)
	GetTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error)
	GetTaskSummary(ctx context.Context) (map[domain.TaskStatus]int, error)

	// Maintenance
	PopulateSampleTasks(ctx context.Context) (int, error)
	ClearAllTasks(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}

// Ensure SQLiteStore implements TaskStore.
var _ TaskStore = (*SQLiteStore)(nil)
