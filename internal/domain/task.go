package domain

import "time"

// Task represents one entry of the personal task list.
type Task struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	DueDate     string       `json:"due_date,omitempty"` // YYYY-MM-DD
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTask is the input for creating a task.
type NewTask struct {
	Title       string
	Description string
	DueDate     string
	Priority    TaskPriority
	Status      TaskStatus
}

// TaskSummary counts tasks by status.
type TaskSummary struct {
	TotalTasks int `json:"total_tasks" mapstructure:"total_tasks"`
	Todo       int `json:"todo" mapstructure:"todo"`
	InProgress int `json:"in_progress" mapstructure:"in_progress"`
	Done       int `json:"done" mapstructure:"done"`
}
