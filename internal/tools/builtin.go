package tools

import (
	"time"

	"github.com/xiaot623/taskagent/internal/repository"
)

// DefaultTools returns the task manager catalog backed by s.
// now stamps created_at values and anchors report windows; nil means time.Now.
func DefaultTools(s store.TaskStore, now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{
		AddTask(s, now),
		UpdateTaskStatus(s),
		GetTasksByStatus(s),
		GetAllTasks(s),
		GenerateTaskReport(s, now),
	}
}

// NewDefaultRegistry builds a registry holding DefaultTools.
func NewDefaultRegistry(s store.TaskStore, now func() time.Time) *Registry {
	return MustNewRegistry(DefaultTools(s, now)...)
}
