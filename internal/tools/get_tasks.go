package tools

import (
	"context"

	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/repository"
)

const (
	GetTasksByStatusName = "get_tasks_by_status"
	GetAllTasksName      = "get_all_tasks"
)

type getTasksByStatusInput struct {
	Status string `mapstructure:"status"`
}

// GetTasksByStatus lists tasks with one status.
func GetTasksByStatus(s store.TaskStore) Tool {
	return Tool{
		Schema: Schema{
			Name:        GetTasksByStatusName,
			Description: "Get tasks filtered by their current status",
			Parameters: objectParams(map[string]Property{
				"status": {Type: "string", Enum: statusEnum(), Description: "The status to filter tasks by"},
			}, "status"),
		},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) Result {
			var in getTasksByStatusInput
			if err := decodeArgs(args, &in); err != nil {
				return Failf(CodeInvalidArguments, "Failed to get tasks: %v", err)
			}
			status := domain.TaskStatus(normalize(in.Status))
			if err := validateStatus("status", status); err != nil {
				return Failf(CodeInvalidArguments, "Failed to get tasks: %v", err)
			}
			tasks, err := s.GetTasksByStatus(ctx, status)
			if err != nil {
				return Failf(CodeStore, "Failed to get tasks: %v", err)
			}
			return OK(map[string]any{"tasks": tasks})
		}),
	}
}

// GetAllTasks lists every task grouped by status.
func GetAllTasks(s store.TaskStore) Tool {
	return Tool{
		Schema: Schema{
			Name:        GetAllTasksName,
			Description: "Get all tasks grouped by their status",
			Parameters:  objectParams(nil),
		},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) Result {
			if err := decodeArgs(args, &struct{}{}); err != nil {
				return Failf(CodeInvalidArguments, "Failed to get all tasks: %v", err)
			}
			grouped := make(map[string][]domain.Task, len(domain.AllTaskStatuses))
			for _, status := range domain.AllTaskStatuses {
				tasks, err := s.GetTasksByStatus(ctx, status)
				if err != nil {
					return Failf(CodeStore, "Failed to get all tasks: %v", err)
				}
				grouped[string(status)] = tasks
			}
			return OK(map[string]any{"tasks": grouped})
		}),
	}
}
