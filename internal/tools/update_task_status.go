package tools

import (
	"context"

	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/repository"
)

const UpdateTaskStatusName = "update_task_status"

type updateTaskStatusInput struct {
	TaskID    int64  `mapstructure:"task_id"`
	NewStatus string `mapstructure:"new_status"`
}

// UpdateTaskStatus moves an existing task to a new status.
func UpdateTaskStatus(s store.TaskStore) Tool {
	return Tool{
		Schema: Schema{
			Name:        UpdateTaskStatusName,
			Description: "Update the status of an existing task",
			Parameters: objectParams(map[string]Property{
				"task_id":    {Type: "integer", Description: "The ID of the task to update"},
				"new_status": {Type: "string", Enum: statusEnum(), Description: "The new status for the task"},
			}, "task_id", "new_status"),
		},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) Result {
			var in updateTaskStatusInput
			if err := decodeArgs(args, &in); err != nil {
				return Failf(CodeInvalidArguments, "Failed to update task status: %v", err)
			}
			if _, ok := args["task_id"]; !ok {
				return Failf(CodeInvalidArguments, "Failed to update task status: task_id is required")
			}
			status := domain.TaskStatus(normalize(in.NewStatus))
			if err := validateStatus("new_status", status); err != nil {
				return Failf(CodeInvalidArguments, "Failed to update task status: %v", err)
			}

			task, err := s.UpdateTaskStatus(ctx, in.TaskID, status)
			if err != nil {
				return Failf(CodeStore, "Failed to update task status: %v", err)
			}
			if task == nil {
				return Failf(CodeNotFound, "Task %d not found", in.TaskID)
			}
			return OK(map[string]any{
				"message": "Task status updated successfully",
				"task":    task,
			})
		}),
	}
}
