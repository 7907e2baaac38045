package tools

import (
	"context"
	"strings"
	"time"

	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/repository"
)

const AddTaskName = "add_task"

type addTaskInput struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	DueDate     string `mapstructure:"due_date"`
	Priority    string `mapstructure:"priority"`
	Status      string `mapstructure:"status"`
}

// AddTask creates a task.
func AddTask(s store.TaskStore, now func() time.Time) Tool {
	return Tool{
		Schema: Schema{
			Name:        AddTaskName,
			Description: "Add a new task to the task manager",
			Parameters: objectParams(map[string]Property{
				"title":       {Type: "string", Description: "The title of the task"},
				"description": {Type: "string", Description: "Optional description of the task"},
				"due_date":    {Type: "string", Description: "Optional due date in YYYY-MM-DD format"},
				"priority": {
					Type:        "string",
					Enum:        []string{"low", "medium", "high"},
					Description: "Priority level of the task (default: medium)",
				},
				"status": {
					Type:        "string",
					Enum:        statusEnum(),
					Description: "Current status of the task (default: todo)",
				},
			}, "title"),
		},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) Result {
			var in addTaskInput
			if err := decodeArgs(args, &in); err != nil {
				return Failf(CodeInvalidArguments, "Failed to add task: %v", err)
			}
			task := domain.NewTask{
				Title:       strings.TrimSpace(in.Title),
				Description: strings.TrimSpace(in.Description),
				DueDate:     strings.TrimSpace(in.DueDate),
				Priority:    domain.TaskPriorityMedium,
				Status:      domain.TaskStatusTodo,
			}
			if in.Priority != "" {
				task.Priority = domain.TaskPriority(normalize(in.Priority))
			}
			if in.Status != "" {
				task.Status = domain.TaskStatus(normalize(in.Status))
			}

			if task.Title == "" {
				return Failf(CodeInvalidArguments, "Failed to add task: title is required")
			}
			if !task.Priority.Valid() {
				return Failf(CodeInvalidArguments, "Failed to add task: priority must be one of low, medium, high")
			}
			if err := validateStatus("status", task.Status); err != nil {
				return Failf(CodeInvalidArguments, "Failed to add task: %v", err)
			}
			if err := validateDate("due_date", task.DueDate); err != nil {
				return Failf(CodeInvalidArguments, "Failed to add task: %v", err)
			}

			createdAt := now()
			id, err := s.AddTask(ctx, task)
			if err != nil {
				return Failf(CodeStore, "Failed to add task: %v", err)
			}

			data := map[string]any{
				"task_id":    id,
				"message":    "Task added successfully",
				"created_at": createdAt.Format("2006-01-02 15:04:05"),
			}
			if task.DueDate != "" {
				data["due_date"] = task.DueDate
			}
			return OK(data)
		}),
	}
}
