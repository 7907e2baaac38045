package tools

import (
	"context"
	"sort"
	"time"

	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/repository"
)

const GenerateTaskReportName = "generate_task_report"

const reportListLimit = 5

type generateReportInput struct {
	Period string `mapstructure:"period"`
}

// GenerateTaskReport summarizes the task list over a calendar window.
func GenerateTaskReport(s store.TaskStore, now func() time.Time) Tool {
	return Tool{
		Schema: Schema{
			Name:        GenerateTaskReportName,
			Description: "Generate a task report for the specified time period",
			Parameters: objectParams(map[string]Property{
				"period": {
					Type:        "string",
					Enum:        []string{"daily", "weekly", "monthly", "all"},
					Description: "The time period for the report (default: daily)",
				},
			}),
		},
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) Result {
			var in generateReportInput
			if err := decodeArgs(args, &in); err != nil {
				return Failf(CodeInvalidArguments, "Failed to generate task report: %v", err)
			}
			period := domain.ReportPeriodDaily
			if in.Period != "" {
				period = domain.ReportPeriod(normalize(in.Period))
			}
			if !period.Valid() {
				return Failf(CodeInvalidArguments, "Failed to generate task report: period must be one of daily, weekly, monthly, all")
			}

			start, end := ReportRange(period, now())

			counts, err := s.GetTaskSummary(ctx)
			if err != nil {
				return Failf(CodeStore, "Failed to generate task report: %v", err)
			}
			summary := domain.TaskSummary{
				Todo:       counts[domain.TaskStatusTodo],
				InProgress: counts[domain.TaskStatusInProgress],
				Done:       counts[domain.TaskStatusDone],
			}
			summary.TotalTasks = summary.Todo + summary.InProgress + summary.Done

			done, err := s.GetTasksByStatus(ctx, domain.TaskStatusDone)
			if err != nil {
				return Failf(CodeStore, "Failed to generate task report: %v", err)
			}
			sort.SliceStable(done, func(i, j int) bool {
				return done[i].UpdatedAt.After(done[j].UpdatedAt)
			})
			recent := done[:min(len(done), reportListLimit)]

			upcoming := []domain.Task{}
			if period != domain.ReportPeriodAll {
				for _, status := range []domain.TaskStatus{domain.TaskStatusTodo, domain.TaskStatusInProgress} {
					tasks, err := s.GetTasksByStatus(ctx, status)
					if err != nil {
						return Failf(CodeStore, "Failed to generate task report: %v", err)
					}
					for _, t := range tasks {
						// Dates are YYYY-MM-DD, so string order is calendar order.
						if t.DueDate != "" && t.DueDate >= start && t.DueDate <= end {
							upcoming = append(upcoming, t)
						}
					}
				}
				sort.SliceStable(upcoming, func(i, j int) bool {
					return upcoming[i].DueDate < upcoming[j].DueDate
				})
				upcoming = upcoming[:min(len(upcoming), reportListLimit)]
			}

			data := map[string]any{
				"period":             string(period),
				"start_date":         nil,
				"end_date":           nil,
				"summary":            summary,
				"recently_completed": recent,
				"upcoming_deadlines": upcoming,
			}
			if start != "" {
				data["start_date"] = start
				data["end_date"] = end
			}
			return OK(data)
		}),
	}
}

// ReportRange returns the inclusive YYYY-MM-DD window for period relative to now.
// Both bounds are empty for ReportPeriodAll.
func ReportRange(period domain.ReportPeriod, now time.Time) (string, string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case domain.ReportPeriodDaily:
		return today.Format(domain.DateLayout), today.AddDate(0, 0, 1).Format(domain.DateLayout)
	case domain.ReportPeriodWeekly:
		offset := (int(today.Weekday()) + 6) % 7 // Monday = 0
		monday := today.AddDate(0, 0, -offset)
		return monday.Format(domain.DateLayout), monday.AddDate(0, 0, 6).Format(domain.DateLayout)
	case domain.ReportPeriodMonthly:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return first.Format(domain.DateLayout), first.AddDate(0, 1, -1).Format(domain.DateLayout)
	}
	return "", ""
}
