// Package domain defines the core domain models for the task agent.
package domain

// TaskStatus represents the workflow state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in progress"
	TaskStatusDone       TaskStatus = "done"
)

// AllTaskStatuses lists statuses in board order.
var AllTaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority represents task urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// ReportPeriod selects the date window of a task report.
type ReportPeriod string

const (
	ReportPeriodDaily   ReportPeriod = "daily"
	ReportPeriodWeekly  ReportPeriod = "weekly"
	ReportPeriodMonthly ReportPeriod = "monthly"
	ReportPeriodAll     ReportPeriod = "all"
)

// Valid reports whether p is a known period.
func (p ReportPeriod) Valid() bool {
	switch p {
	case ReportPeriodDaily, ReportPeriodWeekly, ReportPeriodMonthly, ReportPeriodAll:
		return true
	}
	return false
}

// ToolInvocationStatus represents the status of a dispatched tool call.
type ToolInvocationStatus string

const (
	ToolInvocationRunning   ToolInvocationStatus = "running"
	ToolInvocationCompleted ToolInvocationStatus = "completed"
	ToolInvocationError     ToolInvocationStatus = "error"
)

// DateLayout is the calendar format used for due dates and report ranges.
const DateLayout = "2006-01-02"
