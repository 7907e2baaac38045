package domain

import "time"

// ToolInvocation is the audit record of one dispatched tool call.
// Records are append-only and exist for display; they never drive control flow.
type ToolInvocation struct {
	ID        string               `json:"id"`
	CallID    string               `json:"call_id,omitempty"`
	Name      string               `json:"name"`
	Args      map[string]any       `json:"args,omitempty"`
	Status    ToolInvocationStatus `json:"status"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   *time.Time           `json:"ended_at,omitempty"`
	Result    map[string]any       `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// ToolInvocationSummary counts audit records by status.
type ToolInvocationSummary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Error     int `json:"error"`
}

// SummarizeInvocations tallies records by status.
func SummarizeInvocations(records []ToolInvocation) ToolInvocationSummary {
	s := ToolInvocationSummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case ToolInvocationRunning:
			s.Running++
		case ToolInvocationCompleted:
			s.Completed++
		case ToolInvocationError:
			s.Error++
		}
	}
	return s
}
