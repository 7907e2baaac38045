package domain

// ChatRequest is the body of a chat message submission.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse carries the assistant's reply for one user turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// SessionResponse is returned when a session is created or reset.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// TranscriptMessage is the read-only view of one transcript entry.
type TranscriptMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCalls  []TranscriptToolUse `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// TranscriptToolUse is the read-only view of a requested tool call.
type TranscriptToolUse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TranscriptResponse lists a session's transcript.
type TranscriptResponse struct {
	SessionID string              `json:"session_id"`
	Messages  []TranscriptMessage `json:"messages"`
}

// ToolCallsResponse lists a session's tool invocation audit trail.
type ToolCallsResponse struct {
	SessionID string                `json:"session_id"`
	ToolCalls []ToolInvocation      `json:"tool_calls"`
	Summary   ToolInvocationSummary `json:"summary"`
}

// TaskListResponse lists tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskSummaryResponse is the sidebar-style task count panel.
type TaskSummaryResponse struct {
	SessionID string      `json:"session_id"`
	Summary   TaskSummary `json:"summary"`
}

// ErrorResponse is the JSON error body of the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
	Reply string `json:"reply,omitempty"`
}
