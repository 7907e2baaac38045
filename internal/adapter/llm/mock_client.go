package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrScriptExhausted is returned when a ScriptedClient has no step left and no fallback.
var ErrScriptExhausted = errors.New("scripted client has no more responses")

// ScriptedStep is one canned round-trip outcome: a response or an error.
type ScriptedStep struct {
	Response *ChatCompletionResponse
	Err      error
}

// ScriptedClient replays a queue of responses and records every request.
// When the queue is empty it defers to Fallback, if set.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	requests []ChatCompletionRequest

	Fallback func(req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// NewScriptedClient creates a client that answers with steps in order.
func NewScriptedClient(steps ...ScriptedStep) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// NewMockClient creates the rule-based client used in MOCK mode.
func NewMockClient() *ScriptedClient {
	return &ScriptedClient{Fallback: ruleBasedReply}
}

// Ensure ScriptedClient implements LLMClient interface.
var _ LLMClient = (*ScriptedClient)(nil)

// Push appends steps to the queue.
func (c *ScriptedClient) Push(steps ...ScriptedStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Requests returns a snapshot of every request received so far.
func (c *ScriptedClient) Requests() []ChatCompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatCompletionRequest(nil), c.requests...)
}

// Calls returns how many round-trips were issued.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// CreateChatCompletion pops the next step.
func (c *ScriptedClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := *req
	snapshot.Messages = append([]ChatMessage(nil), req.Messages...)
	snapshot.Tools = append([]Tool(nil), req.Tools...)

	c.mu.Lock()
	c.requests = append(c.requests, snapshot)
	if len(c.steps) == 0 {
		fallback := c.Fallback
		c.mu.Unlock()
		if fallback == nil {
			return nil, ErrScriptExhausted
		}
		return fallback(&snapshot)
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response != nil && step.Response.Model == "" {
		step.Response.Model = req.Model
	}
	return step.Response, nil
}

// ListModels returns a list of mock models.
func (c *ScriptedClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{
			ID:      "mock-llama",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
	}, nil
}

// Reply is a step whose assistant message is plain text.
func Reply(text string) ScriptedStep {
	return ScriptedStep{Response: TextResponse(text)}
}

// CallTools is a step whose assistant message requests calls.
func CallTools(calls ...ToolCall) ScriptedStep {
	return ScriptedStep{Response: ToolCallResponse("", calls...)}
}

// Fail is a step that fails the round-trip with err.
func Fail(err error) ScriptedStep {
	return ScriptedStep{Err: err}
}

// NewToolCall builds a function call with raw JSON arguments.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: ToolCallFunction{Name: name, Arguments: arguments},
	}
}

// TextResponse wraps text in a single-choice completion.
func TextResponse(text string) *ChatCompletionResponse {
	return completion(&ChatMessage{Role: RoleAssistant, Content: text}, "stop")
}

// ToolCallResponse wraps calls in a single-choice completion.
func ToolCallResponse(content string, calls ...ToolCall) *ChatCompletionResponse {
	return completion(&ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}, "tool_calls")
}

func completion(msg *ChatMessage, finish string) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      "mock-chatcmpl-" + uuid.NewString()[:8],
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []Choice{
			{
				Index:        0,
				Message:      msg,
				FinishReason: finish,
			},
		},
		SystemFingerprint: "mock-fp",
	}
}

var (
	addTaskPattern = regexp.MustCompile(`(?i)^add(?: a)? task:?\s+(.+)$`)
	updatePattern  = regexp.MustCompile(`(?i)(?:mark|set|move) task #?(\d+) (?:as |to )?(todo|in progress|done)`)
	periodPattern  = regexp.MustCompile(`(?i)\b(daily|weekly|monthly|all)\b`)
)

// ruleBasedReply maps a few phrasings onto task tools so MOCK mode can
// drive the whole loop without a hosted model.
func ruleBasedReply(req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == RoleTool {
		return TextResponse(summarizeToolResults(req.Messages)), nil
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return TextResponse("[MOCK] This is a mock response from the LLM client."), nil
	}

	offered := map[string]bool{}
	for _, t := range req.Tools {
		offered[t.Function.Name] = true
	}
	call := func(name string, args map[string]any) (*ChatCompletionResponse, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		return ToolCallResponse("", NewToolCall("call_"+uuid.NewString()[:8], name, string(raw))), nil
	}
	lower := strings.ToLower(last)

	switch {
	case offered["add_task"] && addTaskPattern.MatchString(last):
		return call("add_task", map[string]any{"title": addTaskPattern.FindStringSubmatch(last)[1]})
	case offered["update_task_status"] && updatePattern.MatchString(lower):
		m := updatePattern.FindStringSubmatch(lower)
		return call("update_task_status", map[string]any{"task_id": m[1], "new_status": m[2]})
	case offered["generate_task_report"] && (strings.Contains(lower, "report") || strings.Contains(lower, "summary")):
		period := "daily"
		if m := periodPattern.FindStringSubmatch(lower); m != nil {
			period = m[1]
		}
		return call("generate_task_report", map[string]any{"period": period})
	case offered["get_tasks_by_status"] && strings.Contains(lower, "task") && containsStatus(lower) != "":
		return call("get_tasks_by_status", map[string]any{"status": containsStatus(lower)})
	case offered["get_all_tasks"] && strings.Contains(lower, "task") && (strings.Contains(lower, "show") || strings.Contains(lower, "list")):
		return call("get_all_tasks", map[string]any{})
	}

	return TextResponse(fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(last, 100))), nil
}

func containsStatus(s string) string {
	for _, status := range []string{"in progress", "todo", "done"} {
		if strings.Contains(s, status) {
			return status
		}
	}
	return ""
}

func summarizeToolResults(messages []ChatMessage) string {
	var parts []string
	for i := len(messages) - 1; i >= 0 && messages[i].Role == RoleTool; i-- {
		var payload map[string]any
		if err := json.Unmarshal([]byte(messages[i].Content), &payload); err != nil {
			parts = append(parts, "an unreadable result")
			continue
		}
		if ok, _ := payload["success"].(bool); !ok {
			parts = append(parts, fmt.Sprintf("an error (%v)", payload["error"]))
			continue
		}
		if msg, ok := payload["message"].(string); ok {
			parts = append(parts, msg)
			continue
		}
		parts = append(parts, truncate(messages[i].Content, 200))
	}
	// Collected newest first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "[MOCK] " + strings.Join(parts, "; ")
}

// truncate truncates a string to the given length.
// truncate keeps at most maxLen runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
