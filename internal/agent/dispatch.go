package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/tools"
)

// dispatchCalls appends the assistant message and one tool message per
// answerable call, in request order. It returns how many calls were answered.
func (c *Conversation) dispatchCalls(ctx context.Context, msg *llm.ChatMessage) int {
	answerable := make([]llm.ToolCall, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		if strings.TrimSpace(call.ID) == "" {
			// A result cannot reference a call without an id.
			c.logger.Warn("skipping tool call without id", "tool", call.Function.Name)
			c.recordSkipped(call)
			continue
		}
		answerable = append(answerable, call)
	}
	if len(answerable) == 0 {
		return 0
	}

	c.transcript = append(c.transcript, llm.ChatMessage{
		Role:      llm.RoleAssistant,
		Content:   msg.Content,
		ToolCalls: answerable,
	})

	for _, call := range answerable {
		args, parseErr := parseArguments(call.Function.Arguments)
		_, content := c.execute(ctx, call.ID, call.Function.Name, args, parseErr)
		c.transcript = append(c.transcript, llm.ChatMessage{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    content,
		})
	}
	return len(answerable)
}

// InvokeToolDirectly runs a tool outside of any model turn, for callers that
// need structured data (such as a summary panel). The call is audited under an
// id of the form direct_N but the transcript is not touched.
func (c *Conversation) InvokeToolDirectly(ctx context.Context, name string, args map[string]any) tools.Result {
	c.directSeq++
	if args == nil {
		args = map[string]any{}
	}
	result, _ := c.execute(ctx, fmt.Sprintf("direct_%d", c.directSeq), name, args, nil)
	return result
}

// parseArguments decodes a call's serialized arguments. Empty means no arguments.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

// execute resolves, gates and invokes one call and records the outcome.
// It returns the result along with its serialized payload, and never panics.
func (c *Conversation) execute(ctx context.Context, callID, name string, args map[string]any, parseErr error) (tools.Result, string) {
	idx := c.record(domain.ToolInvocation{
		ID:        "ti_" + uuid.New().String()[:8],
		CallID:    callID,
		Name:      name,
		Args:      args,
		Status:    domain.ToolInvocationRunning,
		StartedAt: c.now(),
	})
	c.logger.Info("executing tool", "tool", name, "call_id", callID, "args", args)

	result := c.invoke(ctx, name, args, parseErr)
	payload := result.Payload()
	content, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to serialize tool result", "tool", name, "error", err)
		content = []byte(toolResultFallback)
		result = tools.Failf(tools.CodeExecution, "Failed to process tool result")
		payload = map[string]any{"success": false, "error": result.Err.Message}
	}

	c.finish(idx, result, payload)
	if result.Failed() {
		c.logger.Error("tool failed", "tool", name, "call_id", callID, "code", result.Err.Code, "error", result.Err.Message)
	} else {
		c.logger.Info("tool completed", "tool", name, "call_id", callID)
		c.logger.Debug("tool result", "tool", name, "result", string(content))
	}
	return result, string(content)
}

func (c *Conversation) invoke(ctx context.Context, name string, args map[string]any, parseErr error) tools.Result {
	if parseErr != nil {
		return tools.Failf(tools.CodeInvalidArguments, "Invalid arguments for %s: %v", name, parseErr)
	}
	if c.registry == nil {
		return tools.Failf(tools.CodeUnknownTool, "Unknown tool: %s", name)
	}
	handler, err := c.registry.Resolve(name)
	if err != nil {
		return tools.Failf(tools.CodeUnknownTool, "Unknown tool: %s", name)
	}

	if c.gate != nil {
		allowed, reason, err := c.gate.Allow(ctx, name, args)
		if err != nil {
			c.logger.Error("policy evaluation failed", "tool", name, "error", err)
			return tools.Failf(tools.CodePolicy, "Policy check failed for %s", name)
		}
		if !allowed {
			return tools.Failf(tools.CodeBlocked, "Tool %s was blocked: %s", name, reason)
		}
	}

	return safeInvoke(ctx, handler, name, args)
}

func safeInvoke(ctx context.Context, h tools.Handler, name string, args map[string]any) (result tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = tools.Failf(tools.CodeExecution, "Tool %s failed: %v", name, r)
		}
	}()
	return h.Invoke(ctx, args)
}

func (c *Conversation) record(rec domain.ToolInvocation) int {
	c.invocations = append(c.invocations, rec)
	return len(c.invocations) - 1
}

func (c *Conversation) finish(idx int, result tools.Result, payload map[string]any) {
	ended := c.now()
	rec := &c.invocations[idx]
	rec.EndedAt = &ended
	rec.Result = payload
	if result.Failed() {
		rec.Status = domain.ToolInvocationError
		rec.Error = result.Err.Message
		return
	}
	rec.Status = domain.ToolInvocationCompleted
}

func (c *Conversation) recordSkipped(call llm.ToolCall) {
	now := c.now()
	c.invocations = append(c.invocations, domain.ToolInvocation{
		ID:        "ti_" + uuid.New().String()[:8],
		Name:      call.Function.Name,
		Status:    domain.ToolInvocationError,
		StartedAt: now,
		EndedAt:   &now,
		Error:     "tool call has no id",
	})
}
