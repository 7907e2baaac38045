// Package agent drives the tool-calling conversation with the model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/tools"
)

// Defaults for a conversation.
const (
	DefaultMaxIterations = 5
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096
)

// State is the loop's position within a turn. It is informational only.
type State int32

const (
	StateIdle State = iota
	StateAwaitingModel
	StateDispatchingTools
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDispatchingTools:
		return "dispatching_tools"
	}
	return "idle"
}

// Gate decides whether a tool call may run. *policy.Engine satisfies it.
type Gate interface {
	Allow(ctx context.Context, toolName string, args map[string]any) (bool, string, error)
}

// Option configures a Conversation.
type Option func(*Conversation)

func WithModel(model string) Option {
	return func(c *Conversation) { c.model = model }
}

func WithTemperature(t float64) Option {
	return func(c *Conversation) { c.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(c *Conversation) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMaxIterations bounds the round-trips of one turn. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(c *Conversation) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) {
		if strings.TrimSpace(prompt) != "" {
			c.systemPrompt = prompt
		}
	}
}

func WithGate(g Gate) Option {
	return func(c *Conversation) { c.gate = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// Conversation owns one session's transcript and runs turns against the model.
//
// It is not safe for concurrent use: callers must not overlap Submit,
// InvokeToolDirectly or Reset on the same instance. State may be read at any time.
type Conversation struct {
	client   llm.LLMClient
	registry *tools.Registry
	gate     Gate
	logger   *slog.Logger
	now      func() time.Time

	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	systemPrompt  string
	catalog       []llm.Tool

	transcript  []llm.ChatMessage
	invocations []domain.ToolInvocation
	directSeq   int
	state       atomic.Int32
}

// New creates a conversation whose transcript holds only the system prompt.
func New(client llm.LLMClient, registry *tools.Registry, opts ...Option) *Conversation {
	c := &Conversation{
		client:        client,
		registry:      registry,
		logger:        slog.Default(),
		now:           time.Now,
		temperature:   DefaultTemperature,
		maxTokens:     DefaultMaxTokens,
		maxIterations: DefaultMaxIterations,
		systemPrompt:  DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.catalog = toolCatalog(registry)
	c.transcript = []llm.ChatMessage{{Role: llm.RoleSystem, Content: c.systemPrompt}}
	return c
}

func toolCatalog(r *tools.Registry) []llm.Tool {
	if r == nil {
		return nil
	}
	schemas := r.Schemas()
	out := make([]llm.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// Submit runs one user turn and returns the answer to show.
//
// The answer is never empty. The error is nil when the model answered or the
// iteration bound was hit; otherwise it wraps ErrInvalidInput,
// ErrServiceUnavailable or ErrMalformedResponse and the answer is the
// matching PoliteMessage.
func (c *Conversation) Submit(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return MsgInvalidInput, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	defer c.setState(StateIdle)

	c.transcript = append(c.transcript, llm.ChatMessage{Role: llm.RoleUser, Content: text})
	c.logger.Info("processing user message", "length", len(text))

	var lastContent string
	for iteration := 1; iteration <= c.maxIterations; iteration++ {
		lastContent = ""

		c.setState(StateAwaitingModel)
		msg, err := c.roundTrip(ctx, iteration)
		if err != nil {
			c.logger.Error("model round-trip failed", "iteration", iteration, "error", err)
			return PoliteMessage(err), err
		}

		if len(msg.ToolCalls) == 0 {
			answer := strings.TrimSpace(msg.Content)
			if answer == "" {
				answer = MsgEmptyAnswer
			}
			c.transcript = append(c.transcript, llm.ChatMessage{Role: llm.RoleAssistant, Content: answer})
			c.logger.Info("turn completed", "iteration", iteration)
			return answer, nil
		}

		lastContent = msg.Content
		c.setState(StateDispatchingTools)
		if answered := c.dispatchCalls(ctx, msg); answered == 0 {
			c.logger.Warn("no tool results could be produced", "iteration", iteration, "requested", len(msg.ToolCalls))
			return MsgNoToolResults, nil
		}
	}

	c.logger.Warn("maximum iterations reached", "max_iterations", c.maxIterations)
	if answer := strings.TrimSpace(lastContent); answer != "" {
		return answer, nil
	}
	return MsgIterationLimit, nil
}

func (c *Conversation) roundTrip(ctx context.Context, iteration int) (*llm.ChatMessage, error) {
	temperature := c.temperature
	maxTokens := c.maxTokens
	req := &llm.ChatCompletionRequest{
		Model:       c.model,
		Messages:    cloneMessages(c.transcript),
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Tools:       c.catalog,
	}
	if len(c.catalog) > 0 {
		req.ToolChoice = llm.ToolChoiceAuto
	}

	start := c.now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrInvalidResponse) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("%w: response has no message", ErrMalformedResponse)
	}

	msg := cloneMessage(*resp.Choices[0].Message)
	attrs := []any{
		"iteration", iteration,
		"model", resp.Model,
		"tool_calls", len(msg.ToolCalls),
		"latency_ms", c.now().Sub(start).Milliseconds(),
	}
	if resp.Usage != nil {
		attrs = append(attrs, "total_tokens", resp.Usage.TotalTokens)
	}
	c.logger.Info("model responded", attrs...)
	return &msg, nil
}

// Transcript returns a copy of the messages exchanged so far.
func (c *Conversation) Transcript() []llm.ChatMessage {
	return cloneMessages(c.transcript)
}

// ToolInvocations returns a copy of the audit trail.
func (c *Conversation) ToolInvocations() []domain.ToolInvocation {
	return append([]domain.ToolInvocation(nil), c.invocations...)
}

// ToolSummary counts audit records by status.
func (c *Conversation) ToolSummary() domain.ToolInvocationSummary {
	return domain.SummarizeInvocations(c.invocations)
}

// Reset starts a fresh transcript. The audit trail is kept.
func (c *Conversation) Reset() {
	c.transcript = []llm.ChatMessage{{Role: llm.RoleSystem, Content: c.systemPrompt}}
	c.setState(StateIdle)
}

// State reports where the current turn is.
func (c *Conversation) State() State {
	return State(c.state.Load())
}

func (c *Conversation) setState(s State) {
	c.state.Store(int32(s))
}
