package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions produced by the tool policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
// The module must be package tool_policy and define decision and reason.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewDefaultEngine prepares DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Evaluate checks the tool policy.
// Input should be a map with keys: tool_name, args.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return "", "", fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	decision, _ := doc["decision"].(string)
	reason, _ := doc["reason"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, reason, nil
}

// Allow reports whether the named tool may run with args.
// A nil engine allows everything.
func (e *Engine) Allow(ctx context.Context, toolName string, args map[string]any) (bool, string, error) {
	if e == nil {
		return true, "", nil
	}
	if args == nil {
		args = map[string]any{}
	}
	decision, reason, err := e.Evaluate(ctx, map[string]interface{}{
		"tool_name": toolName,
		"args":      args,
	})
	if err != nil {
		return false, "", err
	}
	if decision != DecisionAllow {
		if reason == "" {
			reason = "blocked by policy"
		}
		return false, reason, nil
	}
	return true, "", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision = "allow"
default reason = ""

block_reasons[msg] {
	input.tool_name == "add_task"
	count(input.args.title) > 200
	msg := "task title must be at most 200 characters"
}

block_reasons[msg] {
	input.tool_name == "update_task_status"
	to_number(input.args.task_id) <= 0
	msg := "task_id must be a positive integer"
}

decision = "block" {
	count(block_reasons) > 0
}

reason = concat("; ", sort(block_reasons)) {
	count(block_reasons) > 0
}
`
