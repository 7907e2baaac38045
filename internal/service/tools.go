package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/tools"
)

// ToolCatalog returns the tool schemas offered to the model, in registration order.
func (s *Service) ToolCatalog() []tools.Schema {
	return s.registry.Schemas()
}

// InvokeTool runs a tool outside the model loop. The call goes through the
// same policy gate as model calls and is recorded in the session's audit trail.
func (s *Service) InvokeTool(ctx context.Context, sessionID, name string, args map[string]any) (tools.Result, error) {
	if _, err := s.registry.Resolve(name); err != nil {
		return tools.Result{}, err
	}
	sess, err := s.lookup(sessionID)
	if err != nil {
		return tools.Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := sess.conv.InvokeToolDirectly(ctx, name, args)
	s.logger.Info("tool invoked directly", "session_id", sessionID, "tool", name, "failed", result.Failed())
	return result, nil
}

// ListModels returns the models served by the configured LLM endpoint.
func (s *Service) ListModels(ctx context.Context) ([]llm.Model, error) {
	models, err := s.llmClient.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}
