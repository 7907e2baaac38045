// Package service hosts chat sessions, each backed by its own conversation loop.
package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/config"
	"github.com/xiaot623/taskagent/internal/repository"
	"github.com/xiaot623/taskagent/internal/tools"
	"github.com/xiaot623/taskagent/policy"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidStatus is returned by ListTasks for an unknown status filter.
	ErrInvalidStatus = errors.New("invalid task status")
)

type Service struct {
	store        store.TaskStore
	registry     *tools.Registry
	llmClient    llm.LLMClient
	config       *config.Config
	policyEngine *policy.Engine
	logger       *slog.Logger
	systemPrompt string
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func New(store store.TaskStore, registry *tools.Registry, llmClient llm.LLMClient, cfg *config.Config, policyEngine *policy.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		registry:     registry,
		llmClient:    llmClient,
		config:       cfg,
		policyEngine: policyEngine,
		logger:       logger,
		systemPrompt: agent.LoadSystemPrompt(cfg.SystemPromptPath, logger),
		now:          time.Now,
		sessions:     make(map[string]*session),
	}
}

func (s *Service) newConversation(sessionID string) *agent.Conversation {
	return agent.New(s.llmClient, s.registry,
		agent.WithModel(s.config.Model),
		agent.WithTemperature(s.config.Temperature),
		agent.WithMaxTokens(s.config.MaxTokens),
		agent.WithMaxIterations(s.config.MaxIterations),
		agent.WithSystemPrompt(s.systemPrompt),
		agent.WithGate(s.policyEngine),
		agent.WithLogger(s.logger.With("session_id", sessionID)),
	)
}
