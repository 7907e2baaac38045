package llm

import (
	"log/slog"

	"github.com/xiaot623/taskagent/internal/config"
)

// NewLLMClient creates an LLM client based on the configured mode.
// If MODE=MOCK, returns the rule-based mock client; otherwise returns a real Client.
func NewLLMClient(cfg *config.Config, logger *slog.Logger) LLMClient {
	if cfg.MockMode() {
		logger.Info("MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	logger.Info("using hosted LLM", "base_url", cfg.BaseURL, "model", cfg.Model)
	return NewClient(cfg.BaseURL, cfg.APIKey, cfg.LLMTimeout())
}
