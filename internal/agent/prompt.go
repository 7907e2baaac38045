package agent

import (
	"log/slog"
	"os"
	"strings"
)

// DefaultSystemPrompt is used when no prompt file is configured or readable.
const DefaultSystemPrompt = `You are an AI Task Manager assistant. Help users manage their tasks efficiently.
Be concise, helpful, and action-oriented in your responses.
Use the available tools to add tasks, update their status, list them and build reports.
Dates are in YYYY-MM-DD format. Task statuses are "todo", "in progress" and "done".`

// LoadSystemPrompt reads the prompt at path, falling back to DefaultSystemPrompt
// when path is empty, missing or blank.
func LoadSystemPrompt(path string, logger *slog.Logger) string {
	if path == "" {
		return DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to load system prompt, using fallback", "path", path, "error", err)
		return DefaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		logger.Warn("system prompt is empty, using fallback", "path", path)
		return DefaultSystemPrompt
	}
	logger.Debug("system prompt loaded", "path", path)
	return prompt
}
