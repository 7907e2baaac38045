package agent

import (
	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/domain"
)

func cloneMessage(m llm.ChatMessage) llm.ChatMessage {
	m.ToolCalls = append([]llm.ToolCall(nil), m.ToolCalls...)
	return m
}

func cloneMessages(in []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(in))
	for i, m := range in {
		out[i] = cloneMessage(m)
	}
	return out
}

// TranscriptView converts a transcript into its display form.
func TranscriptView(messages []llm.ChatMessage) []domain.TranscriptMessage {
	out := make([]domain.TranscriptMessage, 0, len(messages))
	for _, m := range messages {
		tm := domain.TranscriptMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			tm.ToolCalls = append(tm.ToolCalls, domain.TranscriptToolUse{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = append(out, tm)
	}
	return out
}
