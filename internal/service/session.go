package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/tools"
)

// session pairs a conversation with the lock that serializes its turns.
type session struct {
	mu   sync.Mutex
	id   string
	conv *agent.Conversation

	lastActive time.Time // guarded by Service.mu
}

// CreateSession starts an empty conversation and returns its id.
func (s *Service) CreateSession() string {
	id := "sess_" + uuid.New().String()[:8]
	s.mu.Lock()
	s.sessions[id] = &session{id: id, conv: s.newConversation(id), lastActive: s.now()}
	s.mu.Unlock()
	s.logger.Info("session created", "session_id", id)
	return id
}

// lookup returns the session and marks it active.
func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastActive = s.now()
	return sess, nil
}

func (s *Service) getOrCreate(sessionID string) *session {
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{id: sessionID, conv: s.newConversation(sessionID)}
		s.sessions[sessionID] = sess
		s.logger.Info("session created", "session_id", sessionID)
	}
	sess.lastActive = s.now()
	return sess
}

// Chat runs one user turn in the session, creating the session when needed.
// The response always carries a reply. The error is the conversation's
// error, if any, for status mapping.
func (s *Service) Chat(ctx context.Context, sessionID, text string) (*domain.ChatResponse, error) {
	sess := s.getOrCreate(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	turnCtx := ctx
	if d := s.config.TurnTimeout(); d > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	reply, err := sess.conv.Submit(turnCtx, text)
	if err != nil && turnCtx.Err() != nil {
		// The turn was cut short; its transcript may hold unanswered calls.
		s.logger.Warn("turn interrupted, discarding conversation", "session_id", sess.id, "error", turnCtx.Err())
		sess.conv = s.newConversation(sess.id)
	}
	return &domain.ChatResponse{SessionID: sess.id, Reply: reply}, err
}

// ResetSession clears the session's transcript.
func (s *Service) ResetSession(sessionID string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.conv.Reset()
	s.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// DeleteSession drops the session.
func (s *Service) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Transcript returns the session's messages in display form.
func (s *Service) Transcript(sessionID string) (*domain.TranscriptResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &domain.TranscriptResponse{
		SessionID: sessionID,
		Messages:  agent.TranscriptView(sess.conv.Transcript()),
	}, nil
}

// ToolCalls returns the session's tool audit trail and its status counts.
func (s *Service) ToolCalls(sessionID string) (*domain.ToolCallsResponse, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &domain.ToolCallsResponse{
		SessionID: sessionID,
		ToolCalls: sess.conv.ToolInvocations(),
		Summary:   sess.conv.ToolSummary(),
	}, nil
}

// TaskSummary counts tasks by status through the report tool, so the lookup
// shows up in the session's audit trail.
func (s *Service) TaskSummary(ctx context.Context, sessionID string) (*domain.TaskSummary, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := sess.conv.InvokeToolDirectly(ctx, tools.GenerateTaskReportName, map[string]any{"period": string(domain.ReportPeriodAll)})
	if result.Failed() {
		return nil, fmt.Errorf("failed to generate task summary: %s", result.Err.Message)
	}

	switch v := result.Data["summary"].(type) {
	case domain.TaskSummary:
		return &v, nil
	case nil:
		return nil, errors.New("failed to generate task summary: report has no summary")
	default:
		var summary domain.TaskSummary
		if err := mapstructure.Decode(v, &summary); err != nil {
			return nil, fmt.Errorf("failed to decode task summary: %w", err)
		}
		return &summary, nil
	}
}

// ListTasks reads tasks straight from the store. An empty status lists all
// tasks in board order.
func (s *Service) ListTasks(ctx context.Context, status string) ([]domain.Task, error) {
	statuses := domain.AllTaskStatuses
	if status != "" {
		st := domain.TaskStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		statuses = []domain.TaskStatus{st}
	}

	out := []domain.Task{}
	for _, st := range statuses {
		tasks, err := s.store.GetTasksByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		out = append(out, tasks...)
	}
	return out, nil
}
