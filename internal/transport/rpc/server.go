// Package rpc exposes the chat service as JSON-RPC over TCP.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/service"
)

// ServiceName is the JSON-RPC service prefix, as in "TaskAgent.Chat".
const ServiceName = "TaskAgent"

// Server exposes RPC endpoints for scripts and other local clients.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the chat service.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Listen binds the server to addr. Serve must be called to accept connections.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts RPC connections on the bound listener until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept failed", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the TaskAgent RPC methods.
type Handler struct {
	service *service.Service
}

// ChatArgs is one user turn. An empty session id starts a new session.
type ChatArgs struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// SessionArgs identifies a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// ListTasksArgs filters tasks by status. Empty lists all.
type ListTasksArgs struct {
	Status string `json:"status"`
}

// AckResponse is a generic OK response.
type AckResponse struct {
	OK bool `json:"ok"`
}

// Chat runs one turn. Degraded turns still return the reply; only invalid
// input fails the call.
func (h *Handler) Chat(req *ChatArgs, resp *domain.ChatResponse) error {
	if req == nil {
		return errors.New("chat request is required")
	}

	result, err := h.service.Chat(context.Background(), req.SessionID, req.Content)
	if result != nil && resp != nil {
		*resp = *result
	}
	if errors.Is(err, agent.ErrInvalidInput) {
		return errors.New(result.Reply)
	}
	return nil
}

// Reset clears a session's transcript.
func (h *Handler) Reset(req *SessionArgs, resp *AckResponse) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}
	if err := h.service.ResetSession(req.SessionID); err != nil {
		return err
	}
	if resp != nil {
		resp.OK = true
	}
	return nil
}

// Transcript returns a session's messages.
func (h *Handler) Transcript(req *SessionArgs, resp *domain.TranscriptResponse) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}
	result, err := h.service.Transcript(req.SessionID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *result
	}
	return nil
}

// ToolCalls returns a session's tool audit trail.
func (h *Handler) ToolCalls(req *SessionArgs, resp *domain.ToolCallsResponse) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}
	result, err := h.service.ToolCalls(req.SessionID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *result
	}
	return nil
}

// ListTasks lists stored tasks.
func (h *Handler) ListTasks(req *ListTasksArgs, resp *domain.TaskListResponse) error {
	status := ""
	if req != nil {
		status = req.Status
	}
	tasks, err := h.service.ListTasks(context.Background(), status)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.Tasks = tasks
	}
	return nil
}
