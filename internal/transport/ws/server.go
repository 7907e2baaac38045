// Package ws serves the chat loop over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/config"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/service"
)

// Chatter runs chat turns for a session.
type Chatter interface {
	Chat(ctx context.Context, sessionID, text string) (*domain.ChatResponse, error)
	ResetSession(sessionID string) error
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	chat     Chatter
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, chat Chatter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		chat:   chat,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// connection is one client socket. Writes from the reader and the pinger
// are serialized by writeMu.
type connection struct {
	id        string
	conn      *websocket.Conn
	sessionID string // owned by the reader goroutine

	writeMu sync.Mutex
	done    chan struct{}
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
// GET /v1/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := &connection{
		id:   uuid.New().String(),
		conn: ws,
		done: make(chan struct{}),
	}
	if s.cfg.WSMaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.WSMaxMessageSize)
	}

	go s.pingLoop(conn)
	go s.readLoop(conn)
	return nil
}

// readLoop handles frames one at a time, so a connection has at most one turn in flight.
func (s *Server) readLoop(conn *connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		close(conn.done)
		conn.conn.Close()
		s.logger.Debug("connection closed", "conn_id", conn.id, "session_id", conn.sessionID)
	}()

	s.extendReadDeadline(conn)
	conn.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)
		return nil
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "conn_id", conn.id, "error", err)
			}
			return
		}
		s.handleMessage(ctx, conn, data)
		// A long turn must not count as client silence.
		s.extendReadDeadline(conn)
	}
}

// pingLoop keeps the connection alive until the reader exits.
func (s *Server) pingLoop(conn *connection) {
	interval := s.cfg.PingInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) extendReadDeadline(conn *connection) {
	if d := s.cfg.ReadTimeout(); d > 0 {
		conn.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(ctx context.Context, conn *connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeMessage:
		s.handleChat(ctx, conn, data)
	case TypeReset:
		s.handleReset(conn, base)
	default:
		s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

func (s *Server) handleHello(conn *connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}
	conn.sessionID = sessionID

	s.sendJSON(conn, HelloAckMessage{BaseMessage: s.header(conn, TypeHelloAck, msg.RequestID)})
	s.logger.Info("hello handshake completed", "conn_id", conn.id, "session_id", sessionID)
}

func (s *Server) handleChat(ctx context.Context, conn *connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid message frame")
		return
	}
	if conn.sessionID == "" {
		s.sendError(conn, msg.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}

	resp, err := s.chat.Chat(ctx, conn.sessionID, msg.Content)
	if errors.Is(err, agent.ErrInvalidInput) {
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidInput, resp.Reply)
		return
	}
	if err != nil {
		s.logger.Warn("chat turn degraded", "session_id", conn.sessionID, "error", err)
	}

	s.sendJSON(conn, ReplyMessage{
		BaseMessage: s.header(conn, TypeReply, msg.RequestID),
		Content:     resp.Reply,
	})
}

func (s *Server) handleReset(conn *connection, msg BaseMessage) {
	if conn.sessionID == "" {
		s.sendError(conn, msg.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	// A session that has not chatted yet, or was reaped, has nothing to clear.
	if err := s.chat.ResetSession(conn.sessionID); err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		s.sendError(conn, msg.RequestID, ErrorCodeInternalError, err.Error())
		return
	}
	s.sendJSON(conn, BaseMessage{Type: TypeResetAck, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID, SessionID: conn.sessionID})
}

func (s *Server) header(conn *connection, msgType, requestID string) BaseMessage {
	return BaseMessage{
		Type:      msgType,
		Ts:        time.Now().UnixMilli(),
		RequestID: requestID,
		SessionID: conn.sessionID,
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *connection, requestID, code, message string) {
	s.sendJSON(conn, ErrorMessage{
		BaseMessage: s.header(conn, TypeError, requestID),
		Code:        code,
		Message:     message,
	})
}

func (s *Server) sendJSON(conn *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	if err := s.write(conn, websocket.TextMessage, data); err != nil {
		s.logger.Warn("failed to write message", "conn_id", conn.id, "error", err)
	}
}

func (s *Server) write(conn *connection, messageType int, data []byte) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if d := s.cfg.WriteTimeout(); d > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(d))
	}
	return conn.conn.WriteMessage(messageType, data)
}
