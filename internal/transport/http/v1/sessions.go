package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/taskagent/internal/agent"
	"github.com/xiaot623/taskagent/internal/domain"
)

// CreateSession starts a new conversation.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	id := h.service.CreateSession()
	return c.JSON(http.StatusCreated, domain.SessionResponse{SessionID: id})
}

// PostMessage runs one chat turn.
// POST /v1/sessions/:session_id/messages
func (h *Handler) PostMessage(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body", Reply: agent.MsgInvalidInput})
	}

	resp, err := h.service.Chat(c.Request().Context(), c.Param("session_id"), req.Content)
	if errors.Is(err, agent.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "content is required", Reply: resp.Reply})
	}
	if err != nil {
		c.Logger().Warnf("chat turn for %s degraded: %v", resp.SessionID, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSessionMessages returns the session transcript.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	transcript, err := h.service.Transcript(c.Param("session_id"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, transcript)
}

// ResetSession clears the session transcript.
// POST /v1/sessions/:session_id/reset
func (h *Handler) ResetSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if err := h.service.ResetSession(sessionID); err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, domain.SessionResponse{SessionID: sessionID})
}

// DeleteSession drops the session and its audit trail.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if err := h.service.DeleteSession(sessionID); err != nil {
		return notFoundOr500(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetToolCalls returns the tool audit trail of a session.
// GET /v1/sessions/:session_id/tool_calls
func (h *Handler) GetToolCalls(c echo.Context) error {
	calls, err := h.service.ToolCalls(c.Param("session_id"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, calls)
}

// GetTaskSummary returns task counts by status.
// GET /v1/sessions/:session_id/summary
func (h *Handler) GetTaskSummary(c echo.Context) error {
	sessionID := c.Param("session_id")
	summary, err := h.service.TaskSummary(c.Request().Context(), sessionID)
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, domain.TaskSummaryResponse{SessionID: sessionID, Summary: *summary})
}
