// Package v1 provides the HTTP handlers of the task agent API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Sessions
	e.POST("/v1/sessions", h.CreateSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/reset", h.ResetSession)
	e.POST("/v1/sessions/:session_id/messages", h.PostMessage)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)
	e.GET("/v1/sessions/:session_id/tool_calls", h.GetToolCalls)
	e.GET("/v1/sessions/:session_id/summary", h.GetTaskSummary)
	e.POST("/v1/sessions/:session_id/tools/:name", h.InvokeTool)

	// Tools
	e.GET("/v1/tools", h.ListTools)

	// Tasks
	e.GET("/v1/tasks", h.ListTasks)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  "0.1.0",
		"sessions": h.service.SessionCount(),
	})
}

func notFoundOr500(c echo.Context, err error) error {
	if errors.Is(err, service.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: err.Error()})
}
