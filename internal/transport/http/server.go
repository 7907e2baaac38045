// Package http provides the HTTP server implementation for the task agent.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xiaot623/taskagent/internal/service"
	"github.com/xiaot623/taskagent/internal/transport/http/llmproxy"
	v1 "github.com/xiaot623/taskagent/internal/transport/http/v1"
	"github.com/xiaot623/taskagent/internal/transport/ws"
)

// NewServer creates and configures the HTTP server.
// This server handles the REST chat API, model listing and the WebSocket chat endpoint.
func NewServer(svc *service.Service, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	llmHandler := llmproxy.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	llmHandler.RegisterRoutes(e)
	if wsServer != nil {
		e.GET("/v1/ws", wsServer.HandleWebSocket)
	}

	return e
}
