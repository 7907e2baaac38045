// Package llmproxy exposes read-only views of the upstream LLM endpoint.
package llmproxy

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/service"
)

// Handler handles LLM proxy HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new LLM proxy handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers LLM proxy routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// OpenAI-compatible endpoints
	e.GET("/v1/models", h.ListModels)
}

// ListModels handles the models list request.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	ctx := c.Request().Context()

	models, err := h.service.ListModels(ctx)
	if err != nil {
		return c.JSON(http.StatusBadGateway, llm.ErrorResponse{
			Error: &llm.APIError{
				Message: err.Error(),
				Type:    "upstream_error",
			},
		})
	}

	return c.JSON(http.StatusOK, llm.ModelsResponse{
		Object: "list",
		Data:   models,
	})
}
