package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/tools"
)

// ListTools returns the tool catalog offered to the model.
// GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": h.service.ToolCatalog(),
	})
}

// InvokeTool runs a tool directly in a session, bypassing the model.
// The payload is the same JSON the model would receive.
// POST /v1/sessions/:session_id/tools/:name
func (h *Handler) InvokeTool(c echo.Context) error {
	args := map[string]any{}
	if c.Request().ContentLength != 0 {
		// Body only: path params must not leak into the arguments.
		if err := (&echo.DefaultBinder{}).BindBody(c, &args); err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "arguments must be a JSON object"})
		}
	}

	result, err := h.service.InvokeTool(c.Request().Context(), c.Param("session_id"), c.Param("name"), args)
	if errors.Is(err, tools.ErrUnknownTool) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return notFoundOr500(c, err)
	}

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result.Payload())
}
