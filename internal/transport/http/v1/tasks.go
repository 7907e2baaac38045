package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/service"
)

// ListTasks lists tasks, optionally filtered by status.
// GET /v1/tasks?status=
func (h *Handler) ListTasks(c echo.Context) error {
	tasks, err := h.service.ListTasks(c.Request().Context(), c.QueryParam("status"))
	if errors.Is(err, service.ErrInvalidStatus) {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, domain.TaskListResponse{Tasks: tasks})
}
