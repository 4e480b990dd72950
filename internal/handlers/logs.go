package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Wu-ChengLiang/BiliGo/internal/events"
)

// LogsHandler exposes the in-memory decision event log.
type LogsHandler struct {
	ring   *events.Ring
	logger *slog.Logger
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(log *slog.Logger, ring *events.Ring) *LogsHandler {
	return &LogsHandler{
		ring:   ring,
		logger: log.With(slog.String("handler", "logs")),
	}
}

// Register mounts the event log routes.
func (h *LogsHandler) Register(e *echo.Echo) {
	e.GET("/api/logs", h.List)
	e.DELETE("/api/logs", h.Clear)
}

// List returns the retained events, oldest first.
func (h *LogsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]events.Event{
		"logs": h.ring.Snapshot(),
	})
}

// Clear drops all retained events.
func (h *LogsHandler) Clear(c echo.Context) error {
	h.ring.Clear()
	return c.NoContent(http.StatusNoContent)
}
