package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
)

// ConfigHandler exposes the runtime bot settings.
type ConfigHandler struct {
	service *settings.Service
	logger  *slog.Logger
}

// NewConfigHandler creates a settings handler.
func NewConfigHandler(log *slog.Logger, service *settings.Service) *ConfigHandler {
	return &ConfigHandler{
		service: service,
		logger:  log.With(slog.String("handler", "config")),
	}
}

// Register mounts the settings routes.
func (h *ConfigHandler) Register(e *echo.Echo) {
	e.GET("/api/config", h.Get)
	e.POST("/api/config", h.Update)
}

// Get returns the current settings.
func (h *ConfigHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Get())
}

// Update merges the request body into the current settings. Absent fields
// keep their values, so partial updates are safe.
func (h *ConfigHandler) Update(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next := h.service.Get()
	if err := json.Unmarshal(body, &next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Replace(next); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("settings updated")
	return c.JSON(http.StatusOK, h.service.Get())
}
