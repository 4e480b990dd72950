package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Wu-ChengLiang/BiliGo/internal/monitor"
	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
)

// stopTimeout bounds how long a stop request waits for the loop to join.
const stopTimeout = 3 * time.Second

// MonitorHandler starts and stops the polling loop and reports its status.
type MonitorHandler struct {
	monitor  *monitor.Monitor
	settings *settings.Service
	rules    *rules.Service
	logger   *slog.Logger
}

// NewMonitorHandler creates a monitor control handler.
func NewMonitorHandler(log *slog.Logger, m *monitor.Monitor, svc *settings.Service, rulesSvc *rules.Service) *MonitorHandler {
	return &MonitorHandler{
		monitor:  m,
		settings: svc,
		rules:    rulesSvc,
		logger:   log.With(slog.String("handler", "monitor")),
	}
}

// Register mounts the monitoring control routes.
func (h *MonitorHandler) Register(e *echo.Echo) {
	e.POST("/api/start", h.Start)
	e.POST("/api/stop", h.Stop)
	e.GET("/api/status", h.Status)
}

// Start launches the polling loop.
func (h *MonitorHandler) Start(c echo.Context) error {
	if err := h.monitor.Start(); err != nil {
		switch {
		case errors.Is(err, monitor.ErrNoCredentials):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, monitor.ErrAlreadyRunning):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

// Stop shuts the polling loop down, waiting briefly for the goroutine to join.
func (h *MonitorHandler) Stop(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), stopTimeout)
	defer cancel()
	if err := h.monitor.Stop(ctx); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

type statusResponse struct {
	Monitoring bool `json:"monitoring"`
	ConfigSet  bool `json:"config_set"`
	RulesCount int  `json:"rules_count"`
	monitor.Status
}

// Status reports loop state, counters, and configuration readiness.
func (h *MonitorHandler) Status(c echo.Context) error {
	status := h.monitor.Status()
	return c.JSON(http.StatusOK, statusResponse{
		Monitoring: status.Running,
		ConfigSet:  h.settings.Get().HasCredentials(),
		RulesCount: len(h.rules.List()),
		Status:     status,
	})
}
