package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
)

// RulesHandler exposes the keyword reply rules.
type RulesHandler struct {
	service *rules.Service
	logger  *slog.Logger
}

// NewRulesHandler creates a rules handler.
func NewRulesHandler(log *slog.Logger, service *rules.Service) *RulesHandler {
	return &RulesHandler{
		service: service,
		logger:  log.With(slog.String("handler", "rules")),
	}
}

// Register mounts the keyword rule routes.
func (h *RulesHandler) Register(e *echo.Echo) {
	e.GET("/api/rules", h.List)
	e.POST("/api/rules", h.Replace)
}

type rulesPayload struct {
	Rules []rules.Rule `json:"rules"`
}

// List returns all stored rules, including disabled ones.
func (h *RulesHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, rulesPayload{Rules: h.service.List()})
}

// Replace persists a full rule set and rebuilds the match index.
func (h *RulesHandler) Replace(c echo.Context) error {
	var req rulesPayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Replace(req.Rules); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("rules replaced", slog.Int("count", len(req.Rules)))
	return c.JSON(http.StatusOK, rulesPayload{Rules: h.service.List()})
}
