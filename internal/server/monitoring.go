package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/srthkdev/newsletter-ai-sub000/internal/monitor"
)

// MonitoringHandler exposes the health dashboard and error management.
type MonitoringHandler struct {
	Monitor *monitor.Monitor
}

func (h *MonitoringHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("/dashboard", h.dashboard)
	g.GET("/agents/:name", h.agentReport)
	g.POST("/errors/:index/resolve", h.resolveError)
}

func (h *MonitoringHandler) dashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Monitor.GetDashboard())
}

func (h *MonitoringHandler) agentReport(c echo.Context) error {
	report := h.Monitor.GetPerformanceReport(c.Param("name"))
	if report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown agent")
	}
	return c.JSON(http.StatusOK, report)
}

func (h *MonitoringHandler) resolveError(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}
	if !h.Monitor.ResolveError(index) {
		return echo.NewHTTPError(http.StatusNotFound, "no error at that index")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"resolved": true, "index": index})
}
