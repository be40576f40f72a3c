package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/srthkdev/newsletter-ai-sub000/internal/orchestrator"
	"github.com/srthkdev/newsletter-ai-sub000/internal/store"
)

// NewslettersHandler exposes the generation pipeline and its read models.
type NewslettersHandler struct {
	Orch  *orchestrator.Orchestrator
	Store *store.Store
}

type GenerateRequest struct {
	CustomPrompt string `json:"custom_prompt"`
	SendEmail    bool   `json:"send_email"`
}

type ResearchRequest struct {
	Topics       []string `json:"topics"`
	CustomPrompt string   `json:"custom_prompt"`
	DaysBack     int      `json:"days_back"`
}

type PromptPreviewRequest struct {
	CustomPrompt string `json:"custom_prompt"`
}

func (h *NewslettersHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("/generate", h.generate)
	g.GET("/history", h.history)
	g.GET("/engagement", h.engagement)
	g.POST("/research", h.research)
	g.POST("/prompt-preview", h.promptPreview)
}

func (h *NewslettersHandler) generate(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var email string
	if req.SendEmail {
		var err error
		email, err = h.Store.GetUserEmail(c.Request().Context(), userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user email")
		}
	}
	run := h.Orch.GenerateNewsletter(c.Request().Context(), userID, req.CustomPrompt, req.SendEmail, email)
	status := http.StatusOK
	if !run.Success {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, run)
}

func (h *NewslettersHandler) history(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := h.Orch.NewsletterHistory(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"newsletters": items, "count": len(items)})
}

func (h *NewslettersHandler) engagement(c echo.Context) error {
	userID := c.Get("user_id").(string)
	m, err := h.Orch.EngagementMetrics(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return c.JSON(http.StatusOK, m)
}

func (h *NewslettersHandler) research(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, _ := h.Orch.ResearchOnly(c.Request().Context(), userID, req.Topics, req.CustomPrompt, req.DaysBack)
	return c.JSON(http.StatusOK, res)
}

func (h *NewslettersHandler) promptPreview(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req PromptPreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CustomPrompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "custom_prompt is required")
	}
	res, _ := h.Orch.ProcessPromptOnly(c.Request().Context(), userID, req.CustomPrompt, nil)
	return c.JSON(http.StatusOK, res)
}

// AgentsHandler exposes the agent status read model.
type AgentsHandler struct {
	Orch *orchestrator.Orchestrator
}

func (h *AgentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("/status", h.status)
	g.POST("/self-test", h.selfTest)
}

func (h *AgentsHandler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Orch.AgentStatus())
}

func (h *AgentsHandler) selfTest(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Orch.SelfTest(c.Request().Context()))
}
