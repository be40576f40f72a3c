package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srthkdev/newsletter-ai-sub000/internal/memory"
	"github.com/srthkdev/newsletter-ai-sub000/internal/scheduler"
	"github.com/srthkdev/newsletter-ai-sub000/internal/store"
)

// ScheduleHandler exposes the scheduler control API. All operations act on
// the authenticated user's own job except status, which is registry-wide.
type ScheduleHandler struct {
	Sched *scheduler.Scheduler
	Store *store.Store
}

type AddScheduleRequest struct {
	Frequency string `json:"frequency"`
	SendTime  string `json:"send_time"`
	Timezone  string `json:"timezone"`
}

func (h *ScheduleHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.add)
	g.DELETE("", h.remove)
	g.POST("/pause", h.pause)
	g.POST("/resume", h.resume)
	g.POST("/trigger", h.trigger)
	g.GET("", h.info)
	g.GET("/status", h.status)
}

func (h *ScheduleHandler) add(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req AddScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Frequency == "" {
		req.Frequency = "weekly"
	}
	if req.SendTime == "" {
		req.SendTime = "09:00"
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	email, err := h.Store.GetUserEmail(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user email")
	}
	job := h.Sched.AddJob(userID, email, scheduler.Frequency(req.Frequency), req.SendTime, req.Timezone)
	return c.JSON(http.StatusCreated, job)
}

func (h *ScheduleHandler) remove(c echo.Context) error {
	h.Sched.RemoveJob(c.Get("user_id").(string))
	return c.NoContent(http.StatusOK)
}

func (h *ScheduleHandler) pause(c echo.Context) error {
	if !h.Sched.PauseJob(c.Get("user_id").(string)) {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule found")
	}
	return c.NoContent(http.StatusOK)
}

func (h *ScheduleHandler) resume(c echo.Context) error {
	if !h.Sched.ResumeJob(c.Get("user_id").(string)) {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule found")
	}
	return c.NoContent(http.StatusOK)
}

func (h *ScheduleHandler) trigger(c echo.Context) error {
	run, err := h.Sched.TriggerImmediate(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	status := http.StatusOK
	if !run.Success {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, run)
}

func (h *ScheduleHandler) info(c echo.Context) error {
	info, ok := h.Sched.UserScheduleInfo(c.Get("user_id").(string))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule found")
	}
	return c.JSON(http.StatusOK, info)
}

func (h *ScheduleHandler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Sched.Status())
}

// PreferencesHandler persists newsletter settings to Postgres (the system
// of record the scheduler seeds from) and mirrors them into the fast-path
// redis cache the workflow reads.
type PreferencesHandler struct {
	Store  *store.Store
	Memory *memory.Store
	Sched  *scheduler.Scheduler
}

type PreferencesRequest struct {
	Topics    []string `json:"topics"`
	Frequency string   `json:"frequency"`
	SendTime  string   `json:"send_time"`
	Timezone  string   `json:"timezone"`
	Tone      string   `json:"tone"`
}

func (h *PreferencesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.get)
	g.PUT("", h.put)
}

func (h *PreferencesHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	p, err := h.Store.GetPreferences(c.Request().Context(), userID)
	if err == store.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "no preferences set")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PreferencesHandler) put(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req PreferencesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Frequency == "" {
		req.Frequency = "weekly"
	}
	if req.SendTime == "" {
		req.SendTime = "09:00"
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if req.Tone == "" {
		req.Tone = "professional"
	}
	ctx := c.Request().Context()
	p := store.Preferences{
		UserID:    userID,
		Topics:    req.Topics,
		Frequency: req.Frequency,
		SendTime:  req.SendTime,
		Timezone:  req.Timezone,
		Tone:      req.Tone,
	}
	if err := h.Store.UpsertPreferences(ctx, p); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Memory.StoreUserPreferences(ctx, userID, map[string]interface{}{
		"topics":    req.Topics,
		"frequency": req.Frequency,
		"send_time": req.SendTime,
		"timezone":  req.Timezone,
		"tone":      req.Tone,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Keep the schedule in step with the new cadence.
	if email, err := h.Store.GetUserEmail(ctx, userID); err == nil {
		h.Sched.AddJob(userID, email, scheduler.Frequency(req.Frequency), req.SendTime, req.Timezone)
	}
	return c.JSON(http.StatusOK, p)
}
