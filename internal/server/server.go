package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srthkdev/newsletter-ai-sub000/config"
	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
	"github.com/srthkdev/newsletter-ai-sub000/internal/email"
	"github.com/srthkdev/newsletter-ai-sub000/internal/memory"
	"github.com/srthkdev/newsletter-ai-sub000/internal/monitor"
	"github.com/srthkdev/newsletter-ai-sub000/internal/orchestrator"
	"github.com/srthkdev/newsletter-ai-sub000/internal/scheduler"
	"github.com/srthkdev/newsletter-ai-sub000/internal/source"
	"github.com/srthkdev/newsletter-ai-sub000/internal/store"
	"github.com/srthkdev/newsletter-ai-sub000/provider"
)

// Run wires the full service and blocks serving HTTP until the process
// exits. All shared dependencies are constructed here once and injected.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	secret := []byte(cfg.Server.JWTSecret)

	ctx := context.Background()

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}

	st, err := store.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}
	mem, err := memory.New(ctx, cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	if cfg.Sources.NewsAPI.APIKey == "" {
		return fmt.Errorf("newsapi key not configured (sources.newsapi.api_key)")
	}
	news := source.NewNewsAPI(cfg.Sources.NewsAPI)

	mon := monitor.New(cfg.Monitoring, log.New(log.Writer(), "[MONITOR] ", log.LstdFlags), mem)

	var sender email.Sender
	if cfg.Email.APIKey != "" {
		sender = email.NewSendGridSender(cfg.Email, log.New(log.Writer(), "[EMAIL] ", log.LstdFlags))
	} else {
		sender = email.NopSender{}
		baseLogger.Printf("email.api_key not set, delivery disabled")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Logger:       log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		Monitor:      mon,
		Preferences:  agent.NewPreferenceAgent(mem, cfg.Agents.DefaultTopics),
		Research:     agent.NewResearchAgent(news, cfg.Agents.DaysBack, cfg.Agents.MaxResults),
		Writing:      agent.NewWritingAgent(llm),
		CustomPrompt: agent.NewCustomPromptAgent(llm),
		Sender:       sender,
		Memory:       mem,
		StepTimeout:  cfg.Agents.AgentTimeout,
		DaysBack:     cfg.Agents.DaysBack,
		MaxResults:   cfg.Agents.MaxResults,
	})

	sched := scheduler.New(cfg.Scheduler, log.New(log.Writer(), "[SCHED] ", log.LstdFlags), orch, st, mem.Client())
	sched.Start(ctx)
	defer sched.Stop()

	mon.Start()
	defer mon.Stop()

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	(&PreferencesHandler{Store: st, Memory: mem, Sched: sched}).Register(api.Group("/preferences"), secret)
	(&NewslettersHandler{Orch: orch, Store: st}).Register(api.Group("/newsletters"), secret)
	(&AgentsHandler{Orch: orch}).Register(api.Group("/agents"), secret)
	(&ScheduleHandler{Sched: sched, Store: st}).Register(api.Group("/schedule"), secret)
	(&MonitoringHandler{Monitor: mon}).Register(api.Group("/monitoring"), secret)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
