// Package monitor tracks every agent execution, classifies failures,
// maintains per-agent health scores, and runs the periodic recovery and
// error-retention sweeps.
package monitor

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/srthkdev/newsletter-ai-sub000/config"
	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
)

// Severity classifies a failure for triage. It never alters control flow.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Status is the derived health bucket of an agent.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// ErrorEvent is one recorded failure.
type ErrorEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	ErrorType string                 `json:"error_type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Resolved  bool                   `json:"resolved"`
}

// AgentMetrics is the long-lived per-agent execution record.
// AverageExecutionTime is in seconds.
type AgentMetrics struct {
	Name                 string      `json:"name"`
	Status               Status      `json:"status"`
	TotalExecutions      int64       `json:"total_executions"`
	SuccessfulExecutions int64       `json:"successful_executions"`
	FailedExecutions     int64       `json:"failed_executions"`
	AverageExecutionTime float64     `json:"average_execution_time"`
	LastExecution        *time.Time  `json:"last_execution,omitempty"`
	LastError            *ErrorEvent `json:"last_error,omitempty"`
	HealthScore          float64     `json:"health_score"`
}

// ContextStore persists error events for offline inspection. Failures here
// are logged and swallowed; they must never break the recording path.
type ContextStore interface {
	StoreUserContext(ctx context.Context, userID, contextType string, data map[string]interface{}) error
}

// Monitor is the health-tracking service. One instance is constructed at
// process start and shared by the orchestrator, scheduler, and API layer.
type Monitor struct {
	cfg    config.MonitoringConfig
	logger *log.Logger
	store  ContextStore

	mu      sync.RWMutex
	metrics map[string]*AgentMetrics
	errors  []*ErrorEvent
	agents  map[string]agent.Agent

	monitoring bool
	stop       chan struct{}

	now func() time.Time
}

// New creates a monitor. store may be nil when error persistence is not
// wanted (tests).
func New(cfg config.MonitoringConfig, logger *log.Logger, store ContextStore) *Monitor {
	if logger == nil {
		logger = log.New(log.Writer(), "[MONITOR] ", log.LstdFlags)
	}
	return &Monitor{
		cfg:     cfg.Normalize(),
		logger:  logger,
		store:   store,
		metrics: make(map[string]*AgentMetrics),
		agents:  make(map[string]agent.Agent),
		stop:    make(chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterAgent tracks an agent and keeps its handle for recovery probes.
func (m *Monitor) RegisterAgent(a agent.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.Name()] = a
	m.ensureMetricsLocked(a.Name())
}

// RegisterComponent tracks a component that has no probeable Agent handle
// (e.g. the orchestrator itself or the email sender).
func (m *Monitor) RegisterComponent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureMetricsLocked(name)
}

func (m *Monitor) ensureMetricsLocked(name string) *AgentMetrics {
	if mm, ok := m.metrics[name]; ok {
		return mm
	}
	mm := &AgentMetrics{Name: name, Status: StatusHealthy, HealthScore: 100.0}
	m.metrics[name] = mm
	return mm
}

// RecordExecution records one agent invocation outcome.
func (m *Monitor) RecordExecution(agentName string, duration time.Duration, success bool, execCtx map[string]interface{}, execErr error) {
	m.mu.Lock()
	mm := m.ensureMetricsLocked(agentName)
	now := m.now()
	mm.TotalExecutions++
	mm.LastExecution = &now

	if success {
		mm.SuccessfulExecutions++
	} else {
		mm.FailedExecutions++
		if execErr != nil {
			event := &ErrorEvent{
				Timestamp: now,
				Component: agentName,
				ErrorType: agent.TypeName(execErr),
				Message:   execErr.Error(),
				Context:   execCtx,
			}
			event.Severity = ClassifySeverity(event.ErrorType)
			if uid, ok := execCtx["user_id"].(string); ok {
				event.UserID = uid
			}
			m.appendErrorLocked(event)
			mm.LastError = event
			m.logger.Printf("%s error: %s", agentName, event.Message)
			defer m.persistError(event)
		}
	}

	// Incremental mean keeps the average without retaining samples.
	mm.AverageExecutionTime = (mm.AverageExecutionTime*float64(mm.TotalExecutions-1) + duration.Seconds()) / float64(mm.TotalExecutions)

	mm.HealthScore = m.healthScoreLocked(mm)
	mm.Status = StatusForScore(mm.HealthScore)
	m.mu.Unlock()
}

// appendErrorLocked appends to the bounded FIFO error log.
func (m *Monitor) appendErrorLocked(event *ErrorEvent) {
	m.errors = append(m.errors, event)
	if len(m.errors) > m.cfg.MaxErrorHistory {
		m.errors = m.errors[len(m.errors)-m.cfg.MaxErrorHistory:]
	}
}

func (m *Monitor) persistError(event *ErrorEvent) {
	if m.store == nil {
		return
	}
	data := map[string]interface{}{
		"timestamp":  event.Timestamp.Format(time.RFC3339),
		"component":  event.Component,
		"error_type": event.ErrorType,
		"severity":   string(event.Severity),
		"message":    event.Message,
		"context":    event.Context,
		"user_id":    event.UserID,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.StoreUserContext(ctx, "system", "error_"+event.Timestamp.Format(time.RFC3339Nano), data); err != nil {
		m.logger.Printf("failed to persist error event: %v", err)
	}
}

// ClassifySeverity maps an error type name to a severity bucket. The mapping
// depends only on the type name, never on message content.
func ClassifySeverity(errorType string) Severity {
	switch errorType {
	case "ConnectionError", "AuthenticationError", "DatabaseError", "OutOfMemoryError":
		return SeverityCritical
	case "TimeoutError", "ValidationError", "KeyError", "ValueError":
		return SeverityHigh
	case "HTTPException", "RequestException", "ParseError":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// healthScoreLocked computes the 0-100 score for an agent.
func (m *Monitor) healthScoreLocked(mm *AgentMetrics) float64 {
	if mm.TotalExecutions == 0 {
		return 100.0
	}

	successRate := float64(mm.SuccessfulExecutions) / float64(mm.TotalExecutions)
	score := successRate * 100

	if mm.LastError != nil {
		age := m.now().Sub(mm.LastError.Timestamp)
		var penalty float64
		switch {
		case age < time.Hour:
			penalty = 20
		case age < 24*time.Hour:
			penalty = 10
		default:
			penalty = 5
		}
		score = math.Max(0, score-penalty)
	}

	if mm.AverageExecutionTime > 60 {
		score = math.Max(0, score-10)
	}

	return math.Round(score*10) / 10
}

// StatusForScore buckets a health score. Boundaries are inclusive lower
// bounds of the higher tier.
func StatusForScore(score float64) Status {
	switch {
	case score >= 90:
		return StatusHealthy
	case score >= 70:
		return StatusWarning
	case score >= 50:
		return StatusError
	default:
		return StatusOffline
	}
}

// AgentMetricsSnapshot returns a copy of one agent's metrics, or nil.
func (m *Monitor) AgentMetricsSnapshot(name string) *AgentMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm, ok := m.metrics[name]
	if !ok {
		return nil
	}
	cp := *mm
	return &cp
}

// ResolveError marks the error at index as resolved. Idempotent.
func (m *Monitor) ResolveError(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.errors) {
		return false
	}
	m.errors[index].Resolved = true
	return true
}

// ErrorCount reports the current size of the error log.
func (m *Monitor) ErrorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.errors)
}

// Start launches the health sweep and error-retention sweep loops.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return
	}
	m.monitoring = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.logger.Printf("starting agent health monitoring")

	go func() {
		ticker := time.NewTicker(m.cfg.HealthSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.RunHealthSweep(context.Background())
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(m.cfg.ErrorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.RunErrorSweep()
			}
		}
	}()
}

// Stop halts the background loops.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	m.monitoring = false
	close(m.stop)
	m.logger.Printf("stopping agent health monitoring")
}

// RunHealthSweep probes every agent in error or offline state. A successful
// probe forces the agent back to healthy immediately; a failed probe leaves
// the status unchanged. Best effort only.
func (m *Monitor) RunHealthSweep(ctx context.Context) {
	m.mu.RLock()
	var unhealthy []string
	for name, mm := range m.metrics {
		if mm.Status == StatusError || mm.Status == StatusOffline {
			unhealthy = append(unhealthy, name)
		}
	}
	m.mu.RUnlock()

	for _, name := range unhealthy {
		m.logger.Printf("agent %s is unhealthy, attempting recovery", name)
		if m.attemptRecovery(ctx, name) {
			m.mu.Lock()
			if mm, ok := m.metrics[name]; ok {
				mm.Status = StatusHealthy
			}
			m.mu.Unlock()
			m.logger.Printf("agent %s recovery successful", name)
		} else {
			m.logger.Printf("agent %s recovery failed", name)
		}
	}
}

// attemptRecovery issues a cheap synthetic probe through the agent's real
// interface. For agents without a registered handle the probe is a no-op
// success, matching a generic liveness check.
func (m *Monitor) attemptRecovery(ctx context.Context, name string) bool {
	m.mu.RLock()
	a, ok := m.agents[name]
	m.mu.RUnlock()
	if !ok {
		return true
	}

	task, params, probeable := probeFor(name)
	if !probeable {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := a.Execute(probeCtx, task, params)
	if err != nil {
		return false
	}
	return res.Success
}

// probeFor returns the minimal synthetic task for a given agent. The probe
// is a real call through the agent interface, so parameters are kept as
// small as possible to bound cost.
func probeFor(name string) (agent.Task, agent.Params, bool) {
	switch name {
	case "research_agent":
		return agent.TaskSearchByTopics, agent.Params{
			"topics":      []string{"test"},
			"days_back":   1,
			"max_results": 1,
		}, true
	case "writing_agent":
		return agent.TaskGenerateNewsletter, agent.Params{
			"articles":    []interface{}{},
			"preferences": map[string]interface{}{},
		}, true
	default:
		return "", nil, false
	}
}

// RunErrorSweep drops error events older than the retention window.
func (m *Monitor) RunErrorSweep() {
	cutoff := m.now().Add(-m.cfg.ErrorRetention)
	m.mu.Lock()
	kept := m.errors[:0]
	for _, e := range m.errors {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.errors = kept
	remaining := len(m.errors)
	m.mu.Unlock()
	m.logger.Printf("cleaned up old errors, %d remaining", remaining)
}

// SetClock overrides the monitor's notion of now. Test hook.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func successRatePct(mm *AgentMetrics) float64 {
	if mm.TotalExecutions == 0 {
		return 0
	}
	return float64(mm.SuccessfulExecutions) / float64(mm.TotalExecutions) * 100
}
