package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srthkdev/newsletter-ai-sub000/config"
	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
)

type probeAgent struct {
	name    string
	succeed bool
	calls   int
	lastTask agent.Task
}

func (a *probeAgent) Name() string { return a.name }

func (a *probeAgent) Execute(ctx context.Context, task agent.Task, params agent.Params) (agent.Result, error) {
	a.calls++
	a.lastTask = task
	if a.succeed {
		return agent.Result{Agent: a.name, Task: task, Success: true}, nil
	}
	err := agent.NewConnectionError("probe failed", nil)
	return agent.Result{Agent: a.name, Task: task, Error: err.Error()}, err
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	return New(config.MonitoringConfig{}, nil, nil)
}

func TestHealthScoreNewAgentIsPerfect(t *testing.T) {
	m := newTestMonitor(t)
	m.RegisterComponent("email_service")
	mm := m.AgentMetricsSnapshot("email_service")
	if mm.HealthScore != 100.0 {
		t.Fatalf("expected 100.0 for untouched agent, got %v", mm.HealthScore)
	}
	if mm.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", mm.Status)
	}
}

func TestHealthScoreRecentErrorScenario(t *testing.T) {
	// 2 successes out of 3 with a recent error and fast executions:
	// (2/3*100) - 20 = 46.7 which buckets to offline.
	m := newTestMonitor(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })

	m.RecordExecution("research_agent", 5*time.Second, true, nil, nil)
	m.RecordExecution("research_agent", 5*time.Second, true, nil, nil)
	clock = base.Add(10 * time.Minute)
	m.RecordExecution("research_agent", 5*time.Second, false, map[string]interface{}{"user_id": "u1"}, agent.NewRequestError("upstream 500", nil))

	mm := m.AgentMetricsSnapshot("research_agent")
	if mm.HealthScore != 46.7 {
		t.Fatalf("expected score 46.7, got %v", mm.HealthScore)
	}
	if mm.Status != StatusOffline {
		t.Fatalf("expected offline, got %s", mm.Status)
	}
	if mm.LastError == nil || mm.LastError.UserID != "u1" {
		t.Fatalf("expected last error with user id, got %+v", mm.LastError)
	}
}

func TestHealthScorePenaltyTiers(t *testing.T) {
	cases := []struct {
		age     time.Duration
		penalty float64
	}{
		{30 * time.Minute, 20},
		{2 * time.Hour, 10},
		{48 * time.Hour, 5},
	}
	for _, tc := range cases {
		m := newTestMonitor(t)
		base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		clock := base
		m.SetClock(func() time.Time { return clock })

		m.RecordExecution("writing_agent", time.Second, false, nil, agent.NewParseError("bad json", nil))
		clock = base.Add(tc.age)
		m.RecordExecution("writing_agent", time.Second, true, nil, nil)

		mm := m.AgentMetricsSnapshot("writing_agent")
		want := 50.0 - tc.penalty
		if mm.HealthScore != want {
			t.Fatalf("age %v: expected %v, got %v", tc.age, want, mm.HealthScore)
		}
	}
}

func TestHealthScoreSlowAgentPenalty(t *testing.T) {
	m := newTestMonitor(t)
	m.RecordExecution("writing_agent", 90*time.Second, true, nil, nil)
	mm := m.AgentMetricsSnapshot("writing_agent")
	if mm.HealthScore != 90.0 {
		t.Fatalf("expected 90.0 with slow-execution penalty, got %v", mm.HealthScore)
	}
}

func TestHealthScoreNeverNegative(t *testing.T) {
	m := newTestMonitor(t)
	for i := 0; i < 5; i++ {
		m.RecordExecution("research_agent", 2*time.Minute, false, nil, agent.NewConnectionError("down", nil))
	}
	mm := m.AgentMetricsSnapshot("research_agent")
	if mm.HealthScore < 0 || mm.HealthScore > 100 {
		t.Fatalf("score out of bounds: %v", mm.HealthScore)
	}
	if mm.HealthScore != 0 {
		t.Fatalf("expected floor of 0, got %v", mm.HealthScore)
	}
}

func TestStatusForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Status
	}{
		{100, StatusHealthy},
		{90, StatusHealthy},
		{89.9, StatusWarning},
		{70, StatusWarning},
		{69.9, StatusError},
		{50, StatusError},
		{49.9, StatusOffline},
		{46.7, StatusOffline},
		{0, StatusOffline},
	}
	for _, tc := range cases {
		if got := StatusForScore(tc.score); got != tc.want {
			t.Fatalf("score %v: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestClassifySeverity(t *testing.T) {
	cases := map[string]Severity{
		"ConnectionError":     SeverityCritical,
		"AuthenticationError": SeverityCritical,
		"DatabaseError":       SeverityCritical,
		"OutOfMemoryError":    SeverityCritical,
		"TimeoutError":        SeverityHigh,
		"ValidationError":     SeverityHigh,
		"KeyError":            SeverityHigh,
		"ValueError":          SeverityHigh,
		"HTTPException":       SeverityMedium,
		"RequestException":    SeverityMedium,
		"ParseError":          SeverityMedium,
		"SomethingElse":       SeverityLow,
		"":                    SeverityLow,
	}
	for errType, want := range cases {
		if got := ClassifySeverity(errType); got != want {
			t.Fatalf("%q: expected %s, got %s", errType, want, got)
		}
	}
}

func TestErrorLogBoundedFIFO(t *testing.T) {
	m := New(config.MonitoringConfig{MaxErrorHistory: 1000}, nil, nil)
	for i := 0; i < 1001; i++ {
		m.RecordExecution("research_agent", time.Millisecond, false, nil,
			agent.NewRequestError(fmt.Sprintf("failure %d", i), nil))
	}
	if got := m.ErrorCount(); got != 1000 {
		t.Fatalf("expected log capped at 1000, got %d", got)
	}
	// The oldest entry must have been evicted first.
	m.mu.RLock()
	first := m.errors[0].Message
	last := m.errors[len(m.errors)-1].Message
	m.mu.RUnlock()
	if first != "failure 1" {
		t.Fatalf("expected oldest surviving entry to be failure 1, got %q", first)
	}
	if last != "failure 1000" {
		t.Fatalf("expected newest entry to be failure 1000, got %q", last)
	}
}

func TestResolveError(t *testing.T) {
	m := newTestMonitor(t)
	m.RecordExecution("writing_agent", time.Second, false, nil, agent.NewParseError("bad json", nil))

	if !m.ResolveError(0) {
		t.Fatal("expected resolve to succeed")
	}
	// Idempotent.
	if !m.ResolveError(0) {
		t.Fatal("expected second resolve to succeed")
	}
	if m.ResolveError(5) {
		t.Fatal("expected out-of-range resolve to fail")
	}
	if m.ResolveError(-1) {
		t.Fatal("expected negative index resolve to fail")
	}
}

func TestRunErrorSweepDropsExpired(t *testing.T) {
	m := New(config.MonitoringConfig{ErrorRetention: 7 * 24 * time.Hour}, nil, nil)
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })

	m.RecordExecution("research_agent", time.Second, false, nil, agent.NewRequestError("old", nil))
	clock = base.Add(6 * 24 * time.Hour)
	m.RecordExecution("research_agent", time.Second, false, nil, agent.NewRequestError("recent", nil))

	clock = base.Add(8 * 24 * time.Hour)
	m.RunErrorSweep()

	if got := m.ErrorCount(); got != 1 {
		t.Fatalf("expected 1 error after sweep, got %d", got)
	}
}

func TestHealthSweepRecoversAgent(t *testing.T) {
	m := newTestMonitor(t)
	a := &probeAgent{name: "research_agent", succeed: true}
	m.RegisterAgent(a)

	// Drive the agent into the offline bucket.
	for i := 0; i < 4; i++ {
		m.RecordExecution(a.name, time.Second, false, nil, agent.NewConnectionError("down", nil))
	}
	if mm := m.AgentMetricsSnapshot(a.name); mm.Status != StatusOffline {
		t.Fatalf("precondition failed: expected offline, got %s", mm.Status)
	}
	probeCallsBefore := a.calls

	m.RunHealthSweep(context.Background())

	if a.calls != probeCallsBefore+1 {
		t.Fatalf("expected exactly one probe call, got %d", a.calls-probeCallsBefore)
	}
	if a.lastTask != agent.TaskSearchByTopics {
		t.Fatalf("expected search_by_topics probe, got %s", a.lastTask)
	}
	if mm := m.AgentMetricsSnapshot(a.name); mm.Status != StatusHealthy {
		t.Fatalf("expected forced healthy after successful probe, got %s", mm.Status)
	}
}

func TestHealthSweepLeavesStatusOnFailedProbe(t *testing.T) {
	m := newTestMonitor(t)
	a := &probeAgent{name: "writing_agent", succeed: false}
	m.RegisterAgent(a)

	for i := 0; i < 4; i++ {
		m.RecordExecution(a.name, time.Second, false, nil, agent.NewConnectionError("down", nil))
	}
	m.RunHealthSweep(context.Background())

	if mm := m.AgentMetricsSnapshot(a.name); mm.Status != StatusOffline {
		t.Fatalf("expected status unchanged after failed probe, got %s", mm.Status)
	}
}

func TestHealthSweepUnprobeableComponentRecovers(t *testing.T) {
	m := newTestMonitor(t)
	m.RegisterComponent("email_service")
	for i := 0; i < 4; i++ {
		m.RecordExecution("email_service", time.Second, false, nil, errors.New("smtp down"))
	}
	m.RunHealthSweep(context.Background())
	if mm := m.AgentMetricsSnapshot("email_service"); mm.Status != StatusHealthy {
		t.Fatalf("expected no-op probe to force healthy, got %s", mm.Status)
	}
}

func TestRecordExecutionTracksAverage(t *testing.T) {
	m := newTestMonitor(t)
	m.RecordExecution("writing_agent", 2*time.Second, true, nil, nil)
	m.RecordExecution("writing_agent", 4*time.Second, true, nil, nil)
	mm := m.AgentMetricsSnapshot("writing_agent")
	if mm.AverageExecutionTime != 3.0 {
		t.Fatalf("expected running average 3.0s, got %v", mm.AverageExecutionTime)
	}
	if mm.TotalExecutions != 2 || mm.SuccessfulExecutions != 2 {
		t.Fatalf("unexpected counters: %+v", mm)
	}
}
