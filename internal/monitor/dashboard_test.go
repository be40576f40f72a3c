package monitor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
)

func TestDashboardShape(t *testing.T) {
	m := newTestMonitor(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return base })

	m.RecordExecution("research_agent", 2*time.Second, true, nil, nil)
	m.RecordExecution("writing_agent", time.Second, false, map[string]interface{}{"user_id": "u1"},
		agent.NewConnectionError("openai unreachable", nil))

	b, err := json.Marshal(m.GetDashboard())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"system_health", "agents", "recent_errors", "error_summary"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("missing top-level key %q", key)
		}
	}
	sh := doc["system_health"].(map[string]interface{})
	for _, key := range []string{"overall_score", "status", "monitoring_active"} {
		if _, ok := sh[key]; !ok {
			t.Fatalf("missing system_health key %q", key)
		}
	}
	agents := doc["agents"].(map[string]interface{})
	wa := agents["writing_agent"].(map[string]interface{})
	for _, key := range []string{"status", "health_score", "total_executions", "success_rate", "average_execution_time", "last_execution"} {
		if _, ok := wa[key]; !ok {
			t.Fatalf("missing agent key %q", key)
		}
	}
	es := doc["error_summary"].(map[string]interface{})
	for _, key := range []string{"total_errors_24h", "critical_errors", "unresolved_errors"} {
		if _, ok := es[key]; !ok {
			t.Fatalf("missing error_summary key %q", key)
		}
	}
}

func TestDashboardAggregates(t *testing.T) {
	m := newTestMonitor(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })

	m.RecordExecution("research_agent", time.Second, true, nil, nil)
	m.RecordExecution("writing_agent", time.Second, false, nil, agent.NewConnectionError("down", nil))
	clock = base.Add(30 * time.Hour) // age the error past the 24h window
	m.RecordExecution("writing_agent", time.Second, false, nil, agent.NewParseError("bad json", nil))

	d := m.GetDashboard()

	if d.ErrorSummary.TotalErrors24h != 1 {
		t.Fatalf("expected 1 error in the last 24h, got %d", d.ErrorSummary.TotalErrors24h)
	}
	if d.ErrorSummary.UnresolvedErrors != 2 {
		t.Fatalf("expected 2 unresolved, got %d", d.ErrorSummary.UnresolvedErrors)
	}
	if d.ErrorSummary.CriticalErrors != 1 {
		t.Fatalf("expected 1 unresolved critical, got %d", d.ErrorSummary.CriticalErrors)
	}

	m.ResolveError(0)
	d = m.GetDashboard()
	if d.ErrorSummary.CriticalErrors != 0 || d.ErrorSummary.UnresolvedErrors != 1 {
		t.Fatalf("resolve not reflected: %+v", d.ErrorSummary)
	}
}

func TestDashboardRecentErrorsCappedAtTen(t *testing.T) {
	m := newTestMonitor(t)
	for i := 0; i < 15; i++ {
		m.RecordExecution("research_agent", time.Millisecond, false, nil, agent.NewRequestError("boom", nil))
	}
	d := m.GetDashboard()
	if len(d.RecentErrors) != 10 {
		t.Fatalf("expected 10 recent errors, got %d", len(d.RecentErrors))
	}
}

func TestPerformanceReport(t *testing.T) {
	m := newTestMonitor(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return base })

	if m.GetPerformanceReport("nope") != nil {
		t.Fatal("expected nil for unknown agent")
	}

	m.RecordExecution("writing_agent", 40*time.Second, true, nil, nil)
	m.RecordExecution("writing_agent", 40*time.Second, false, nil, agent.NewConnectionError("down", nil))

	r := m.GetPerformanceReport("writing_agent")
	if r == nil {
		t.Fatal("expected report")
	}
	if r.Performance.SuccessRate != 50.0 {
		t.Fatalf("expected 50%% success rate, got %v", r.Performance.SuccessRate)
	}
	if len(r.RecentErrors) != 1 {
		t.Fatalf("expected 1 recent error, got %d", len(r.RecentErrors))
	}
	// Slow, failing, recently-errored agent triggers several recommendations.
	if len(r.Recommendations) < 3 {
		t.Fatalf("expected multiple recommendations, got %v", r.Recommendations)
	}
}
