package monitor

import (
	"time"
)

// The types below are the JSON contract the dashboard UI depends on. Field
// names must not change.

// SystemHealth summarizes the whole system.
type SystemHealth struct {
	OverallScore     float64 `json:"overall_score"`
	Status           string  `json:"status"`
	MonitoringActive bool    `json:"monitoring_active"`
}

// AgentSummary is the per-agent dashboard row.
type AgentSummary struct {
	Status               Status  `json:"status"`
	HealthScore          float64 `json:"health_score"`
	TotalExecutions      int64   `json:"total_executions"`
	SuccessRate          float64 `json:"success_rate"`
	AverageExecutionTime float64 `json:"average_execution_time"`
	LastExecution        *string `json:"last_execution"`
}

// RecentError is one row of the dashboard error feed.
type RecentError struct {
	Timestamp string   `json:"timestamp"`
	Component string   `json:"component"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Resolved  bool     `json:"resolved"`
}

// ErrorSummary aggregates the error log.
type ErrorSummary struct {
	TotalErrors24h   int `json:"total_errors_24h"`
	CriticalErrors   int `json:"critical_errors"`
	UnresolvedErrors int `json:"unresolved_errors"`
}

// Dashboard is the full monitoring read model.
type Dashboard struct {
	SystemHealth SystemHealth            `json:"system_health"`
	Agents       map[string]AgentSummary `json:"agents"`
	RecentErrors []RecentError           `json:"recent_errors"`
	ErrorSummary ErrorSummary            `json:"error_summary"`
}

// GetDashboard assembles the monitoring dashboard.
func (m *Monitor) GetDashboard() Dashboard {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make(map[string]AgentSummary, len(m.metrics))
	var scoreSum float64
	for name, mm := range m.metrics {
		var lastExec *string
		if mm.LastExecution != nil {
			s := mm.LastExecution.Format(time.RFC3339)
			lastExec = &s
		}
		agents[name] = AgentSummary{
			Status:               mm.Status,
			HealthScore:          mm.HealthScore,
			TotalExecutions:      mm.TotalExecutions,
			SuccessRate:          successRatePct(mm),
			AverageExecutionTime: mm.AverageExecutionTime,
			LastExecution:        lastExec,
		}
		scoreSum += mm.HealthScore
	}

	avgHealth := 100.0
	if len(m.metrics) > 0 {
		avgHealth = scoreSum / float64(len(m.metrics))
	}
	systemStatus := "critical"
	switch {
	case avgHealth >= 90:
		systemStatus = "healthy"
	case avgHealth >= 70:
		systemStatus = "warning"
	}

	recent := make([]RecentError, 0, 10)
	start := len(m.errors) - 10
	if start < 0 {
		start = 0
	}
	for _, e := range m.errors[start:] {
		recent = append(recent, RecentError{
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Component: e.Component,
			Severity:  e.Severity,
			Message:   e.Message,
			Resolved:  e.Resolved,
		})
	}

	dayAgo := m.now().Add(-24 * time.Hour)
	var summary ErrorSummary
	for _, e := range m.errors {
		if e.Timestamp.After(dayAgo) {
			summary.TotalErrors24h++
		}
		if e.Severity == SeverityCritical && !e.Resolved {
			summary.CriticalErrors++
		}
		if !e.Resolved {
			summary.UnresolvedErrors++
		}
	}

	return Dashboard{
		SystemHealth: SystemHealth{
			OverallScore:     round1(avgHealth),
			Status:           systemStatus,
			MonitoringActive: m.monitoring,
		},
		Agents:       agents,
		RecentErrors: recent,
		ErrorSummary: summary,
	}
}

// PerformanceReport is the detailed per-agent view.
type PerformanceReport struct {
	AgentName     string `json:"agent_name"`
	CurrentStatus Status `json:"current_status"`
	HealthScore   float64 `json:"health_score"`
	Performance   struct {
		TotalExecutions      int64   `json:"total_executions"`
		SuccessfulExecutions int64   `json:"successful_executions"`
		FailedExecutions     int64   `json:"failed_executions"`
		SuccessRate          float64 `json:"success_rate"`
		AverageExecutionTime float64 `json:"average_execution_time"`
	} `json:"performance"`
	RecentActivity struct {
		LastExecution *string      `json:"last_execution"`
		LastError     *RecentError `json:"last_error"`
	} `json:"recent_activity"`
	RecentErrors    []RecentError `json:"recent_errors"`
	Recommendations []string      `json:"recommendations"`
}

// GetPerformanceReport builds the detailed report for one agent, or nil when
// the agent is unknown.
func (m *Monitor) GetPerformanceReport(agentName string) *PerformanceReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mm, ok := m.metrics[agentName]
	if !ok {
		return nil
	}

	r := &PerformanceReport{
		AgentName:     agentName,
		CurrentStatus: mm.Status,
		HealthScore:   mm.HealthScore,
	}
	r.Performance.TotalExecutions = mm.TotalExecutions
	r.Performance.SuccessfulExecutions = mm.SuccessfulExecutions
	r.Performance.FailedExecutions = mm.FailedExecutions
	r.Performance.SuccessRate = successRatePct(mm)
	r.Performance.AverageExecutionTime = mm.AverageExecutionTime

	if mm.LastExecution != nil {
		s := mm.LastExecution.Format(time.RFC3339)
		r.RecentActivity.LastExecution = &s
	}
	if mm.LastError != nil {
		r.RecentActivity.LastError = &RecentError{
			Timestamp: mm.LastError.Timestamp.Format(time.RFC3339),
			Component: mm.LastError.Component,
			Severity:  mm.LastError.Severity,
			Message:   mm.LastError.Message,
			Resolved:  mm.LastError.Resolved,
		}
	}

	weekAgo := m.now().Add(-7 * 24 * time.Hour)
	for _, e := range m.errors {
		if e.Component == agentName && e.Timestamp.After(weekAgo) {
			r.RecentErrors = append(r.RecentErrors, RecentError{
				Timestamp: e.Timestamp.Format(time.RFC3339),
				Component: e.Component,
				Severity:  e.Severity,
				Message:   e.Message,
				Resolved:  e.Resolved,
			})
		}
	}

	r.Recommendations = recommendations(mm, m.now())
	return r
}

func recommendations(mm *AgentMetrics, now time.Time) []string {
	var recs []string
	if mm.HealthScore < 70 {
		recs = append(recs, "Agent health is below optimal - consider investigating recent errors")
	}
	if mm.AverageExecutionTime > 30 {
		recs = append(recs, "Average execution time is high - consider optimizing agent logic")
	}
	if rate := successRatePct(mm); mm.TotalExecutions > 0 && rate < 90 {
		recs = append(recs, "Success rate is below 90% - review error patterns and improve error handling")
	}
	if mm.LastError != nil && now.Sub(mm.LastError.Timestamp) < time.Hour {
		recs = append(recs, "Recent error detected - monitor closely for recurring issues")
	}
	if len(recs) == 0 {
		recs = append(recs, "Agent is performing well - no immediate action required")
	}
	return recs
}
