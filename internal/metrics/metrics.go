// Package metrics provides Prometheus collectors for the newsletter pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_workflow_runs_total",
			Help: "Total newsletter generation runs by outcome",
		},
		[]string{"status"},
	)
	WorkflowSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_workflow_steps_total",
			Help: "Total pipeline step executions by step and outcome",
		},
		[]string{"step", "status"},
	)
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_agent_executions_total",
			Help: "Total agent executions by agent and outcome",
		},
		[]string{"agent", "status"},
	)
	AgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsletter_agent_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)
	SchedulerDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_scheduler_dispatches_total",
			Help: "Total scheduled job dispatches by outcome",
		},
		[]string{"status"},
	)
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newsletter_scheduler_jobs",
			Help: "Current number of scheduler jobs by status",
		},
		[]string{"status"},
	)
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_emails_total",
			Help: "Total delivery attempts by outcome",
		},
		[]string{"status"},
	)
)

// Outcome converts a success flag into the metric label value.
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveAgent records one agent execution.
func ObserveAgent(agent string, d time.Duration, success bool) {
	AgentExecutions.WithLabelValues(agent, Outcome(success)).Inc()
	AgentDuration.WithLabelValues(agent).Observe(d.Seconds())
}
