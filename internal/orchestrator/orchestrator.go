// Package orchestrator coordinates the fixed newsletter generation pipeline:
// preferences, optional prompt analysis, research, writing, formatting,
// subject lines, optional delivery, and persistence.
package orchestrator

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
	"github.com/srthkdev/newsletter-ai-sub000/internal/email"
	"github.com/srthkdev/newsletter-ai-sub000/internal/metrics"
	"github.com/srthkdev/newsletter-ai-sub000/internal/monitor"
)

var workflowTracer trace.Tracer = otel.Tracer("newsletter/internal/orchestrator")

// MemoryStore is the persistence collaborator the pipeline writes through.
// All operations are fallible and treated as best-effort by the caller.
type MemoryStore interface {
	StoreNewsletter(ctx context.Context, userID string, data map[string]interface{}) error
	UpdateEngagementMetrics(ctx context.Context, userID, newsletterID, action string, metadata map[string]interface{}) error
	GetNewsletterHistory(ctx context.Context, userID string, limit int) ([]map[string]interface{}, error)
	GetEngagementMetrics(ctx context.Context, userID string) (map[string]interface{}, error)
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Logger       *log.Logger
	Monitor      *monitor.Monitor
	Preferences  agent.Agent
	Research     agent.Agent
	Writing      agent.Agent
	CustomPrompt agent.Agent
	Sender       email.Sender
	Memory       MemoryStore

	// StepTimeout bounds each individual agent call. Zero disables the
	// per-step deadline.
	StepTimeout time.Duration

	// Defaults applied to the research context when preferences and the
	// custom prompt do not override them.
	DaysBack   int
	MaxResults int
}

// Orchestrator runs the newsletter pipeline. One instance is shared by the
// scheduler and the API layer.
type Orchestrator struct {
	deps Deps
}

// New creates an orchestrator and registers its agents with the monitor.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if deps.DaysBack <= 0 {
		deps.DaysBack = 3
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = 15
	}
	if deps.Monitor != nil {
		for _, a := range []agent.Agent{deps.Preferences, deps.Research, deps.Writing, deps.CustomPrompt} {
			if a != nil {
				deps.Monitor.RegisterAgent(a)
			}
		}
		deps.Monitor.RegisterComponent("email_service")
		deps.Monitor.RegisterComponent("agent_orchestrator")
	}
	return &Orchestrator{deps: deps}
}

// GenerateNewsletter runs the full pipeline for one user. Step failures are
// captured into the returned WorkflowRun; this method never returns an error
// to the caller.
func (o *Orchestrator) GenerateNewsletter(ctx context.Context, userID, customPrompt string, sendEmail bool, userEmail string) *WorkflowRun {
	ctx, span := workflowTracer.Start(ctx, "workflow.generate_newsletter",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("workflow.send_email", sendEmail),
			attribute.Bool("workflow.custom_prompt", customPrompt != ""),
		))
	defer span.End()

	run := &WorkflowRun{
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Steps:     make(map[string]agent.Result),
	}

	o.deps.Logger.Printf("starting newsletter workflow for user %s", userID)

	// Step 1: preferences. Abort on failure.
	prefsRes, _ := o.runStep(ctx, run, StepPreferences, o.deps.Preferences, agent.TaskGetPreferences, agent.Params{
		"user_id": userID,
	})
	if !prefsRes.Success {
		return o.fail(span, run, "Failed to get user preferences")
	}
	prefs, _ := prefsRes.Get("preferences").(map[string]interface{})

	// Step 2: optional custom prompt analysis. Overrides the research
	// context on success; a failure here is recorded but not fatal.
	researchParams := agent.Params{
		"user_id":     userID,
		"preferences": prefs,
		"topics":      prefs["topics"],
		"days_back":   o.deps.DaysBack,
		"max_results": o.deps.MaxResults,
	}
	var guidelines map[string]interface{}
	if customPrompt != "" {
		promptRes, _ := o.runStep(ctx, run, StepCustomPrompt, o.deps.CustomPrompt, agent.TaskProcessPrompt, agent.Params{
			"user_id":       userID,
			"custom_prompt": customPrompt,
			"preferences":   prefs,
		})
		if promptRes.Success {
			researchParams["custom_prompt"] = customPrompt
			if rp, ok := promptRes.Get("research_parameters").(map[string]interface{}); ok {
				if topics, ok := rp["topics"]; ok {
					researchParams["topics"] = topics
				}
				if db, ok := rp["days_back"]; ok {
					researchParams["days_back"] = db
				}
				if mr, ok := rp["max_results"]; ok {
					researchParams["max_results"] = mr
				}
			}
			guidelines, _ = promptRes.Get("writing_guidelines").(map[string]interface{})
		}
	}

	// Step 3: research. Abort on failure, and also when a successful call
	// yields zero articles: success does not imply usable output.
	researchTask := agent.TaskSearchByTopics
	if customPrompt != "" {
		researchParams["custom_prompt"] = customPrompt
		researchTask = agent.TaskSearchCustomPrompt
	}
	researchRes, _ := o.runStep(ctx, run, StepResearch, o.deps.Research, researchTask, researchParams)
	if !researchRes.Success {
		return o.fail(span, run, "Failed to research content")
	}
	articles, _ := researchRes.Get("articles").([]interface{})
	if len(articles) == 0 {
		return o.fail(span, run, "No articles found for newsletter generation")
	}

	// Step 4: writing. Abort on failure.
	writingParams := agent.Params{
		"user_id":     userID,
		"articles":    articles,
		"preferences": prefs,
	}
	if customPrompt != "" {
		writingParams["custom_prompt"] = customPrompt
	}
	if len(guidelines) > 0 {
		writingParams["writing_guidelines"] = guidelines
	}
	writingRes, _ := o.runStep(ctx, run, StepWriting, o.deps.Writing, agent.TaskGenerateNewsletter, writingParams)
	if !writingRes.Success {
		return o.fail(span, run, "Failed to generate newsletter content")
	}
	newsletter, _ := writingRes.Get("newsletter").(map[string]interface{})
	if newsletter == nil {
		newsletter = map[string]interface{}{}
	}

	// Step 5: formatting. Non-fatal: on failure the html/plain fields
	// simply stay absent.
	formatRes, _ := o.runStep(ctx, run, StepFormatting, o.deps.Writing, agent.TaskFormatForEmail, agent.Params{
		"newsletter": newsletter,
	})
	if formatRes.Success {
		newsletter["html_content"] = formatRes.Get("html_content")
		newsletter["plain_text"] = formatRes.Get("plain_text")
	}

	// Step 6: subject lines. Same non-fatal policy as formatting.
	subjectRes, _ := o.runStep(ctx, run, StepSubjectLines, o.deps.Writing, agent.TaskCreateSubjectLines, agent.Params{
		"newsletter_content": newsletter,
		"articles":           articles,
		"preferences":        prefs,
	})
	if subjectRes.Success {
		newsletter["subject_lines"] = subjectRes.Get("subject_lines")
	}

	// Step 7: optional delivery. Failure is recorded but never flips the
	// run result: delivery failure is not generation failure.
	if sendEmail && userEmail != "" {
		o.sendNewsletter(ctx, run, newsletter, userEmail)
	}

	// Step 8: persistence, best effort.
	newsletterID, _ := newsletter["id"].(string)
	newsletter["generated_at"] = time.Now().UTC().Format(time.RFC3339)
	newsletter["articles_count"] = len(articles)
	if customPrompt != "" {
		newsletter["custom_prompt"] = customPrompt
	}
	storageRes := agent.Result{Agent: "memory_service", Task: "store_newsletter", Success: true}
	if err := o.deps.Memory.StoreNewsletter(ctx, userID, newsletter); err != nil {
		o.deps.Logger.Printf("newsletter persistence failed for user %s: %v", userID, err)
		storageRes.Success = false
		storageRes.Error = err.Error()
	} else {
		storageRes.Data = map[string]interface{}{"newsletter_id": newsletterID}
	}
	run.Steps[StepStorage] = storageRes
	metrics.WorkflowSteps.WithLabelValues(StepStorage, metrics.Outcome(storageRes.Success)).Inc()

	run.Success = true
	run.Newsletter = newsletter
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.TotalArticles = len(articles)
	if wc, ok := writingRes.Get("word_count").(int); ok {
		run.WordCount = wc
	}
	if rt, ok := writingRes.Get("estimated_read_time").(int); ok {
		run.EstimatedReadTime = rt
	}

	metrics.WorkflowRuns.WithLabelValues("success").Inc()
	span.SetStatus(codes.Ok, "completed")
	o.deps.Logger.Printf("completed newsletter workflow for user %s in %v", userID, now.Sub(run.StartedAt))
	return run
}

// runStep executes one agent call with the per-step deadline, records the
// outcome through the monitor, and captures the result into the run.
func (o *Orchestrator) runStep(ctx context.Context, run *WorkflowRun, stepName string, a agent.Agent, task agent.Task, params agent.Params) (agent.Result, error) {
	stepCtx, span := workflowTracer.Start(ctx, "workflow."+stepName,
		trace.WithAttributes(attribute.String("agent.task", string(task))))
	defer span.End()

	if o.deps.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, o.deps.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := a.Execute(stepCtx, task, params)
	duration := time.Since(start)

	o.deps.Monitor.RecordExecution(a.Name(), duration, res.Success, map[string]interface{}{
		"task":    string(task),
		"step":    stepName,
		"user_id": run.UserID,
	}, err)
	metrics.ObserveAgent(a.Name(), duration, res.Success)
	metrics.WorkflowSteps.WithLabelValues(stepName, metrics.Outcome(res.Success)).Inc()

	run.Steps[stepName] = res
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	return res, err
}

// sendNewsletter delivers the formatted newsletter and records the attempt
// as the "email" step.
func (o *Orchestrator) sendNewsletter(ctx context.Context, run *WorkflowRun, newsletter map[string]interface{}, userEmail string) {
	subject := firstSubjectLine(newsletter)

	htmlBody, _ := newsletter["html_content"].(string)
	plainBody, _ := newsletter["plain_text"].(string)
	if plainBody == "" {
		plainBody, _ = newsletter["content"].(string)
	}

	start := time.Now()
	err := o.deps.Sender.Send(ctx, userEmail, subject, htmlBody, plainBody)
	duration := time.Since(start)

	res := agent.Result{
		Agent:    "email_service",
		Task:     "send_newsletter",
		Success:  err == nil,
		Duration: duration,
		Data: map[string]interface{}{
			"recipient": userEmail,
			"subject":   subject,
		},
	}
	if err != nil {
		res.Error = err.Error()
		o.deps.Logger.Printf("newsletter delivery failed for %s: %v", userEmail, err)
	}
	run.Steps[StepEmail] = res
	run.EmailSent = err == nil

	o.deps.Monitor.RecordExecution("email_service", duration, err == nil, map[string]interface{}{
		"user_id":   run.UserID,
		"recipient": userEmail,
	}, err)
	metrics.EmailsSent.WithLabelValues(metrics.Outcome(err == nil)).Inc()
	metrics.WorkflowSteps.WithLabelValues(StepEmail, metrics.Outcome(err == nil)).Inc()

	if err == nil {
		newsletterID, _ := newsletter["id"].(string)
		if merr := o.deps.Memory.UpdateEngagementMetrics(ctx, run.UserID, newsletterID, "sent", map[string]interface{}{
			"email":   userEmail,
			"subject": subject,
		}); merr != nil {
			o.deps.Logger.Printf("engagement metrics update failed for user %s: %v", run.UserID, merr)
		}
	}
}

func (o *Orchestrator) fail(span trace.Span, run *WorkflowRun, msg string) *WorkflowRun {
	run.Error = msg
	now := time.Now().UTC()
	run.FailedAt = &now
	metrics.WorkflowRuns.WithLabelValues("failure").Inc()
	span.SetStatus(codes.Error, msg)
	o.deps.Logger.Printf("newsletter workflow failed for user %s: %s", run.UserID, msg)
	return run
}

func firstSubjectLine(newsletter map[string]interface{}) string {
	if lines, ok := newsletter["subject_lines"].([]interface{}); ok && len(lines) > 0 {
		if s, ok := lines[0].(string); ok && s != "" {
			return s
		}
	}
	if title, ok := newsletter["title"].(string); ok && title != "" {
		return title
	}
	return "Your Newsletter"
}

// ResearchOnly runs the research agent outside the pipeline.
func (o *Orchestrator) ResearchOnly(ctx context.Context, userID string, topics []string, customPrompt string, daysBack int) (agent.Result, error) {
	if daysBack <= 0 {
		daysBack = o.deps.DaysBack
	}
	params := agent.Params{"user_id": userID, "topics": topics, "days_back": daysBack}
	task := agent.TaskSearchByTopics
	if customPrompt != "" {
		params["custom_prompt"] = customPrompt
		task = agent.TaskSearchCustomPrompt
	}
	start := time.Now()
	res, err := o.deps.Research.Execute(ctx, task, params)
	o.deps.Monitor.RecordExecution(o.deps.Research.Name(), time.Since(start), res.Success, map[string]interface{}{
		"task":    string(task),
		"user_id": userID,
	}, err)
	return res, err
}

// ProcessPromptOnly analyzes a custom prompt without generating a newsletter.
func (o *Orchestrator) ProcessPromptOnly(ctx context.Context, userID, customPrompt string, prefs map[string]interface{}) (agent.Result, error) {
	if prefs == nil {
		if res, err := o.deps.Preferences.Execute(ctx, agent.TaskGetPreferences, agent.Params{"user_id": userID}); err == nil && res.Success {
			prefs, _ = res.Get("preferences").(map[string]interface{})
		}
	}
	start := time.Now()
	res, err := o.deps.CustomPrompt.Execute(ctx, agent.TaskProcessPrompt, agent.Params{
		"user_id":       userID,
		"custom_prompt": customPrompt,
		"preferences":   prefs,
	})
	o.deps.Monitor.RecordExecution(o.deps.CustomPrompt.Name(), time.Since(start), res.Success, map[string]interface{}{
		"task":    string(agent.TaskProcessPrompt),
		"user_id": userID,
	}, err)
	return res, err
}

// NewsletterHistory returns the user's recent newsletters.
func (o *Orchestrator) NewsletterHistory(ctx context.Context, userID string, limit int) ([]map[string]interface{}, error) {
	return o.deps.Memory.GetNewsletterHistory(ctx, userID, limit)
}

// EngagementMetrics returns the user's engagement record.
func (o *Orchestrator) EngagementMetrics(ctx context.Context, userID string) (map[string]interface{}, error) {
	return o.deps.Memory.GetEngagementMetrics(ctx, userID)
}

// SelfTest exercises each agent with a minimal synthetic call and reports
// per-agent pass/fail. Used by the integration-test endpoint; results are
// recorded through the monitor like any other execution.
func (o *Orchestrator) SelfTest(ctx context.Context) map[string]interface{} {
	probes := []struct {
		a      agent.Agent
		task   agent.Task
		params agent.Params
	}{
		{o.deps.Preferences, agent.TaskGetPreferences, agent.Params{"user_id": "self_test"}},
		{o.deps.Research, agent.TaskSearchByTopics, agent.Params{"topics": []string{"test"}, "days_back": 1, "max_results": 1}},
		{o.deps.Writing, agent.TaskGenerateNewsletter, agent.Params{"articles": []interface{}{}, "preferences": map[string]interface{}{}}},
		{o.deps.CustomPrompt, agent.TaskProcessPrompt, agent.Params{"custom_prompt": "test"}},
	}

	out := make(map[string]interface{}, len(probes))
	for _, p := range probes {
		if p.a == nil {
			continue
		}
		probeCtx := ctx
		if o.deps.StepTimeout > 0 {
			var cancel context.CancelFunc
			probeCtx, cancel = context.WithTimeout(ctx, o.deps.StepTimeout)
			defer cancel()
		}
		start := time.Now()
		res, err := p.a.Execute(probeCtx, p.task, p.params)
		duration := time.Since(start)
		o.deps.Monitor.RecordExecution(p.a.Name(), duration, res.Success, map[string]interface{}{
			"task":    string(p.task),
			"user_id": "self_test",
		}, err)
		entry := map[string]interface{}{"passed": res.Success}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		out[p.a.Name()] = entry
	}
	return out
}

// AgentStatus reports the registered agents for the status endpoint.
func (o *Orchestrator) AgentStatus() map[string]interface{} {
	status := make(map[string]interface{})
	for _, a := range []agent.Agent{o.deps.Preferences, o.deps.Research, o.deps.Writing, o.deps.CustomPrompt} {
		if a == nil {
			continue
		}
		entry := map[string]interface{}{"status": "active"}
		if o.deps.Monitor != nil {
			if mm := o.deps.Monitor.AgentMetricsSnapshot(a.Name()); mm != nil {
				entry["status"] = string(mm.Status)
				entry["health_score"] = mm.HealthScore
			}
		}
		status[a.Name()] = entry
	}
	return status
}
