// Package scheduler owns one delivery job per subscribed user and dispatches
// due jobs into the newsletter workflow on a polling tick.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/srthkdev/newsletter-ai-sub000/config"
	"github.com/srthkdev/newsletter-ai-sub000/internal/metrics"
	"github.com/srthkdev/newsletter-ai-sub000/internal/orchestrator"
)

// JobStatus is the lifecycle state of a delivery job.
type JobStatus string

const (
	JobActive JobStatus = "active"
	JobPaused JobStatus = "paused"
	JobError  JobStatus = "error"
)

// Job is one user's delivery schedule. Jobs are owned exclusively by the
// Scheduler and mutated on every dispatch attempt.
type Job struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email,omitempty"`
	Frequency     Frequency  `json:"frequency"`
	SendTime      string     `json:"send_time"`
	Timezone      string     `json:"timezone"`
	Status        JobStatus  `json:"status"`
	LastSent      *time.Time `json:"last_sent"`
	NextScheduled time.Time  `json:"next_scheduled"`
	LastError     string     `json:"last_error,omitempty"`
}

// Generator runs the newsletter workflow for one user. Satisfied by
// orchestrator.Orchestrator.
type Generator interface {
	GenerateNewsletter(ctx context.Context, userID, customPrompt string, sendEmail bool, userEmail string) *orchestrator.WorkflowRun
}

// Subscriber is one row of schedule-relevant preference data, as loaded from
// the persisted store on refresh.
type Subscriber struct {
	UserID    string
	Email     string
	Frequency string
	SendTime  string
	Timezone  string
}

// JobSource yields the current subscriber list, used to seed and refresh the
// in-memory job registry.
type JobSource interface {
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
}

// Scheduler maintains the job registry and runs the periodic loops. All
// registry access goes through the mutex; per-job work is dispatched in its
// own goroutine so a slow pipeline never blocks the tick.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *log.Logger

	gen    Generator
	source JobSource
	locker *redis.Client // nil disables the dispatch lock

	mu       sync.RWMutex
	jobs     map[string]*Job
	inFlight map[string]bool
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler. The redis client is used only for a short-lived
// per-user dispatch lock and may be nil in tests.
func New(cfg config.SchedulerConfig, logger *log.Logger, gen Generator, source JobSource, locker *redis.Client) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	return &Scheduler{
		cfg:    cfg.Normalize(),
		logger: logger,
		gen:    gen,
		source: source,
		locker:   locker,
		jobs:     make(map[string]*Job),
		inFlight: make(map[string]bool),
		now:      time.Now,
	}
}

// SetClock overrides the scheduler's clock for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddJob creates or overwrites the job for a user. Existing schedules for
// the same user are replaced wholesale.
func (s *Scheduler) AddJob(userID, email string, frequency Frequency, sendTime, timezone string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	job := &Job{
		UserID:        userID,
		Email:         email,
		Frequency:     frequency,
		SendTime:      sendTime,
		Timezone:      timezone,
		Status:        JobActive,
		NextScheduled: NextSendTime(frequency, sendTime, now),
	}
	s.jobs[userID] = job
	s.updateGaugesLocked()
	s.logger.Printf("scheduled %s newsletter for user %s, next send %s", frequency, userID, job.NextScheduled.Format(time.RFC3339))
	return job
}

// RemoveJob drops a user's job. Removing an absent job is a no-op.
func (s *Scheduler) RemoveJob(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[userID]; ok {
		delete(s.jobs, userID)
		s.updateGaugesLocked()
		s.logger.Printf("removed schedule for user %s", userID)
	}
}

// PauseJob suspends dispatch for a user without touching next_scheduled.
func (s *Scheduler) PauseJob(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[userID]
	if !ok {
		return false
	}
	job.Status = JobPaused
	s.updateGaugesLocked()
	return true
}

// ResumeJob reactivates a paused or errored job. This is the only way out of
// the error state.
func (s *Scheduler) ResumeJob(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[userID]
	if !ok {
		return false
	}
	job.Status = JobActive
	job.LastError = ""
	if !job.NextScheduled.After(s.now()) {
		job.NextScheduled = NextSendTime(job.Frequency, job.SendTime, s.now())
	}
	s.updateGaugesLocked()
	return true
}

// Job returns a copy of the user's job, if present.
func (s *Scheduler) Job(userID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[userID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Status reports the registry summary plus the next five upcoming sends.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active, paused, errored int
	upcoming := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		switch job.Status {
		case JobActive:
			active++
			upcoming = append(upcoming, job)
		case JobPaused:
			paused++
		case JobError:
			errored++
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].NextScheduled.Before(upcoming[j].NextScheduled)
	})
	if len(upcoming) > 5 {
		upcoming = upcoming[:5]
	}
	next := make([]map[string]interface{}, 0, len(upcoming))
	for _, job := range upcoming {
		next = append(next, map[string]interface{}{
			"user_id":        job.UserID,
			"frequency":      string(job.Frequency),
			"next_scheduled": job.NextScheduled.Format(time.RFC3339),
		})
	}

	return map[string]interface{}{
		"running":     s.running,
		"total_jobs":  len(s.jobs),
		"active_jobs": active,
		"paused_jobs": paused,
		"error_jobs":  errored,
		"next_jobs":   next,
	}
}

// UserScheduleInfo returns one user's schedule for the info endpoint.
func (s *Scheduler) UserScheduleInfo(userID string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[userID]
	if !ok {
		return nil, false
	}
	info := map[string]interface{}{
		"user_id":        job.UserID,
		"frequency":      string(job.Frequency),
		"send_time":      job.SendTime,
		"timezone":       job.Timezone,
		"status":         string(job.Status),
		"next_scheduled": job.NextScheduled.Format(time.RFC3339),
	}
	if job.LastSent != nil {
		info["last_sent"] = job.LastSent.Format(time.RFC3339)
	}
	if job.LastError != "" {
		info["last_error"] = job.LastError
	}
	return info, true
}

// TriggerImmediate runs the workflow for a user right now, bypassing the
// schedule. next_scheduled is deliberately left untouched.
func (s *Scheduler) TriggerImmediate(ctx context.Context, userID string) (*orchestrator.WorkflowRun, error) {
	s.mu.RLock()
	job, ok := s.jobs[userID]
	var email string
	if ok {
		email = job.Email
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no schedule found for user %s", userID)
	}
	run := s.gen.GenerateNewsletter(ctx, userID, "", email != "", email)
	return run, nil
}

// Start launches the dispatch, refresh, and cleanup loops. Calling Start on
// a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.logger.Printf("scheduler started (dispatch every %s)", s.cfg.DispatchInterval)
	s.RefreshJobs(ctx)

	s.wg.Add(3)
	go s.loop(ctx, stop, s.cfg.DispatchInterval, func(ctx context.Context) { s.checkJobs(ctx, s.clock()) })
	go s.loop(ctx, stop, s.cfg.RefreshInterval, s.RefreshJobs)
	go s.loop(ctx, stop, s.cfg.CleanupInterval, func(context.Context) { s.cleanup(s.clock()) })
}

// Stop halts the loops and waits for them to exit. In-flight dispatches are
// not awaited; they complete on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Printf("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop chan struct{}, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *Scheduler) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// RefreshJobs reloads the subscriber list and adds jobs for users who do not
// have one yet. Existing jobs keep their in-memory state.
func (s *Scheduler) RefreshJobs(ctx context.Context) {
	if s.source == nil {
		return
	}
	subs, err := s.source.ListSubscribers(ctx)
	if err != nil {
		s.logger.Printf("job refresh failed: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, sub := range subs {
		if job, ok := s.jobs[sub.UserID]; ok {
			job.Email = sub.Email
			continue
		}
		now := s.now()
		freq := Frequency(sub.Frequency)
		s.jobs[sub.UserID] = &Job{
			UserID:        sub.UserID,
			Email:         sub.Email,
			Frequency:     freq,
			SendTime:      sub.SendTime,
			Timezone:      sub.Timezone,
			Status:        JobActive,
			NextScheduled: NextSendTime(freq, sub.SendTime, now),
		}
		added++
	}
	s.updateGaugesLocked()
	if added > 0 {
		s.logger.Printf("job refresh added %d schedules (%d total)", added, len(s.jobs))
	}
}

// checkJobs scans the registry and dispatches every active job whose due
// time has passed. Each dispatch runs in its own goroutine.
func (s *Scheduler) checkJobs(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]string, 0)
	for userID, job := range s.jobs {
		if job.Status == JobActive && !job.NextScheduled.After(now) && !s.inFlight[userID] {
			s.inFlight[userID] = true
			due = append(due, userID)
		}
	}
	s.mu.Unlock()

	for _, userID := range due {
		go s.dispatch(ctx, userID)
	}
}

// dispatch runs one user's workflow and applies the result to the job. A
// short-lived redis lock guards against a scheduled tick racing a second
// scheduler instance for the same user.
func (s *Scheduler) dispatch(ctx context.Context, userID string) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, userID)
		s.mu.Unlock()
	}()

	if s.locker != nil {
		key := "sched:lock:" + userID
		ok, err := s.locker.SetNX(ctx, key, "1", 2*time.Minute).Result()
		if err != nil {
			s.logger.Printf("dispatch lock error for user %s: %v", userID, err)
		} else if !ok {
			return
		}
		defer s.locker.Del(ctx, key)
	}

	s.mu.RLock()
	job, ok := s.jobs[userID]
	var email string
	if ok {
		email = job.Email
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.logger.Printf("dispatching newsletter for user %s", userID)
	run := s.gen.GenerateNewsletter(ctx, userID, "", email != "", email)

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok = s.jobs[userID]
	if !ok {
		return
	}
	now := s.now()
	if run != nil && run.Success {
		sent := now
		job.LastSent = &sent
		job.Status = JobActive
		job.LastError = ""
		metrics.SchedulerDispatches.WithLabelValues("success").Inc()
	} else {
		job.Status = JobError
		if run != nil {
			job.LastError = run.Error
		}
		metrics.SchedulerDispatches.WithLabelValues("failure").Inc()
		s.logger.Printf("dispatch failed for user %s: %s", userID, job.LastError)
	}
	job.NextScheduled = NextSendTime(job.Frequency, job.SendTime, now)
	s.updateGaugesLocked()
}

// cleanup evicts jobs stuck in the error state with no activity beyond the
// stale-job age.
func (s *Scheduler) cleanup(now time.Time) {
	cutoff := now.Add(-s.cfg.StaleJobAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, job := range s.jobs {
		if job.Status != JobError {
			continue
		}
		last := job.NextScheduled
		if job.LastSent != nil && job.LastSent.After(last) {
			last = *job.LastSent
		}
		if last.Before(cutoff) {
			delete(s.jobs, userID)
			s.logger.Printf("evicted stale errored schedule for user %s", userID)
		}
	}
	s.updateGaugesLocked()
}

func (s *Scheduler) updateGaugesLocked() {
	counts := map[JobStatus]int{JobActive: 0, JobPaused: 0, JobError: 0}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	for status, n := range counts {
		metrics.JobsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
