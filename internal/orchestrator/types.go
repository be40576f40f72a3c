package orchestrator

import (
	"time"

	"github.com/srthkdev/newsletter-ai-sub000/internal/agent"
)

// WorkflowRun is the per-invocation record of one newsletter generation
// pipeline. It is returned to the caller and not persisted by the
// orchestrator itself.
type WorkflowRun struct {
	UserID            string                  `json:"user_id"`
	StartedAt         time.Time               `json:"started_at"`
	Steps             map[string]agent.Result `json:"steps"`
	Success           bool                    `json:"success"`
	Newsletter        map[string]interface{}  `json:"newsletter,omitempty"`
	Error             string                  `json:"error,omitempty"`
	EmailSent         bool                    `json:"email_sent"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	FailedAt          *time.Time              `json:"failed_at,omitempty"`
	TotalArticles     int                     `json:"total_articles,omitempty"`
	WordCount         int                     `json:"word_count,omitempty"`
	EstimatedReadTime int                     `json:"estimated_read_time,omitempty"`
}

// Pipeline step names as recorded in WorkflowRun.Steps.
const (
	StepPreferences  = "preferences"
	StepCustomPrompt = "custom_prompt"
	StepResearch     = "research"
	StepWriting      = "writing"
	StepFormatting   = "formatting"
	StepSubjectLines = "subject_lines"
	StepEmail        = "email"
	StepStorage      = "storage"
)
