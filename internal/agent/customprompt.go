package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/srthkdev/newsletter-ai-sub000/provider"
)

// CustomPromptAgent interprets a free-form reader request into research
// parameters and writing guidelines for the rest of the pipeline.
type CustomPromptAgent struct {
	dispatcher
	llm provider.Provider
}

func NewCustomPromptAgent(llm provider.Provider) *CustomPromptAgent {
	a := &CustomPromptAgent{
		dispatcher: newDispatcher("custom_prompt_agent"),
		llm:        llm,
	}
	a.register(TaskProcessPrompt, a.processPrompt)
	return a
}

const processPromptSystem = `You analyze newsletter requests. Respond ONLY with valid JSON of the form:
{
  "research_parameters": {"topics": ["..."], "days_back": 3, "max_results": 15},
  "writing_guidelines": {"tone": "...", "focus": "...", "format": "..."}
}
Do not include any other text.`

func (a *CustomPromptAgent) processPrompt(ctx context.Context, params Params) (map[string]interface{}, error) {
	prompt := strings.TrimSpace(params.String("custom_prompt"))
	if prompt == "" {
		return nil, NewKeyError("custom_prompt is required")
	}

	user := "Request: " + prompt
	if prefs := params.Map("preferences"); len(prefs) > 0 {
		if b, err := json.Marshal(prefs); err == nil {
			user += "\nReader preferences: " + string(b)
		}
	}

	reply, err := a.llm.Completion(ctx, processPromptSystem, user)
	if err != nil {
		return nil, classifyLLMError(ctx, "prompt analysis failed", err)
	}

	var parsed struct {
		ResearchParameters map[string]interface{} `json:"research_parameters"`
		WritingGuidelines  map[string]interface{} `json:"writing_guidelines"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &parsed); err != nil {
		return nil, NewParseError("failed to parse prompt analysis", err)
	}

	return map[string]interface{}{
		"research_parameters": parsed.ResearchParameters,
		"writing_guidelines":  parsed.WritingGuidelines,
	}, nil
}
