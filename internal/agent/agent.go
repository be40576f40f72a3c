package agent

import (
	"context"
	"time"
)

// Task identifies one operation an agent knows how to perform.
type Task string

const (
	TaskGetPreferences     Task = "get_preferences"
	TaskUpdatePreferences  Task = "update_preferences"
	TaskProcessPrompt      Task = "process_prompt"
	TaskSearchByTopics     Task = "search_by_topics"
	TaskSearchCustomPrompt Task = "search_custom_prompt"
	TaskGenerateNewsletter Task = "generate_newsletter"
	TaskFormatForEmail     Task = "format_for_email"
	TaskCreateSubjectLines Task = "create_subject_lines"
)

// Params carries task-specific input values.
type Params map[string]interface{}

// String fetches a string parameter, or the empty string if absent.
func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Int fetches an integer parameter, tolerating float64 from decoded JSON.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Strings fetches a string-slice parameter, tolerating []interface{} from decoded JSON.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Map fetches a map parameter.
func (p Params) Map(key string) map[string]interface{} {
	v, _ := p[key].(map[string]interface{})
	return v
}

// Result is the uniform outcome of one agent task execution.
type Result struct {
	Agent    string                 `json:"agent"`
	Task     Task                   `json:"task"`
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Get fetches a value from the result data.
func (r Result) Get(key string) interface{} {
	if r.Data == nil {
		return nil
	}
	return r.Data[key]
}

// Agent is the single contract every pipeline stage exposes. Implementations
// dispatch the task to a registered handler and report failures both through
// the returned error (typed for severity classification) and Result.Error.
type Agent interface {
	Name() string
	Execute(ctx context.Context, task Task, params Params) (Result, error)
}

// Handler implements one task for one agent.
type Handler func(ctx context.Context, params Params) (map[string]interface{}, error)

// dispatcher is the shared task-table core embedded by every concrete agent.
type dispatcher struct {
	name     string
	handlers map[Task]Handler
}

func newDispatcher(name string) dispatcher {
	return dispatcher{name: name, handlers: make(map[Task]Handler)}
}

func (d *dispatcher) register(task Task, h Handler) {
	d.handlers[task] = h
}

func (d *dispatcher) Name() string { return d.name }

func (d *dispatcher) Execute(ctx context.Context, task Task, params Params) (Result, error) {
	start := time.Now()
	res := Result{Agent: d.name, Task: task}
	h, ok := d.handlers[task]
	if !ok {
		err := NewValidationError("unknown task for agent "+d.name+": "+string(task), nil)
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res, err
	}
	data, err := h(ctx, params)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.Success = true
	res.Data = data
	return res, nil
}
