package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TaskType classifies a prompt for routing.
type TaskType string

const (
	TaskCode      TaskType = "code"
	TaskCreative  TaskType = "creative"
	TaskReasoning TaskType = "reasoning"
	TaskFast      TaskType = "fast"
	TaskVision    TaskType = "vision"
)

// Route is the provider and model chosen for a task.
type Route struct {
	Task     TaskType `json:"task_type"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

var modelMap = map[TaskType]Route{
	TaskCode:      {Task: TaskCode, Provider: ProviderDeepSeek, Model: "deepseek-coder"},
	TaskCreative:  {Task: TaskCreative, Provider: ProviderOpenAI, Model: "gpt-4o"},
	TaskReasoning: {Task: TaskReasoning, Provider: ProviderOpenAI, Model: "gpt-4o"},
	TaskFast:      {Task: TaskFast, Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
	TaskVision:    {Task: TaskVision, Provider: ProviderOpenAI, Model: "gpt-4o"},
}

// fallbackOrder is tried when the routed provider is not configured.
var fallbackOrder = []string{ProviderOpenAI, ProviderDeepSeek, ProviderOpenRouter, ProviderHuggingFace}

var taskKeywords = []struct {
	task     TaskType
	keywords []string
}{
	{TaskCode, []string{"code", "function", "program"}},
	{TaskCreative, []string{"write", "story", "creative"}},
	{TaskReasoning, []string{"analyze", "explain", "why"}},
}

// DetectTaskType picks a task type from keywords in the prompt. The first
// matching group wins; prompts with no keywords are fast tasks.
func DetectTaskType(prompt string) TaskType {
	lower := strings.ToLower(prompt)
	for _, group := range taskKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.task
			}
		}
	}
	return TaskFast
}

// Router dispatches prompts to providers by task type.
type Router struct {
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRouter creates a router over the configured providers. Nil providers
// are ignored.
func NewRouter(logger *zap.Logger, providers ...Provider) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{providers: make(map[string]Provider), logger: logger}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Provider returns the named provider or ErrProviderNotConfigured.
func (r *Router) Provider(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
	}
	return p, nil
}

// Configured reports which providers are available.
func (r *Router) Configured() map[string]bool {
	out := make(map[string]bool, len(fallbackOrder))
	for _, name := range fallbackOrder {
		_, out[name] = r.providers[name]
	}
	return out
}

// Route resolves the route for a prompt. A non-empty taskType overrides
// detection; unknown task types route as reasoning.
func (r *Router) Route(prompt string, taskType TaskType) Route {
	if taskType == "" {
		taskType = DetectTaskType(prompt)
	}
	route, ok := modelMap[taskType]
	if !ok {
		route = modelMap[TaskReasoning]
		route.Task = taskType
	}
	return route
}

// Complete routes the prompt and completes it. When the routed provider is
// not configured the first configured provider in fallback order is used
// with its own default model.
func (r *Router) Complete(ctx context.Context, req Request, taskType TaskType) (Route, Response, error) {
	route := r.Route(req.Prompt, taskType)

	p, ok := r.providers[route.Provider]
	if ok {
		if req.Model == "" {
			req.Model = route.Model
		}
	} else {
		for _, name := range fallbackOrder {
			if candidate, found := r.providers[name]; found {
				r.logger.Info("routed provider not configured, falling back",
					zap.String("wanted", route.Provider), zap.String("using", name))
				p = candidate
				route.Provider = name
				route.Model = ""
				break
			}
		}
	}
	if p == nil {
		return route, Response{}, fmt.Errorf("no provider for %s task: %w", route.Task, ErrProviderNotConfigured)
	}

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return route, Response{}, fmt.Errorf("failed to complete %s task: %w", route.Task, err)
	}
	route.Model = resp.Model
	return route, resp, nil
}
