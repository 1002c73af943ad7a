package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenos/haven/internal/logging"
)

// Request is one templated model call.
type Request struct {
	// Name keys the prompt cache; usually the capability name.
	Name     string
	System   string
	Template string
	Data     any
	JSON     bool
}

type Agent struct {
	client      AIClient
	promptCache *PromptCache
	logger      *slog.Logger
}

func New(client AIClient, promptCache *PromptCache) *Agent {
	if promptCache == nil {
		promptCache = NewPromptCache("")
	}
	return &Agent{
		client:      client,
		promptCache: promptCache,
		logger:      slog.Default().With("component", "agent"),
	}
}

// WithLogger sets a custom logger for the agent
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger.With("component", "agent")
	return a
}

// Client exposes the underlying model client.
func (a *Agent) Client() AIClient {
	return a.client
}

// Render executes the named template against data.
func (a *Agent) Render(name, src string, data any) (string, error) {
	tmpl, err := a.promptCache.Template(name, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Execute renders the prompt and issues exactly one model call.
func (a *Agent) Execute(ctx context.Context, req Request) (string, error) {
	startTime := time.Now()

	prompt, err := a.Render(req.Name, req.Template, req.Data)
	if err != nil {
		return "", err
	}

	a.logger.DebugContext(ctx, "executing AI request",
		"prompt", req.Name,
		"capability", logging.Capability(ctx),
		"force_json", req.JSON,
		"has_system_prompt", req.System != "",
		"full_prompt_length", len(prompt))

	var response string
	switch {
	case req.System != "" && req.JSON:
		response, err = a.client.CompleteJSONWithSystem(ctx, req.System, prompt)
	case req.System != "":
		response, err = a.client.CompleteWithSystem(ctx, req.System, prompt)
	case req.JSON:
		response, err = a.client.CompleteJSON(ctx, prompt)
	default:
		response, err = a.client.Complete(ctx, prompt)
	}

	duration := time.Since(startTime)

	if err != nil {
		a.logger.ErrorContext(ctx, "AI request failed",
			"prompt", req.Name,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return "", err
	}

	a.logger.InfoContext(ctx, "AI request completed",
		"prompt", req.Name,
		"duration_ms", duration.Milliseconds(),
		"response_length", len(response))

	return response, nil
}
