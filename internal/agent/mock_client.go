package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockClient provides fake AI responses for testing. Responses are picked
// by the first registered keyword found in the lower-cased prompt.
type MockClient struct {
	mu        sync.Mutex
	keywords  []string
	responses map[string]string
	fallback  string
	err       error
	prompts   []string
	dims      int
}

// NewMockClient creates a mock AI client for testing
func NewMockClient() *MockClient {
	m := &MockClient{
		responses: make(map[string]string),
		fallback:  `{"content": "Mock response"}`,
		dims:      8,
	}
	m.On("storyboard", `{
		"frames": [
			{"order": 1, "description": "Wide shot of a sunrise over the city", "duration": 4, "camera": "drone"},
			{"order": 2, "description": "Close-up of coffee being poured", "duration": 3, "camera": "macro"}
		],
		"style": "cinematic"
	}`)
	m.On("marketing angle", `{
		"angles": [
			{"name": "Time saver", "hook": "Get an hour back every day", "audience": "busy founders", "confidence": 82},
			{"name": "Calm focus", "hook": "Less noise, more work", "audience": "remote teams", "confidence": 64}
		]
	}`)
	m.On("quiz", `{
		"title": "Morning Routines",
		"difficulty": "medium",
		"questions": [
			{"question": "What should you do first?", "options": ["Email", "Plan", "Scroll"], "answer": 1, "explanation": "Planning sets priorities."}
		]
	}`)
	m.On("keywords", `{"keywords": ["office", "laptop"]}`)
	m.On("script", `{
		"hook": "Stop scrolling: this changes your mornings.",
		"body": ["Most people start the day reacting.", "Try ten minutes of planning instead."],
		"scenes": [
			{"order": 1, "visual": "Alarm clock close-up", "voiceover": "Stop scrolling", "duration": 3},
			{"order": 2, "visual": "Notebook on desk", "voiceover": "Plan first", "duration": 5}
		],
		"estimatedDuration": 30
	}`)
	return m
}

// On registers a canned response for prompts containing keyword.
func (m *MockClient) On(keyword, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	keyword = strings.ToLower(keyword)
	if _, ok := m.responses[keyword]; !ok {
		m.keywords = append(m.keywords, keyword)
	}
	m.responses[keyword] = response
	return m
}

// Default sets the response used when no keyword matches.
func (m *MockClient) Default(response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// FailWith makes every call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Prompts returns every prompt received so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Calls returns the number of model calls made.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Complete returns a mock response
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}

	promptLower := strings.ToLower(prompt)
	for _, kw := range m.keywords {
		if strings.Contains(promptLower, kw) {
			return m.responses[kw], nil
		}
	}

	// Default response
	return m.fallback, nil
}

// CompleteJSON returns a mock JSON response
func (m *MockClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return m.Complete(ctx, prompt)
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.Complete(ctx, userPrompt)
}

func (m *MockClient) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.Complete(ctx, userPrompt)
}

// DescribeImage answers with the canned response for the prompt.
func (m *MockClient) DescribeImage(ctx context.Context, prompt string, image Image) (string, error) {
	if image.URL == "" && len(image.Data) == 0 {
		return "", fmt.Errorf("mock: empty image")
	}
	return m.Complete(ctx, prompt)
}

// Embed returns a deterministic unit vector derived from the words of text,
// so texts sharing words have positive cosine similarity.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	err, dims := m.err, m.dims
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vec := make([]float64, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	for i, v := range vec {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out, nil
}
