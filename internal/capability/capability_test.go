package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/store"
	"github.com/havenos/haven/internal/websearch"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// stubClient answers every call with one response and records prompts.
type stubClient struct {
	mu        sync.Mutex
	response  string
	err       error
	block     bool
	cancelled bool
	prompts   []string
}

func (s *stubClient) complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
		return "", ctx.Err()
	}
	return s.response, s.err
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *stubClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *stubClient) CompleteJSONWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return s.complete(ctx, prompt)
}

func (s *stubClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubClient) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

type assetList []store.Asset

func (a assetList) ListAssets(ctx context.Context, userID string) ([]store.Asset, error) {
	return a, nil
}

type profileMap map[string]store.Profile

func (p profileMap) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if prof, ok := p[userID]; ok {
		return prof, nil
	}
	return store.Profile{}, havenerr.ErrNotFound
}

const nodesBody = `{"nodes":[{"id":"n1","type":"note","label":"Morning routine","content":"Plan before email."}]}`

func invoke(t *testing.T, inv *Invoker, name, body string) (any, error) {
	t.Helper()
	return inv.Invoke(context.Background(), name, []byte(body))
}

func TestBuiltinCapabilities(t *testing.T) {
	inv := NewInvoker(agent.New(&stubClient{}, nil))
	assert.Equal(t, []string{
		"ab-variant", "article-expand", "article-outline", "article-polish",
		"broll-suggest", "course-outline", "ghostwriter-deconstruct", "ghostwriter-generate",
		"image-analysis", "marketing-angle", "production-plan", "quiz",
		"repurpose", "script", "storyboard", "translate", "tutor-chat",
	}, inv.Names())

	sample := &Input{
		Nodes:       []NodeSummary{{ID: "n1", Type: "note", Label: "Label", Content: "Body"}},
		Instruction: "keep it short",
		Fields: map[string]any{
			"topic": "Focus", "section": "Intro", "content": "Draft", "message": "Why?",
			"targetLanguage": "es", "imageUrl": "https://cdn/x.png",
			"voice":   map[string]any{"tone": "dry", "signaturePhrases": []any{"in short"}},
			"samples": []any{"one", "two"},
			"history": []any{map[string]any{"role": "student", "content": "hi"}},
		},
		Options: map[string]string{},
		Profile: &store.Profile{Name: "Sam", Role: "coach"},
		Extra:   map[string]any{},
	}

	for _, name := range inv.Names() {
		t.Run(name, func(t *testing.T) {
			d, ok := inv.Descriptor(name)
			require.True(t, ok)

			for _, opt := range d.Options {
				sample.Options[opt.Name] = opt.Default
				assert.Contains(t, opt.Allowed, opt.Default)
			}
			prompt, err := inv.agent.Render(name, d.Template, sample)
			require.NoError(t, err)
			assert.NotContains(t, prompt, "<no value>")
			assert.Contains(t, prompt, "keep it short")

			if d.Mode == ModeJSON {
				assert.NotEmpty(t, d.Schema)
			}
			if d.OnParseFailure == UseFallback {
				require.NotNil(t, d.Fallback)
				fb, err := normalizeMap(d.Fallback(sample))
				require.NoError(t, err)
				assert.NoError(t, inv.schemas.validate(name, d.Schema, fb))
			}
		})
	}
}

func TestInvokeValidatesBeforeCallingModel(t *testing.T) {
	tests := []struct {
		name       string
		capability string
		body       string
	}{
		{"empty body", "script", ``},
		{"not an object", "script", `[1,2]`},
		{"missing nodes", "script", `{"nodes":[]}`},
		{"bad option", "script", `{"nodes":[{"id":"n","type":"note"}],"platform":"myspace"}`},
		{"missing one of", "translate", `{"targetLanguage":"es"}`},
		{"missing message", "tutor-chat", `{"content":"lesson"}`},
		{"broll needs user", "broll-suggest", nodesBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{response: `{}`}
			inv := NewInvoker(agent.New(client, nil))

			_, err := invoke(t, inv, tt.capability, tt.body)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, havenerr.StatusFor(err))
			assert.Zero(t, client.calls())
		})
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	inv := NewInvoker(agent.New(&stubClient{}, nil))
	_, err := invoke(t, inv, "horoscope", nodesBody)
	assert.Equal(t, http.StatusNotFound, havenerr.StatusFor(err))
}

func TestInvokeFlatScript(t *testing.T) {
	mock := agent.NewMockClient()
	inv := NewInvoker(agent.New(mock, nil))

	out, err := invoke(t, inv, "script", nodesBody)
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok, "script responds with the parsed object")
	assert.Equal(t, "Stop scrolling: this changes your mornings.", obj["hook"])
	assert.Equal(t, float64(30), obj["estimatedDuration"])
	assert.NotContains(t, obj, "fallback")

	require.Equal(t, 1, mock.Calls())
	prompt := mock.Prompts()[0]
	assert.Contains(t, prompt, "tiktok")
	assert.Contains(t, prompt, "60 seconds")
	assert.Contains(t, prompt, "Plan before email.")
}

func TestInvokeFallbackOnParseFailure(t *testing.T) {
	client := &stubClient{response: "Sorry, I can't help with that."}
	inv := NewInvoker(agent.New(client, nil))

	out, err := invoke(t, inv, "script", `{"nodes":[{"id":"n1","type":"note","label":"Coffee"}],"duration":30}`)
	require.NoError(t, err)

	obj := out.(map[string]any)
	assert.Equal(t, true, obj["fallback"])
	assert.Equal(t, float64(30), obj["estimatedDuration"])
	assert.Contains(t, obj["hook"], "Coffee")
}

func TestInvokeFallbackWhenSchemaFails(t *testing.T) {
	client := &stubClient{response: `{"variants":[{"label":"A","text":"only one"}]}`}
	inv := NewInvoker(agent.New(client, nil))

	out, err := invoke(t, inv, "ab-variant", `{"content":"Save time with Haven"}`)
	require.NoError(t, err)

	resp := out.(Response)
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Result.Metadata["fallback"])
	assert.Len(t, resp.Result.Content, 2)
}

func TestInvokePropagatesParseFailure(t *testing.T) {
	for _, response := range []string{
		"not json at all",
		`{"questions":[{"question":"missing options and answer"}]}`,
		`["an","array"]`,
	} {
		client := &stubClient{response: response}
		inv := NewInvoker(agent.New(client, nil))

		_, err := invoke(t, inv, "quiz", nodesBody)
		require.Error(t, err, response)
		assert.Equal(t, http.StatusBadGateway, havenerr.StatusFor(err))

		var agentErr *havenerr.AgentError
		require.True(t, errors.As(err, &agentErr))
		assert.Equal(t, "quiz", agentErr.Capability)
	}
}

func TestInvokeWrappedQuiz(t *testing.T) {
	inv := NewInvoker(agent.New(agent.NewMockClient(), nil))

	out, err := invoke(t, inv, "quiz", nodesBody)
	require.NoError(t, err)

	resp, ok := out.(Response)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Result)

	content := resp.Result.Content.(map[string]any)
	assert.Equal(t, "Morning Routines", content["title"])
	assert.Equal(t, "medium", resp.Result.Metadata["difficulty"])
	assert.EqualValues(t, 1, resp.Result.Metadata["questionCount"])
	assert.Equal(t, []SuggestedEdge{{Type: "quiz", Label: "quiz"}}, resp.Result.SuggestedEdges)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"success":true`)
	assert.NotContains(t, string(b), `"error"`)
}

func TestInvokeTextCapability(t *testing.T) {
	client := &stubClient{response: "```\nHola a todos\n```"}
	inv := NewInvoker(agent.New(client, nil))

	out, err := invoke(t, inv, "translate", `{"content":"Hello everyone","targetLanguage":"Spanish"}`)
	require.NoError(t, err)

	resp := out.(Response)
	assert.Equal(t, "Hola a todos", resp.Result.Content)
	assert.Equal(t, "Spanish", resp.Result.Metadata["targetLanguage"])
	assert.Contains(t, client.lastPrompt(), "into Spanish")

	client.response = "   "
	_, err = invoke(t, inv, "translate", `{"content":"Hello","targetLanguage":"Spanish"}`)
	assert.Equal(t, http.StatusBadGateway, havenerr.StatusFor(err))
}

func TestInvokeUpstreamError(t *testing.T) {
	client := &stubClient{err: havenerr.NotConfigured("model API key")}
	inv := NewInvoker(agent.New(client, nil))

	_, err := invoke(t, inv, "repurpose", `{"content":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, havenerr.StatusFor(err))
}

func TestInvokeDeadlineCancelsModelCall(t *testing.T) {
	client := &stubClient{block: true}
	inv := NewInvoker(agent.New(client, nil))

	d, ok := inv.Descriptor("production-plan")
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, d.Timeout)

	d.Timeout = 20 * time.Millisecond
	inv.Register(d)

	_, err := invoke(t, inv, "production-plan", nodesBody)
	require.Error(t, err)
	assert.True(t, havenerr.IsTimeout(err))
	assert.Equal(t, http.StatusGatewayTimeout, havenerr.StatusFor(err))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.cancelled)
}

func TestInvokeBRollSuggest(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assets := assetList{
		{ID: "a1", Name: "office-desk.png", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "a2", Name: "laptop-typing.mp4", CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "a3", Name: "beach.jpg", CreatedAt: now},
	}
	inv := NewInvoker(agent.New(agent.NewMockClient(), nil), WithAssets(assets))

	out, err := invoke(t, inv, "broll-suggest", `{"userId":"u1","nodes":[{"id":"n1","type":"note","content":"A day of remote work"}]}`)
	require.NoError(t, err)

	resp := out.(Response)
	suggestions := resp.Result.Content.([]any)
	require.Len(t, suggestions, 3)
	var order []string
	for _, s := range suggestions {
		order = append(order, s.(map[string]any)["assetId"].(string))
	}
	assert.Equal(t, []string{"a2", "a1", "a3"}, order)
	assert.Equal(t, []any{"office", "laptop"}, resp.Result.Metadata["keywords"])
}

func TestInvokeBRollWithoutAssetStore(t *testing.T) {
	inv := NewInvoker(agent.New(agent.NewMockClient(), nil))
	_, err := invoke(t, inv, "broll-suggest", `{"userId":"u1","nodes":[{"id":"n1","type":"note"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, havenerr.StatusFor(err))
}

func TestRankBRoll(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		keywords []string
		assets   []store.Asset
		want     []string
	}{
		{
			name:     "score then newer first",
			keywords: []string{"office", "laptop"},
			assets: []store.Asset{
				{ID: "desk", Name: "office-desk.png", CreatedAt: base},
				{ID: "beach", Name: "beach.jpg", CreatedAt: base.Add(3 * day)},
				{ID: "typing", Name: "laptop-typing.mp4", CreatedAt: base.Add(day)},
			},
			want: []string{"typing", "desk", "beach"},
		},
		{
			name:     "case insensitive and multiple matches",
			keywords: []string{" Office ", "LAPTOP", ""},
			assets: []store.Asset{
				{ID: "one", Name: "Office.png", CreatedAt: base.Add(day)},
				{ID: "both", Name: "laptop-in-OFFICE.mov", CreatedAt: base},
			},
			want: []string{"both", "one"},
		},
		{
			name:     "no keywords keeps newest first",
			keywords: nil,
			assets: []store.Asset{
				{ID: "old", Name: "a", CreatedAt: base},
				{ID: "new", Name: "b", CreatedAt: base.Add(day)},
			},
			want: []string{"new", "old"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range RankBRoll(tt.keywords, tt.assets) {
				got = append(got, s.AssetID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	ranked := RankBRoll([]string{"office", "laptop"}, []store.Asset{{ID: "x", Name: "office-desk.png"}})
	assert.Equal(t, 1, ranked[0].Score)
}

func TestImageAnalysis(t *testing.T) {
	mock := agent.NewMockClient().Default("A bright desk with a laptop.")

	inv := NewInvoker(agent.New(mock, nil), WithVision(mock))
	text, err := inv.AnalyzeImage(context.Background(), "https://cdn.example.com/desk.png")
	require.NoError(t, err)
	assert.Equal(t, "A bright desk with a laptop.", text)

	noVision := NewInvoker(agent.New(mock, nil))
	_, err = noVision.AnalyzeImage(context.Background(), "https://cdn.example.com/desk.png")
	assert.Equal(t, http.StatusServiceUnavailable, havenerr.StatusFor(err))
}

func TestArticleOutlineUsesProfileAndResearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"title":"Remote Report","url":"https://r.example","content":"Hybrid is up."}]}`))
	}))
	defer srv.Close()

	client := &stubClient{response: `{"title":"Working Remotely","sections":[{"heading":"Why now","points":["data"]}]}`}
	inv := NewInvoker(agent.New(client, nil),
		WithProfiles(profileMap{"u1": {UserID: "u1", Name: "Sam", WritingStyle: "plain"}}),
		WithWebSearch(websearch.New("key", srv.URL, nil)),
	)

	out, err := invoke(t, inv, "article-outline", `{"userId":"u1","topic":"remote work","research":true}`)
	require.NoError(t, err)

	prompt := client.lastPrompt()
	assert.Contains(t, prompt, "About the writer: Sam")
	assert.Contains(t, prompt, "Preferred style: plain")
	assert.Contains(t, prompt, "[1] Remote Report (https://r.example)")

	resp := out.(Response)
	assert.Equal(t, "Working Remotely", resp.Result.Metadata["title"])
	assert.Equal(t, true, resp.Result.Metadata["grounded"])
	assert.Equal(t, "article-expand", resp.Result.NextAgent)
	sections := resp.Result.Content.([]any)
	assert.Len(t, sections, 1)

	// Unknown users and missing search keys are not errors.
	noSearch := NewInvoker(agent.New(client, nil), WithProfiles(profileMap{}))
	_, err = invoke(t, noSearch, "article-outline", `{"userId":"u2","topic":"remote work","research":true}`)
	require.NoError(t, err)
	assert.False(t, strings.Contains(client.lastPrompt(), "About the writer"))
}

func TestFailureEnvelope(t *testing.T) {
	b, err := json.Marshal(Failure(errors.New("boom")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"boom"}`, string(b))
}
