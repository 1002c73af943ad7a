package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const (
	APIGemini    = "gemini"
	APIOpenAI    = "openai"
	APIAnthropic = "anthropic"

	maxOutputTokens = 8192
	maxImageBytes   = 10 << 20

	jsonOnlyInstruction = "You MUST respond with valid JSON only. Your entire response must be a single JSON value with no additional text, markdown, or explanations."
)

type Client struct {
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *http.Client
	maxRetries     int
	limiter        *rate.Limiter
	apiType        string
	logger         *slog.Logger
}

type Option func(*Client)

func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		// Preserve existing transport if any
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

// WithAPIConfig selects the provider, endpoint and models. An empty
// apiType is detected from the base URL.
func WithAPIConfig(apiType, baseURL, model, embeddingModel string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
		c.model = model
		if embeddingModel != "" {
			c.embeddingModel = embeddingModel
		}
		switch {
		case apiType != "":
			c.apiType = apiType
		case strings.Contains(baseURL, "openai"):
			c.apiType = APIOpenAI
		case strings.Contains(baseURL, "anthropic"):
			c.apiType = APIAnthropic
		default:
			c.apiType = APIGemini
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "ai_client")
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	// Configure transport with connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		apiKey:         apiKey,
		baseURL:        "https://generativelanguage.googleapis.com/v1beta",
		model:          "gemini-2.0-flash",
		embeddingModel: "text-embedding-004",
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
		maxRetries: 0,
		limiter:    rate.NewLimiter(rate.Limit(1), 10),
		apiType:    APIGemini,
		logger:     slog.Default().With("component", "ai_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("AI client initialized",
		"api_type", c.apiType,
		"base_url", c.baseURL,
		"model", c.model,
		"embedding_model", c.embeddingModel,
		"max_retries", c.maxRetries,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

// APIType reports the provider the client talks to.
func (c *Client) APIType() string {
	return c.apiType
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, chatRequest{user: prompt})
}

func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, chatRequest{user: prompt, forceJSON: true})
}

// CompleteWithSystem makes a request with separate system and user prompts
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, chatRequest{system: systemPrompt, user: userPrompt})
}

// CompleteJSONWithSystem makes a JSON request with separate system and user prompts
func (c *Client) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, chatRequest{system: systemPrompt, user: userPrompt, forceJSON: true})
}

// DescribeImage sends one image plus a text prompt.
func (c *Client) DescribeImage(ctx context.Context, prompt string, image Image) (string, error) {
	img, err := c.resolveImage(ctx, image)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, chatRequest{user: prompt, image: img})
}

type chatRequest struct {
	system    string
	user      string
	forceJSON bool
	image     *Image
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", havenerr.NotConfigured("model API key")
	}

	requestID := fmt.Sprintf("api_%d", time.Now().UnixNano())
	startTime := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.ErrorContext(ctx, "rate limit wait failed",
			"request_id", requestID,
			"error", err)
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	c.logger.DebugContext(ctx, "rate limit passed for AI request",
		"request_id", requestID,
		"wait_duration_ms", time.Since(startTime).Milliseconds())

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.DebugContext(ctx, "retry backoff",
				"request_id", requestID,
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds())

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		attemptStart := time.Now()
		c.logger.DebugContext(ctx, "attempting AI generation request",
			"request_id", requestID,
			"attempt", attempt,
			"system_prompt_length", len(req.system),
			"prompt_length", len(req.user),
			"has_image", req.image != nil,
			"force_json", req.forceJSON,
			"api_type", c.apiType,
			"model", c.model)

		response, err := c.doRequest(ctx, req)
		attemptDuration := time.Since(attemptStart)

		if err == nil {
			c.logger.InfoContext(ctx, "API request successful",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", attemptDuration.Milliseconds(),
				"response_length", len(response),
				"total_duration_ms", time.Since(startTime).Milliseconds())
			return response, nil
		}

		lastErr = err

		if !isRetryable(err) {
			c.logger.ErrorContext(ctx, "API request failed with non-retryable error",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", attemptDuration.Milliseconds(),
				"error", err)
			return "", err
		}

		c.logger.WarnContext(ctx, "API request failed",
			"request_id", requestID,
			"attempt", attempt,
			"duration_ms", attemptDuration.Milliseconds(),
			"error", err)
	}

	if c.maxRetries == 0 {
		return "", lastErr
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, req chatRequest) (string, error) {
	switch c.apiType {
	case APIOpenAI:
		return c.doOpenAIRequest(ctx, req)
	case APIAnthropic:
		return c.doAnthropicRequest(ctx, req)
	default:
		return c.doGeminiRequest(ctx, req)
	}
}

// statusError carries a non-200 response from the provider.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *statusError) Unwrap() error {
	return havenerr.ErrUpstream
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return errors.Is(err, havenerr.ErrUpstream)
}

// postJSON marshals body, sends it and returns the raw 200 response.
func (c *Client) postJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpStart := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("making request: %w", ctxErr)
		}
		return nil, fmt.Errorf("making request: %v: %w", err, havenerr.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %v: %w", err, havenerr.ErrUpstream)
	}

	c.logger.DebugContext(ctx, "HTTP response received",
		"api_type", c.apiType,
		"status_code", resp.StatusCode,
		"body_size", len(respBody),
		"duration_ms", time.Since(httpStart).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// resolveImage fetches URL-only images so they can be sent inline.
func (c *Client) resolveImage(ctx context.Context, image Image) (*Image, error) {
	if len(image.Data) > 0 {
		if image.MIMEType == "" {
			image.MIMEType = http.DetectContentType(image.Data)
		}
		return &image, nil
	}
	if image.URL == "" {
		return nil, havenerr.Invalid("image has neither data nor url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, image.URL, nil)
	if err != nil {
		return nil, havenerr.Invalid("bad image url: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %v: %w", err, havenerr.ErrUpstream)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image: status %d: %w", resp.StatusCode, havenerr.ErrUpstream)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return &Image{MIMEType: mime, Data: data, URL: image.URL}, nil
}
