package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// ErrEmbeddingsUnsupported is returned by providers without an embeddings API.
var ErrEmbeddingsUnsupported = fmt.Errorf("provider has no embeddings endpoint: %w", havenerr.ErrNotConfigured)

// Embed returns the embedding vector for text. Empty text is rejected
// before any network call.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, havenerr.Invalid("text is required")
	}
	if c.apiKey == "" {
		return nil, havenerr.NotConfigured("model API key")
	}
	if c.apiType == APIAnthropic {
		return nil, ErrEmbeddingsUnsupported
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	var (
		vec []float32
		err error
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if c.apiType == APIOpenAI {
			vec, err = c.doOpenAIEmbed(ctx, text)
		} else {
			vec, err = c.doGeminiEmbed(ctx, text)
		}
		if err == nil || !isRetryable(err) {
			break
		}
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "embedding request failed",
			"text_length", len(text),
			"error", err)
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.Join(havenerr.ErrUpstream, errors.New("empty embedding"))
	}

	c.logger.DebugContext(ctx, "embedding generated",
		"dimensions", len(vec),
		"duration_ms", time.Since(start).Milliseconds())
	return vec, nil
}
