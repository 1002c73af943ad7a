package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Client) doAnthropicRequest(ctx context.Context, req chatRequest) (string, error) {
	system := req.system
	if req.forceJSON {
		// Anthropic has no JSON response mode; ask for it in the system prompt.
		if system != "" {
			system += "\n\n"
		}
		system += jsonOnlyInstruction
	}

	var blocks []anthropicBlock
	if req.image != nil {
		blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicSource{
			Type:      "base64",
			MediaType: req.image.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(req.image.Data),
		}})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.user})

	body := anthropicRequest{
		Model:     c.model,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
		MaxTokens: maxOutputTokens,
		System:    system,
	}

	respBody, err := c.postJSON(ctx, c.baseURL+"/messages", body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parsing response: %v: %w", err, havenerr.ErrUpstream)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no content in response: %w", havenerr.ErrUpstream)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.DebugContext(ctx, "Anthropic response parsed",
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return text.String(), nil
}
