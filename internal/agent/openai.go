package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) openAIHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *Client) doOpenAIRequest(ctx context.Context, req chatRequest) (string, error) {
	var messages []openAIMessage

	if req.system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.system})
	}

	if req.image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.image.MIMEType, base64.StdEncoding.EncodeToString(req.image.Data))
		messages = append(messages, openAIMessage{Role: "user", Content: []openAIContentPart{
			{Type: "text", Text: req.user},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
		}})
	} else {
		messages = append(messages, openAIMessage{Role: "user", Content: req.user})
	}

	body := openAIRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxOutputTokens,
	}
	if req.forceJSON {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	respBody, err := c.postJSON(ctx, c.baseURL+"/chat/completions", body, c.openAIHeaders())
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parsing response: %v: %w", err, havenerr.ErrUpstream)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %w", havenerr.ErrUpstream)
	}

	c.logger.DebugContext(ctx, "OpenAI response parsed",
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) doOpenAIEmbed(ctx context.Context, text string) ([]float32, error) {
	body := openAIEmbedRequest{Model: c.embeddingModel, Input: text}

	respBody, err := c.postJSON(ctx, c.baseURL+"/embeddings", body, c.openAIHeaders())
	if err != nil {
		return nil, err
	}

	var resp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing embedding: %v: %w", err, havenerr.ErrUpstream)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response: %w", havenerr.ErrUpstream)
	}
	return resp.Data[0].Embedding, nil
}
