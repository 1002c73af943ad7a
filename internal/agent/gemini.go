package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (c *Client) geminiURL(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", c.baseURL, url.PathEscape(model), method)
}

func (c *Client) geminiHeaders() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}

func (c *Client) doGeminiRequest(ctx context.Context, req chatRequest) (string, error) {
	parts := []geminiPart{{Text: req.user}}
	if req.image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: req.image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.image.Data),
		}})
	}

	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: maxOutputTokens},
	}
	if req.system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.system}}}
	}
	if req.forceJSON {
		body.GenerationConfig.ResponseMIMEType = "application/json"
	}

	respBody, err := c.postJSON(ctx, c.geminiURL(c.model, "generateContent"), body, c.geminiHeaders())
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parsing response: %v: %w", err, havenerr.ErrUpstream)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response: %w", havenerr.ErrUpstream)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	c.logger.DebugContext(ctx, "Gemini response parsed",
		"finish_reason", resp.Candidates[0].FinishReason,
		"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
		"completion_tokens", resp.UsageMetadata.CandidatesTokenCount,
		"total_tokens", resp.UsageMetadata.TotalTokenCount)

	return text.String(), nil
}

func (c *Client) doGeminiEmbed(ctx context.Context, text string) ([]float32, error) {
	model := c.embeddingModel
	body := geminiEmbedRequest{
		Model:   "models/" + model,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	respBody, err := c.postJSON(ctx, c.geminiURL(model, "embedContent"), body, c.geminiHeaders())
	if err != nil {
		return nil, err
	}

	var resp geminiEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parsing embedding: %v: %w", err, havenerr.ErrUpstream)
	}
	return resp.Embedding.Values, nil
}
