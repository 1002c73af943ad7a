package agent

import "context"

type AIClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns text into a vector. The dimensionality is whatever the
// configured embedding model returns.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VisionClient answers a prompt about a single image.
type VisionClient interface {
	DescribeImage(ctx context.Context, prompt string, image Image) (string, error)
}

// Image is either inline bytes or a URL the client fetches.
type Image struct {
	MIMEType string
	Data     []byte
	URL      string
}
