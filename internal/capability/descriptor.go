// Package capability runs agent capabilities: each is a Descriptor that a
// single Invoker turns into one templated model call and a normalized
// result.
package capability

import (
	"context"
	"time"
)

// Mode selects how the model response is interpreted.
type Mode int

const (
	ModeJSON Mode = iota
	ModeText
	// ModeVision sends the request image with the prompt and expects text.
	ModeVision
)

// ParsePolicy decides what happens when a JSON response does not parse or
// fails its schema.
type ParsePolicy int

const (
	// Propagate fails the request with an upstream parse error.
	Propagate ParsePolicy = iota
	// UseFallback substitutes the descriptor's Fallback object.
	UseFallback
)

// Envelope selects the response shape.
type Envelope int

const (
	// Wrapped responds {success, result:{content, metadata, nextAgent}}.
	Wrapped Envelope = iota
	// Flat responds with the parsed object itself.
	Flat
)

// Option is an enumerated request option with a default.
type Option struct {
	Name    string
	Allowed []string
	Default string
}

// Descriptor is the data that distinguishes one capability from another.
type Descriptor struct {
	Name     string
	System   string
	Template string

	// Required lists request fields that must be present and non-empty.
	// "a|b" accepts either field.
	Required []string
	Options  []Option

	Mode           Mode
	OnParseFailure ParsePolicy
	Fallback       func(in *Input) map[string]any

	// Schema is a JSON Schema the parsed response must satisfy.
	Schema string
	// ContentQuery is a jq expression selecting result.content from the
	// parsed response. Empty means the whole object.
	ContentQuery string
	// MetadataQuery is a jq expression producing an object merged into
	// result.metadata.
	MetadataQuery string
	// Echo lists request fields copied into result.metadata.
	Echo []string

	NextAgent      string
	SuggestedEdges []SuggestedEdge
	Envelope       Envelope

	// Timeout, when set, bounds the model call with a context deadline.
	Timeout time.Duration

	// Prepare runs after validation and before rendering. It may add
	// template data such as profile or web sources.
	Prepare func(ctx context.Context, inv *Invoker, in *Input) error
	// Finish post-processes the parsed response before projection.
	Finish func(ctx context.Context, inv *Invoker, in *Input, parsed map[string]any) (map[string]any, error)
}

// SuggestedEdge hints how the UI should attach the result to the canvas.
type SuggestedEdge struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// NodeSummary is how a canvas node is described to a capability.
type NodeSummary struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	AssetID  string         `json:"assetId,omitempty"`
	Label    string         `json:"label,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the wrapped success payload.
type Result struct {
	Content        any             `json:"content"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	SuggestedEdges []SuggestedEdge `json:"suggestedEdges,omitempty"`
	NextAgent      string          `json:"nextAgent,omitempty"`
}

// Response is the wrapped envelope. Result is set only when Success is true.
type Response struct {
	Success bool    `json:"success"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Failure builds the error envelope.
func Failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
