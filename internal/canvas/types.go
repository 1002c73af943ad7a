package canvas

import (
	"encoding/json"
	"fmt"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

var (
	ErrUnknownNodeType = fmt.Errorf("canvas: unknown node type: %w", havenerr.ErrInvalidInput)
	ErrUnknownCommand  = fmt.Errorf("canvas: unknown command: %w", havenerr.ErrInvalidInput)
	ErrNodeNotFound    = fmt.Errorf("canvas: node %w", havenerr.ErrNotFound)
	ErrStaleCanvas     = fmt.Errorf("canvas: saved by another writer since it was loaded: %w", havenerr.ErrConflict)
	ErrInvalidCanvasID = fmt.Errorf("canvas: id must be lower-case letters, digits, '-' or '_': %w", havenerr.ErrInvalidInput)
)

type NodeType string

const (
	TypeImage          NodeType = "image"
	TypeNote           NodeType = "note"
	TypeLink           NodeType = "link"
	TypeDocument       NodeType = "document"
	TypeAudio          NodeType = "audio"
	TypeVideo          NodeType = "video"
	TypeAIAnalysis     NodeType = "ai-analysis"
	TypeCourse         NodeType = "course"
	TypeQuiz           NodeType = "quiz"
	TypeWorkflow       NodeType = "workflow"
	TypeScript         NodeType = "script"
	TypeStoryboard     NodeType = "storyboard"
	TypeMarketingAngle NodeType = "marketing-angle"
	TypeCampaign       NodeType = "campaign"
	TypeProductionPlan NodeType = "production-plan"
)

// NodeTypes lists every supported type tag.
var NodeTypes = []NodeType{
	TypeImage, TypeNote, TypeLink, TypeDocument, TypeAudio, TypeVideo,
	TypeAIAnalysis, TypeCourse, TypeQuiz, TypeWorkflow, TypeScript,
	TypeStoryboard, TypeMarketingAngle, TypeCampaign, TypeProductionPlan,
}

// Analysis status values for ai-analysis and image nodes.
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// ParseNodeType validates a type tag.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if _, ok := defaultPayloads[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNodeType, s)
	}
	return t, nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) Offset(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Node is a typed canvas vertex. Readers treat absent Data fields as not
// yet generated.
type Node struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// AssetID returns the external asset reference, if any.
func (n Node) AssetID() string {
	v, _ := n.Data["assetId"].(string)
	return v
}

func (n Node) String(field string) string {
	v, _ := n.Data[field].(string)
	return v
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Graph is a point-in-time copy of a canvas.
type Graph struct {
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	Revision int64  `json:"revision"`
}

func asset() map[string]any {
	return map[string]any{"assetId": "", "url": "", "label": ""}
}

func with(base map[string]any, fields map[string]any) map[string]any {
	for k, v := range fields {
		base[k] = v
	}
	return base
}

var defaultPayloads = map[NodeType]func() map[string]any{
	TypeImage: func() map[string]any {
		return with(asset(), map[string]any{"analysis": "", "status": StatusIdle})
	},
	TypeNote: func() map[string]any {
		return map[string]any{"content": "", "color": "yellow"}
	},
	TypeLink: func() map[string]any {
		return map[string]any{"url": "", "title": "", "description": "", "image": "", "siteName": ""}
	},
	TypeDocument: func() map[string]any {
		return with(asset(), map[string]any{"content": ""})
	},
	TypeAudio: func() map[string]any {
		return with(asset(), map[string]any{"transcript": "", "duration": 0})
	},
	TypeVideo: func() map[string]any {
		return with(asset(), map[string]any{"transcript": "", "duration": 0})
	},
	TypeAIAnalysis: func() map[string]any {
		return map[string]any{"analysis": "", "status": StatusIdle, "sourceId": ""}
	},
	TypeCourse: func() map[string]any {
		return map[string]any{"title": "", "description": "", "modules": []any{}}
	},
	TypeQuiz: func() map[string]any {
		return map[string]any{"title": "", "questions": []any{}, "difficulty": "medium"}
	},
	TypeWorkflow: func() map[string]any {
		return map[string]any{"steps": []any{}, "status": StatusIdle}
	},
	TypeScript: func() map[string]any {
		return map[string]any{"hook": "", "body": []any{}, "scenes": []any{}, "estimatedDuration": 0}
	},
	TypeStoryboard: func() map[string]any {
		return map[string]any{"frames": []any{}, "style": "cinematic"}
	},
	TypeMarketingAngle: func() map[string]any {
		return map[string]any{"angles": []any{}}
	},
	TypeCampaign: func() map[string]any {
		return map[string]any{"name": "", "channels": []any{}, "schedule": []any{}}
	},
	TypeProductionPlan: func() map[string]any {
		return map[string]any{"tasks": []any{}, "shotList": []any{}, "totalDuration": 0}
	},
}

// DefaultPayload returns a fresh default payload for t, normalised to the
// shapes JSON decoding produces.
func DefaultPayload(t NodeType) (map[string]any, error) {
	build, ok := defaultPayloads[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	return normalize(build())
}

// normalize round-trips a payload through JSON so numbers are float64 and
// nested values are plain maps and slices. Persisted graphs then reload
// identically.
func normalize(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-encodable: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

func cloneNode(n Node) Node {
	n.Data, _ = cloneValue(n.Data).(map[string]any)
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	return n
}
