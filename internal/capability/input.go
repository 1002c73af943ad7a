package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

var validate = validator.New()

// Input is a decoded capability request plus whatever Prepare adds. It is
// also the template data.
type Input struct {
	Nodes       []NodeSummary
	Instruction string
	UserID      string
	// Fields holds the raw request body.
	Fields  map[string]any
	Options map[string]string

	Profile *store.Profile
	Sources string
	// Extra carries values computed by Prepare. They are reported in
	// result metadata.
	Extra map[string]any
}

// Context renders the nodes as prompt text.
func (in *Input) Context() string {
	var b strings.Builder
	for _, n := range in.Nodes {
		fmt.Fprintf(&b, "[%s]", n.Type)
		if n.Label != "" {
			fmt.Fprintf(&b, " %s", n.Label)
		}
		b.WriteByte('\n')
		if n.Content != "" {
			b.WriteString(strings.TrimSpace(n.Content))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		return s
	}
	return in.String("content")
}

// String returns a string request field, or "".
func (in *Input) String(name string) string {
	switch v := in.Fields[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprint(v)
	}
	return ""
}

// Option returns the resolved value of an enumerated option.
func (in *Input) Option(name string) string {
	return in.Options[name]
}

// Title picks a human label for fallbacks: first node label, else the
// topic field.
func (in *Input) Title() string {
	for _, n := range in.Nodes {
		if n.Label != "" {
			return n.Label
		}
	}
	if t := in.String("topic"); t != "" {
		return t
	}
	return "Untitled"
}

func decodeInput(body []byte) (*Input, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, havenerr.Invalid("request body is empty")
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, havenerr.Invalid("request body is not a JSON object: %v", err)
	}

	in := &Input{Fields: fields, Options: map[string]string{}, Extra: map[string]any{}}

	if raw, ok := fields["nodes"]; ok && raw != nil {
		b, _ := json.Marshal(raw)
		if err := json.Unmarshal(b, &in.Nodes); err != nil {
			return nil, havenerr.Invalid("nodes must be a list of node summaries")
		}
	}
	in.Instruction = in.String("instruction")
	in.UserID = in.String("userId")
	return in, nil
}

func (in *Input) present(name string) bool {
	if name == "nodes" {
		return len(in.Nodes) > 0
	}
	switch v := in.Fields[name].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func checkRequired(d *Descriptor, in *Input) error {
	var missing []string
	for _, req := range d.Required {
		ok := false
		for _, alt := range strings.Split(req, "|") {
			if in.present(alt) {
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, strings.ReplaceAll(req, "|", " or "))
		}
	}
	if len(missing) > 0 {
		return havenerr.Invalid("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// resolveOptions applies defaults and rejects values outside the allowed set.
func resolveOptions(d *Descriptor, in *Input) error {
	for _, opt := range d.Options {
		value := in.String(opt.Name)
		if value == "" {
			in.Options[opt.Name] = opt.Default
			continue
		}
		if err := validate.Var(value, "oneof="+strings.Join(opt.Allowed, " ")); err != nil {
			return havenerr.Invalid("%s must be one of %s, got %q", opt.Name, strings.Join(opt.Allowed, ", "), value)
		}
		in.Options[opt.Name] = value
	}
	return nil
}
