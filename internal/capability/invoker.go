package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/logging"
	"github.com/havenos/haven/internal/store"
	"github.com/havenos/haven/internal/websearch"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
	"github.com/havenos/haven/pkg/haven/utils"
)

// AssetLister lists a user's assets, newest first.
type AssetLister interface {
	ListAssets(ctx context.Context, userID string) ([]store.Asset, error)
}

type ProfileGetter interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
}

// Invoker executes capabilities by descriptor.
type Invoker struct {
	agent       *agent.Agent
	vision      agent.VisionClient
	assets      AssetLister
	profiles    ProfileGetter
	web         *websearch.Client
	descriptors map[string]*Descriptor
	schemas     *schemaCache
	projector   *projector
	logger      *slog.Logger
}

type InvokerOption func(*Invoker)

func WithVision(v agent.VisionClient) InvokerOption {
	return func(inv *Invoker) {
		inv.vision = v
	}
}

func WithAssets(a AssetLister) InvokerOption {
	return func(inv *Invoker) {
		inv.assets = a
	}
}

func WithProfiles(p ProfileGetter) InvokerOption {
	return func(inv *Invoker) {
		inv.profiles = p
	}
}

func WithWebSearch(w *websearch.Client) InvokerOption {
	return func(inv *Invoker) {
		inv.web = w
	}
}

func WithLogger(logger *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// NewInvoker creates an invoker with every built-in capability registered.
func NewInvoker(a *agent.Agent, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		agent:       a,
		descriptors: make(map[string]*Descriptor),
		schemas:     newSchemaCache(),
		projector:   newProjector(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.With("component", "capability")

	for _, d := range Builtin() {
		inv.Register(d)
	}
	return inv
}

// Register adds or replaces a capability.
func (inv *Invoker) Register(d Descriptor) {
	if !strings.Contains(d.Template, `{{define "instruction"}}`) {
		d.Template += instructionTemplate
	}
	inv.descriptors[d.Name] = &d
}

func (inv *Invoker) Descriptor(name string) (Descriptor, bool) {
	d, ok := inv.descriptors[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Names lists registered capabilities in sorted order.
func (inv *Invoker) Names() []string {
	names := make([]string, 0, len(inv.descriptors))
	for name := range inv.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named capability on a JSON request body. It returns a
// Response for wrapped capabilities and the parsed object for flat ones.
// Validation failures are returned before any model call.
func (inv *Invoker) Invoke(ctx context.Context, name string, body []byte) (any, error) {
	d, ok := inv.descriptors[name]
	if !ok {
		return nil, fmt.Errorf("capability %q: %w", name, havenerr.ErrNotFound)
	}
	ctx = logging.WithCapability(ctx, name)
	startTime := time.Now()

	in, err := decodeInput(body)
	if err != nil {
		return nil, err
	}
	if in.UserID != "" {
		ctx = logging.WithUserID(ctx, in.UserID)
	}
	if err := checkRequired(d, in); err != nil {
		return nil, err
	}
	if err := resolveOptions(d, in); err != nil {
		return nil, err
	}
	if d.Prepare != nil {
		if err := d.Prepare(ctx, inv, in); err != nil {
			return nil, havenerr.NewAgentError(name, err)
		}
	}

	raw, err := inv.call(ctx, d, in)
	if err != nil {
		return nil, havenerr.NewAgentError(name, err)
	}

	var (
		parsed   map[string]any
		content  any
		fallback bool
	)
	switch d.Mode {
	case ModeText, ModeVision:
		text := utils.StripCodeFences(raw)
		if text == "" {
			return nil, havenerr.NewAgentError(name, fmt.Errorf("%w: empty response", havenerr.ErrParse))
		}
		content = text

	default:
		parsed, fallback, err = inv.parse(ctx, d, in, raw)
		if err != nil {
			return nil, havenerr.NewAgentError(name, err)
		}
		if d.Finish != nil {
			if parsed, err = d.Finish(ctx, inv, in, parsed); err != nil {
				return nil, havenerr.NewAgentError(name, err)
			}
		}
		if d.Envelope == Flat {
			if fallback {
				parsed["fallback"] = true
			}
			inv.logCompleted(ctx, d, startTime, fallback)
			return parsed, nil
		}
		if content, err = inv.projector.project(ctx, d.ContentQuery, parsed); err != nil {
			return nil, havenerr.NewAgentError(name, err)
		}
	}

	metadata, err := inv.metadata(ctx, d, in, parsed, fallback)
	if err != nil {
		return nil, havenerr.NewAgentError(name, err)
	}

	inv.logCompleted(ctx, d, startTime, fallback)
	return Response{
		Success: true,
		Result: &Result{
			Content:        content,
			Metadata:       metadata,
			SuggestedEdges: d.SuggestedEdges,
			NextAgent:      d.NextAgent,
		},
	}, nil
}

// call issues the single model call, under the descriptor deadline if any.
func (inv *Invoker) call(ctx context.Context, d *Descriptor, in *Input) (string, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var (
		raw string
		err error
	)
	if d.Mode == ModeVision {
		raw, err = inv.describeImage(ctx, d, in)
	} else {
		raw, err = inv.agent.Execute(ctx, agent.Request{
			Name:     d.Name,
			System:   d.System,
			Template: d.Template,
			Data:     in,
			JSON:     d.Mode == ModeJSON,
		})
	}

	if err != nil && d.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: no response within %s", havenerr.ErrTimeout, d.Timeout)
	}
	return raw, err
}

func (inv *Invoker) describeImage(ctx context.Context, d *Descriptor, in *Input) (string, error) {
	if inv.vision == nil {
		return "", havenerr.NotConfigured("vision model")
	}
	prompt, err := inv.agent.Render(d.Name, d.Template, in)
	if err != nil {
		return "", err
	}
	return inv.vision.DescribeImage(ctx, prompt, agent.Image{
		URL:      in.String("imageUrl"),
		MIMEType: in.String("mimeType"),
	})
}

// parse decodes and validates a JSON response, substituting the fallback
// when the descriptor allows it.
func (inv *Invoker) parse(ctx context.Context, d *Descriptor, in *Input, raw string) (map[string]any, bool, error) {
	var parsed map[string]any
	err := utils.ParseJSONResponse(raw, &parsed)
	if err == nil && parsed == nil {
		err = errors.New("response is not a JSON object")
	}
	if err == nil {
		err = inv.schemas.validate(d.Name, d.Schema, parsed)
	}
	if err == nil {
		return parsed, false, nil
	}

	if d.OnParseFailure != UseFallback || d.Fallback == nil {
		inv.logger.ErrorContext(ctx, "unparseable model response",
			"capability", d.Name,
			"response_length", len(raw),
			"error", err)
		return nil, false, fmt.Errorf("%w: %v", havenerr.ErrParse, err)
	}

	inv.logger.WarnContext(ctx, "using fallback for unparseable model response",
		"capability", d.Name,
		"error", err)
	fb, ferr := normalizeMap(d.Fallback(in))
	if ferr != nil {
		return nil, false, ferr
	}
	return fb, true, nil
}

func (inv *Invoker) metadata(ctx context.Context, d *Descriptor, in *Input, parsed map[string]any, fallback bool) (map[string]any, error) {
	md := map[string]any{}
	for k, v := range in.Options {
		md[k] = v
	}
	for k, v := range in.Extra {
		md[k] = v
	}
	for _, f := range d.Echo {
		if v := in.String(f); v != "" {
			md[f] = v
		}
	}
	if d.MetadataQuery != "" && parsed != nil {
		extra, err := inv.projector.project(ctx, d.MetadataQuery, parsed)
		if err != nil {
			return nil, err
		}
		if m, ok := extra.(map[string]any); ok {
			for k, v := range m {
				md[k] = v
			}
		}
	}
	if fallback {
		md["fallback"] = true
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func (inv *Invoker) logCompleted(ctx context.Context, d *Descriptor, start time.Time, fallback bool) {
	inv.logger.InfoContext(ctx, "capability completed",
		"capability", d.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"fallback", fallback)
}

// AnalyzeImage runs image-analysis for a URL and returns the text. It lets
// the canvas trigger analysis when an image is connected to an analysis
// node.
func (inv *Invoker) AnalyzeImage(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"imageUrl": imageURL})
	if err != nil {
		return "", err
	}
	out, err := inv.Invoke(ctx, "image-analysis", body)
	if err != nil {
		return "", err
	}
	resp, ok := out.(Response)
	if !ok || resp.Result == nil {
		return "", fmt.Errorf("%w: unexpected image-analysis result", havenerr.ErrParse)
	}
	text, _ := resp.Result.Content.(string)
	return text, nil
}

// normalizeMap round-trips m through JSON so it matches a decoded model
// response.
func normalizeMap(m map[string]any) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
