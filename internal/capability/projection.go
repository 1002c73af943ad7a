package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// projector evaluates cached jq expressions against parsed responses.
type projector struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func newProjector() *projector {
	return &projector{cache: make(map[string]*gojq.Code)}
}

// project returns the single output of expr over data. Multiple outputs are
// collected into a slice; no output yields nil.
func (p *projector) project(ctx context.Context, expr string, data map[string]any) (any, error) {
	if expr == "" {
		return data, nil
	}
	code, err := p.compile(expr)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq %q: %w", expr, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (p *projector) compile(expr string) (*gojq.Code, error) {
	p.mu.RLock()
	if code, ok := p.cache[expr]; ok {
		p.mu.RUnlock()
		return code, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if code, ok := p.cache[expr]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("jq parse %q: %w", expr, err)
	}
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("jq compile %q: %w", expr, err)
	}

	p.cache[expr] = code
	return code, nil
}
