package capability

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache compiles each capability's response schema once.
// It is safe for concurrent use.
type schemaCache struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{cache: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) get(name, src string) (*jsonschema.Schema, error) {
	c.mu.RLock()
	if s, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache[name]; ok {
		return s, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
	}

	url := "haven://capability/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}

	c.cache[name] = s
	return s, nil
}

// validate checks v against the named schema and returns a readable list
// of violations.
func (c *schemaCache) validate(name, src string, v any) error {
	if src == "" {
		return nil
	}
	s, err := c.get(name, src)
	if err != nil {
		return err
	}

	// The validator wants json.Number for numbers.
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
	if err != nil {
		return err
	}

	if err := s.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return err
		}
		return fmt.Errorf("response does not match %s schema: %s", name, strings.Join(collectViolations(verr), "; "))
	}
	return nil
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
