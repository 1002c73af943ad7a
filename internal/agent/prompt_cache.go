package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// PromptCache caches parsed prompt templates so each capability's template
// is parsed once. Templates may be overridden by files in an optional
// directory named <name>.tmpl.
type PromptCache struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	dir       string
}

// NewPromptCache creates a new prompt cache. dir may be empty.
func NewPromptCache(dir string) *PromptCache {
	return &PromptCache{
		templates: make(map[string]*template.Template),
		dir:       dir,
	}
}

// Template returns the parsed template for name, parsing src (or the
// override file) on first use.
func (pc *PromptCache) Template(name, src string) (*template.Template, error) {
	// Check cache first
	pc.mu.RLock()
	if tmpl, ok := pc.templates[name]; ok {
		pc.mu.RUnlock()
		return tmpl, nil
	}
	pc.mu.RUnlock()

	if pc.dir != "" {
		content, err := os.ReadFile(filepath.Join(pc.dir, name+".tmpl"))
		switch {
		case err == nil:
			src = string(content)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading prompt override: %w", err)
		}
	}

	tmpl, err := template.New(name).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	pc.mu.Lock()
	pc.templates[name] = tmpl
	pc.mu.Unlock()

	return tmpl, nil
}

// Clear removes all cached templates
func (pc *PromptCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.templates = make(map[string]*template.Template)
}

// Len returns the number of cached templates
func (pc *PromptCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return len(pc.templates)
}
