package agent

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestPromptCache(t *testing.T) {
	tempDir := t.TempDir()

	override := filepath.Join(tempDir, "quiz.tmpl")
	if err := os.WriteFile(override, []byte("Override for {{.Topic}}"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewPromptCache(tempDir)

	t.Run("parses inline source", func(t *testing.T) {
		tmpl, err := cache.Template("script", "Write a script about {{.Topic}}")
		if err != nil {
			t.Fatalf("Template() error = %v", err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, map[string]any{"Topic": "coffee"}); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != "Write a script about coffee" {
			t.Errorf("Execute() = %q", got)
		}
	})

	t.Run("caches parsed template", func(t *testing.T) {
		tmpl, err := cache.Template("script", "different source is ignored")
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, map[string]any{"Topic": "tea"}); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != "Write a script about tea" {
			t.Errorf("Execute() = %q, want cached template output", got)
		}
	})

	t.Run("override file wins", func(t *testing.T) {
		tmpl, err := cache.Template("quiz", "inline quiz {{.Topic}}")
		if err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, map[string]any{"Topic": "go"}); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != "Override for go" {
			t.Errorf("Execute() = %q, want override", got)
		}
	})

	t.Run("invalid template", func(t *testing.T) {
		if _, err := cache.Template("broken", "{{.Unclosed"); err == nil {
			t.Error("Template() with invalid source should return error")
		}
	})

	t.Run("clear cache", func(t *testing.T) {
		cache.Clear()
		if n := cache.Len(); n != 0 {
			t.Errorf("Len() after Clear() = %d, want 0", n)
		}
	})
}
