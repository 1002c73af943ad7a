package storage

import (
	"path"
	"strings"
)

// Key joins a namespace (for example a canvas id) and a name into a storage
// key. The namespace is reduced to a safe file name component.
func Key(namespace, name string) string {
	return path.Join(SanitizeName(namespace, 64), name)
}

// SanitizeName converts a string to a safe key/file name component
func SanitizeName(s string, maxLen int) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '/', r == '\\', r == ':', r == '.':
			b.WriteRune('-')
		}
	}
	s = b.String()

	// Remove multiple consecutive hyphens
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	// Trim hyphens from start and end
	s = strings.Trim(s, "-")

	// Truncate to max length
	if len(s) > maxLen {
		s = s[:maxLen]
		// Ensure we don't end with a hyphen after truncation
		s = strings.TrimRight(s, "-")
	}

	// If empty after sanitization, use a default
	if s == "" {
		s = "default"
	}

	return s
}
