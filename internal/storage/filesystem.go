package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FileSystem struct {
	baseDir string
}

// NewFileSystem stores each key as a file below baseDir.
func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		baseDir: filepath.Clean(baseDir),
	}
}

// sanitizePath validates and cleans the path to prevent directory traversal
func (fs *FileSystem) sanitizePath(path string) (string, error) {
	// Clean the path to resolve . and .. elements
	cleaned := filepath.Clean(path)

	// Reject paths that try to escape using ..
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains parent directory reference")
	}

	// Reject absolute paths
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid path: absolute paths not allowed")
	}

	// Build the full path
	fullPath := filepath.Join(fs.baseDir, cleaned)

	// Verify the final path is still within baseDir
	// This handles symbolic links and other edge cases
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) && fullPath != fs.baseDir {
		return "", fmt.Errorf("invalid path: outside base directory")
	}

	return fullPath, nil
}

func (fs *FileSystem) Save(ctx context.Context, path string, data []byte) error {
	fullPath, err := fs.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

func (fs *FileSystem) Load(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := fs.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return data, nil
}

func (fs *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	// For glob patterns, we need to be more careful
	// Clean the pattern but allow * and ? wildcards
	cleaned := filepath.Clean(pattern)
	if strings.Contains(cleaned, "..") {
		return nil, fmt.Errorf("invalid pattern: contains parent directory reference")
	}
	if filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid pattern: absolute paths not allowed")
	}

	fullPattern := filepath.Join(fs.baseDir, cleaned)

	matches, err := filepath.Glob(fullPattern)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var results []string
	for _, match := range matches {
		// Verify each match is within baseDir
		if !strings.HasPrefix(match, fs.baseDir+string(filepath.Separator)) && match != fs.baseDir {
			continue
		}

		rel, err := filepath.Rel(fs.baseDir, match)
		if err != nil {
			continue
		}
		results = append(results, rel)
	}

	return results, nil
}

func (fs *FileSystem) Delete(ctx context.Context, path string) error {
	fullPath, err := fs.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("deleting file: %w", err)
	}

	return nil
}