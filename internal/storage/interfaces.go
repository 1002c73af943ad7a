package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load and Delete when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, path string) error
}
