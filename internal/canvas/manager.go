package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"

	"github.com/havenos/haven/internal/storage"
)

// Manager hands out one loaded Store per canvas id.
type Manager struct {
	storage  storage.Storage
	analyzer ImageAnalyzer
	logger   *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

func NewManager(st storage.Storage, analyzer ImageAnalyzer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		storage:  st,
		analyzer: analyzer,
		logger:   logger,
		stores:   make(map[string]*Store),
	}
}

const maxIDLength = 64

// ValidateID accepts only ids that are already storage keys, so two
// different ids can never share one canvas.
func ValidateID(id string) error {
	if id == "" || storage.SanitizeName(id, maxIDLength) != id {
		return fmt.Errorf("%w: %q", ErrInvalidCanvasID, id)
	}
	return nil
}

// Get returns the store for id, loading it on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Store, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[id]; ok {
		return s, nil
	}
	s := NewStore(id, m.storage, WithImageAnalyzer(m.analyzer), WithLogger(m.logger))
	s.Load(ctx)
	m.stores[id] = s
	return s, nil
}

// List returns the ids of every persisted canvas.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := m.storage.List(ctx, "*/"+nodesKey)
	if err != nil {
		return nil, fmt.Errorf("listing canvases: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, path.Dir(k))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete drops the cached store and removes its persisted keys.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.stores, id)
	m.mu.Unlock()

	for _, name := range []string{nodesKey, edgesKey, metaKey} {
		err := m.storage.Delete(ctx, storage.Key(id, name))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

// DeleteByAssetID removes nodes referencing assetID from every persisted
// canvas and saves the ones that changed.
func (m *Manager) DeleteByAssetID(ctx context.Context, assetID string) (int, error) {
	ids, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		s, err := m.Get(ctx, id)
		if err != nil {
			m.logger.Warn("skipping canvas with invalid id", "canvas_id", id)
			continue
		}
		n := s.DeleteByAssetID(assetID)
		if n == 0 {
			continue
		}
		if err := s.Save(ctx); err != nil {
			return total, fmt.Errorf("saving canvas %s: %w", id, err)
		}
		total += n
	}
	return total, nil
}
