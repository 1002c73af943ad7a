package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const vaultSearchLimit = 50

func (s *Store) CreateVaultItem(ctx context.Context, it VaultItem) (VaultItem, error) {
	if it.UserID == "" {
		return VaultItem{}, havenerr.Invalid("vault item needs userId")
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	it.CreatedAt = it.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx, `INSERT INTO vault_items (id, user_id, title, content, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, it.ID, it.UserID, it.Title, it.Content, it.Source, toMillis(it.CreatedAt))
	if err != nil {
		return VaultItem{}, fmt.Errorf("insert vault item: %w", err)
	}
	return it, nil
}

// SearchVault does a case-insensitive substring match over title and
// content, newest first. An empty query lists the newest items.
func (s *Store) SearchVault(ctx context.Context, userID, query string) ([]VaultItem, error) {
	if userID == "" {
		return nil, havenerr.Invalid("userId is required")
	}
	pattern := likePattern(strings.TrimSpace(query))

	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, content, source, created_at
		FROM vault_items
		WHERE user_id = ? AND (title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
		ORDER BY created_at DESC LIMIT ?`, userID, pattern, pattern, vaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search vault: %w", err)
	}
	defer rows.Close()

	items := []VaultItem{}
	for rows.Next() {
		var (
			it      VaultItem
			created int64
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.Title, &it.Content, &it.Source, &created); err != nil {
			return nil, fmt.Errorf("scan vault item: %w", err)
		}
		it.CreatedAt = fromMillis(created)
		items = append(items, it)
	}
	return items, rows.Err()
}
