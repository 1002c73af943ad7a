package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const assetColumns = `id, user_id, name, kind, url, content, embedding, scheduled_at, status, created_at`

func scanAsset(sc interface{ Scan(...any) error }) (Asset, error) {
	var (
		a         Asset
		blob      []byte
		scheduled sql.NullInt64
		created   int64
	)
	if err := sc.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.URL, &a.Content, &blob, &scheduled, &a.Status, &created); err != nil {
		return Asset{}, err
	}
	a.Embedding = bytesToEmbedding(blob)
	a.ScheduledAt = timePtr(scheduled)
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// CreateAsset inserts an asset, filling in id, kind, status and createdAt
// when unset.
func (s *Store) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	if a.UserID == "" || a.Name == "" {
		return Asset{}, havenerr.Invalid("asset needs userId and name")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Kind == "" {
		a.Kind = KindDocument
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Millisecond)
	a.Status = StatusDraft
	if a.ScheduledAt != nil {
		a.Status = StatusScheduled
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Kind, a.URL, a.Content, embeddingToBytes(a.Embedding),
		nullMillis(a.ScheduledAt), a.Status, toMillis(a.CreatedAt))
	if err != nil {
		return Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, notFound("asset", id)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns a user's assets, newest first.
func (s *Store) ListAssets(ctx context.Context, userID string) ([]Asset, error) {
	return s.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("asset", id)
	}
	return nil
}

// AssetsMissingEmbedding returns up to limit assets with no embedding.
// Assets that failed fewer times come first, then oldest first.
func (s *Store) AssetsMissingEmbedding(ctx context.Context, limit int) ([]Asset, error) {
	return s.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE embedding IS NULL ORDER BY embed_failures ASC, created_at ASC LIMIT ?`, limit)
}

// RecordEmbeddingFailure counts a failed backfill attempt for an asset.
func (s *Store) RecordEmbeddingFailure(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assets SET embed_failures = embed_failures + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("record embedding failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("asset", id)
	}
	return nil
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return havenerr.Invalid("empty embedding for asset %s", id)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE assets SET embedding = ? WHERE id = ?`, embeddingToBytes(embedding), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("asset", id)
	}
	return nil
}

// MatchAssets ranks a user's embedded assets by cosine similarity to query.
// Assets whose embedding has a different dimensionality never match.
func (s *Store) MatchAssets(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]AssetMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, url, embedding FROM assets
		WHERE user_id = ? AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("match assets: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var (
			c    candidate
			blob []byte
		)
		if err := rows.Scan(&c.match.ID, &c.match.Name, &c.match.Kind, &c.match.URL, &blob); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		c.embedding = bytesToEmbedding(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankMatches(query, candidates, threshold, count), nil
}

// ScheduledAssets returns a user's assets with scheduledAt in [from, to),
// ordered by schedule time.
func (s *Store) ScheduledAssets(ctx context.Context, userID string, from, to time.Time) ([]Asset, error) {
	return s.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE user_id = ? AND scheduled_at IS NOT NULL AND scheduled_at >= ? AND scheduled_at < ?
		ORDER BY scheduled_at ASC`, userID, toMillis(from), toMillis(to))
}

// SetSchedule sets or clears an asset's publication time. Setting a time
// moves draft to scheduled; clearing it moves scheduled back to draft.
// Published assets are owned by the publisher and cannot be rescheduled.
func (s *Store) SetSchedule(ctx context.Context, userID, assetID string, at *time.Time) (Asset, error) {
	a, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return Asset{}, err
	}
	if a.UserID != userID {
		return Asset{}, notFound("asset", assetID)
	}
	if a.Status == StatusPublished {
		return Asset{}, havenerr.Invalid("asset %s is already published", assetID)
	}

	status := StatusDraft
	if at != nil {
		status = StatusScheduled
		t := at.UTC().Truncate(time.Millisecond)
		at = &t
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE assets SET scheduled_at = ?, status = ? WHERE id = ?`,
		nullMillis(at), status, assetID); err != nil {
		return Asset{}, fmt.Errorf("set schedule: %w", err)
	}
	a.ScheduledAt, a.Status = at, status
	return a, nil
}

// MarkPublished records that the external publisher has published an asset.
func (s *Store) MarkPublished(ctx context.Context, assetID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assets SET status = ? WHERE id = ? AND status = ?`,
		StatusPublished, assetID, StatusScheduled)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return havenerr.Invalid("asset %s is not scheduled", assetID)
	}
	return nil
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// likePattern builds a case-insensitive substring pattern with LIKE
// wildcards escaped.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
