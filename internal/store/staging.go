package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// SweepCutoffs bounds the lifecycle sweep. Items created before Archive
// are archived; items created in [Archive, Aging) are aging.
type SweepCutoffs struct {
	Aging   time.Time
	Archive time.Time
}

// SweepResult counts rows changed by one sweep.
type SweepResult struct {
	Aged     int64 `json:"aged"`
	Archived int64 `json:"archived"`
}

func (s *Store) CreateStagingItem(ctx context.Context, it StagingItem) (StagingItem, error) {
	if it.UserID == "" {
		return StagingItem{}, havenerr.Invalid("staging item needs userId")
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	it.CreatedAt = it.CreatedAt.UTC().Truncate(time.Millisecond)
	if it.Status == "" {
		it.Status = StagingActive
	}

	var category sql.NullString
	if it.Category != nil {
		category = sql.NullString{String: *it.Category, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO staging_items (id, user_id, title, content, category, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.UserID, it.Title, it.Content, category, it.Status, toMillis(it.CreatedAt))
	if err != nil {
		return StagingItem{}, fmt.Errorf("insert staging item: %w", err)
	}
	return it, nil
}

// ListStagingItems returns a user's active set (active and aging items),
// newest first.
func (s *Store) ListStagingItems(ctx context.Context, userID string) ([]StagingItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, content, category, status, created_at
		FROM staging_items WHERE user_id = ? AND status != ? ORDER BY created_at DESC`, userID, StagingArchived)
	if err != nil {
		return nil, fmt.Errorf("list staging items: %w", err)
	}
	defer rows.Close()

	items := []StagingItem{}
	for rows.Next() {
		var (
			it       StagingItem
			category sql.NullString
			created  int64
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.Title, &it.Content, &category, &it.Status, &created); err != nil {
			return nil, fmt.Errorf("scan staging item: %w", err)
		}
		if category.Valid {
			c := category.String
			it.Category = &c
		}
		it.CreatedAt = fromMillis(created)
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountArchived returns how many rows sit in staging_archive.
func (s *Store) CountArchived(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staging_archive`).Scan(&n)
	return n, err
}

// SweepStaging ages and archives uncategorized staging items in one
// transaction. Every statement filters on current state so a re-run
// changes nothing.
func (s *Store) SweepStaging(ctx context.Context, c SweepCutoffs) (SweepResult, error) {
	if !c.Archive.Before(c.Aging) {
		return SweepResult{}, havenerr.Invalid("archive cutoff must be older than aging cutoff")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SweepResult{}, fmt.Errorf("begin sweep: %w", err)
	}
	defer tx.Rollback()

	const uncategorized = `(category IS NULL OR category = '')`
	archiveBefore := toMillis(c.Archive)
	agingBefore := toMillis(c.Aging)

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO staging_archive
		(id, user_id, title, content, category, created_at, archived_at)
		SELECT id, user_id, title, content, category, created_at, ?
		FROM staging_items
		WHERE status != 'archived' AND `+uncategorized+` AND created_at < ?`,
		toMillis(s.now()), archiveBefore); err != nil {
		return SweepResult{}, fmt.Errorf("copy to archive: %w", err)
	}

	var res SweepResult
	archived, err := tx.ExecContext(ctx, `UPDATE staging_items SET status = 'archived'
		WHERE status != 'archived' AND `+uncategorized+` AND created_at < ?`, archiveBefore)
	if err != nil {
		return SweepResult{}, fmt.Errorf("archive staging items: %w", err)
	}
	res.Archived, _ = archived.RowsAffected()

	aged, err := tx.ExecContext(ctx, `UPDATE staging_items SET status = 'aging'
		WHERE status = 'active' AND `+uncategorized+` AND created_at >= ? AND created_at < ?`,
		archiveBefore, agingBefore)
	if err != nil {
		return SweepResult{}, fmt.Errorf("age staging items: %w", err)
	}
	res.Aged, _ = aged.RowsAffected()

	if err := tx.Commit(); err != nil {
		return SweepResult{}, fmt.Errorf("commit sweep: %w", err)
	}
	return res, nil
}
