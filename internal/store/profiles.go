package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var (
		p         Profile
		languages string
		updated   int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, name, role, industry, goals, writing_style, languages, updated_at
		FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Name, &p.Role, &p.Industry, &p.Goals, &p.WritingStyle, &languages, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, notFound("profile", userID)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(languages), &p.Languages); err != nil {
		return Profile{}, fmt.Errorf("decode languages for %s: %w", userID, err)
	}
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// UpsertProfile replaces the stored profile wholesale. Languages are
// de-duplicated, keeping first-seen order.
func (s *Store) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if p.UserID == "" {
		return Profile{}, havenerr.Invalid("profile needs userId")
	}

	seen := make(map[string]bool, len(p.Languages))
	langs := []string{}
	for _, l := range p.Languages {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		langs = append(langs, l)
	}
	p.Languages = langs

	encoded, err := json.Marshal(p.Languages)
	if err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err = s.db.ExecContext(ctx, `INSERT INTO user_profiles
		(user_id, name, role, industry, goals, writing_style, languages, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			industry = excluded.industry,
			goals = excluded.goals,
			writing_style = excluded.writing_style,
			languages = excluded.languages,
			updated_at = excluded.updated_at`,
		p.UserID, p.Name, p.Role, p.Industry, p.Goals, p.WritingStyle, string(encoded), toMillis(p.UpdatedAt))
	if err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}
