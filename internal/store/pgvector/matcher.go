// Package pgvector runs asset similarity search against a Postgres
// database with the pgvector extension and a match_assets function.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenos/haven/internal/store"
)

// undefinedFunction is the SQLSTATE Postgres returns when match_assets has
// not been installed.
const undefinedFunction = "42883"

const matchQuery = `SELECT id, name, kind, url, similarity
	FROM match_assets($1::vector, $2, $3, $4)`

// querier is the subset of pgxpool.Pool the matcher needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Matcher struct {
	db querier
}

// Connect opens a pool against dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*Matcher, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Matcher{db: pool}, pool.Close, nil
}

// MatchAssets calls match_assets and returns hits ordered by the function.
func (m *Matcher) MatchAssets(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]store.AssetMatch, error) {
	rows, err := m.db.Query(ctx, matchQuery, vectorLiteral(query), threshold, count, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	results := []store.AssetMatch{}
	for rows.Next() {
		var r store.AssetMatch
		var kind string
		if err := rows.Scan(&r.ID, &r.Name, &kind, &r.URL, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		r.Kind = store.AssetKind(kind)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return results, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedFunction {
		return fmt.Errorf("%w: %s", store.ErrSimilarityUnavailable, pgErr.Message)
	}
	return fmt.Errorf("match_assets: %w", err)
}

// vectorLiteral renders v in pgvector's text input format, e.g. [1,0.5,-2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
