package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

type stubMatcher struct {
	err       error
	threshold float64
	count     int
}

func (m *stubMatcher) MatchAssets(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]store.AssetMatch, error) {
	m.threshold, m.count = threshold, count
	return nil, m.err
}

func TestSearchAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "haven.db"))
	require.NoError(t, err)
	defer db.Close()

	mock := agent.NewMockClient()
	for _, name := range []string{"office desk laptop", "mountain sunset"} {
		a, err := db.CreateAsset(ctx, store.Asset{UserID: "u1", Name: name})
		require.NoError(t, err)
		vec, err := mock.Embed(ctx, name)
		require.NoError(t, err)
		require.NoError(t, db.UpdateEmbedding(ctx, a.ID, vec))
	}

	resp, err := New(mock, db).Search(ctx, "u1", "office desk laptop")
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "office desk laptop", resp.Results[0].Name)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-6)
}

func TestSearchDefaults(t *testing.T) {
	m := &stubMatcher{}
	_, err := New(agent.NewMockClient(), m).Search(context.Background(), "u1", "q")
	require.NoError(t, err)
	assert.Equal(t, 0.1, m.threshold)
	assert.Equal(t, 20, m.count)
}

func TestSearchFallbackWhenSimilarityUnavailable(t *testing.T) {
	m := &stubMatcher{err: fmt.Errorf("%w: no match_assets", store.ErrSimilarityUnavailable)}

	resp, err := New(agent.NewMockClient(), m).Search(context.Background(), "u1", "anything")
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearchErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(agent.NewMockClient(), &stubMatcher{}).Search(ctx, "u1", "  ")
	assert.True(t, havenerr.IsInvalidInput(err))

	boom := errors.New("db down")
	_, err = New(agent.NewMockClient(), &stubMatcher{err: boom}).Search(ctx, "u1", "q")
	assert.ErrorIs(t, err, boom)

	noKey := agent.NewClient("")
	_, err = New(noKey, &stubMatcher{}).Search(ctx, "u1", "q")
	assert.Equal(t, 503, havenerr.StatusFor(err))
}
