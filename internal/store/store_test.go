package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "haven.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haven.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateAsset(ctx, Asset{UserID: "u1", Name: "a.png"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	assets, err := s.ListAssets(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestAssetCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "desk.png", Kind: KindImage, URL: "https://cdn/desk.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusDraft, a.Status)
	assert.Equal(t, testNow, a.CreatedAt)

	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = s.CreateAsset(ctx, Asset{UserID: "u1"})
	assert.True(t, havenerr.IsInvalidInput(err))

	require.NoError(t, s.DeleteAsset(ctx, a.ID))
	_, err = s.GetAsset(ctx, a.ID)
	assert.True(t, errors.Is(err, havenerr.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteAsset(ctx, a.ID), havenerr.ErrNotFound))
}

func TestListAssetsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"old", "mid", "new"} {
		_, err := s.CreateAsset(ctx, Asset{UserID: "u1", Name: name, CreatedAt: daysAgo(3 - i)})
		require.NoError(t, err)
	}
	_, err := s.CreateAsset(ctx, Asset{UserID: "u2", Name: "other"})
	require.NoError(t, err)

	assets, err := s.ListAssets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "new", assets[0].Name)
	assert.Equal(t, "old", assets[2].Name)
}

func TestEmbeddingsAndMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	near, _ := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "near"})
	far, _ := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "far"})
	odd, _ := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "odd-dims"})
	_, _ = s.CreateAsset(ctx, Asset{UserID: "u1", Name: "pending"})
	other, _ := s.CreateAsset(ctx, Asset{UserID: "u2", Name: "not mine"})

	missing, err := s.AssetsMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 5)

	require.NoError(t, s.UpdateEmbedding(ctx, near.ID, []float32{1, 0.1, 0}))
	require.NoError(t, s.UpdateEmbedding(ctx, far.ID, []float32{0, 1, 0}))
	require.NoError(t, s.UpdateEmbedding(ctx, odd.ID, []float32{1, 0}))
	require.NoError(t, s.UpdateEmbedding(ctx, other.ID, []float32{1, 0, 0}))
	assert.True(t, havenerr.IsInvalidInput(s.UpdateEmbedding(ctx, near.ID, nil)))

	got, err := s.GetAsset(ctx, near.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.1, 0}, got.Embedding)

	missing, err = s.AssetsMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "pending", missing[0].Name)

	matches, err := s.MatchAssets(ctx, "u1", []float32{1, 0, 0}, 0.1, 20)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near.ID, matches[0].ID)
	assert.InDelta(t, 0.995, matches[0].Similarity, 0.001)

	matches, err = s.MatchAssets(ctx, "u1", []float32{0.5, 0.5, 0}, 0.1, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFailedEmbeddingsSortLast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, _ := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "old"})
	newer, _ := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "newer"})

	require.NoError(t, s.RecordEmbeddingFailure(ctx, old.ID))
	assert.ErrorIs(t, s.RecordEmbeddingFailure(ctx, "missing"), havenerr.ErrNotFound)

	missing, err := s.AssetsMissingEmbedding(ctx, 1)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, newer.ID, missing[0].ID)

	missing, err = s.AssetsMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, old.ID, missing[1].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, []float32{1.5, -2}, bytesToEmbedding(embeddingToBytes([]float32{1.5, -2})))
}

func TestSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAsset(ctx, Asset{UserID: "u1", Name: "post.md"})
	require.NoError(t, err)

	at := testNow.Add(48 * time.Hour)
	a, err = s.SetSchedule(ctx, "u1", a.ID, &at)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)

	inRange, err := s.ScheduledAssets(ctx, "u1", testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, at, *inRange[0].ScheduledAt)

	outOfRange, err := s.ScheduledAssets(ctx, "u1", testNow, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, outOfRange)

	a, err = s.SetSchedule(ctx, "u1", a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, a.Status)
	assert.Nil(t, a.ScheduledAt)

	_, err = s.SetSchedule(ctx, "someone-else", a.ID, &at)
	assert.True(t, errors.Is(err, havenerr.ErrNotFound))

	_, err = s.SetSchedule(ctx, "u1", a.ID, &at)
	require.NoError(t, err)
	require.NoError(t, s.MarkPublished(ctx, a.ID))
	_, err = s.SetSchedule(ctx, "u1", a.ID, nil)
	assert.True(t, havenerr.IsInvalidInput(err))
	assert.True(t, havenerr.IsInvalidInput(s.MarkPublished(ctx, a.ID)))
}

func TestProfileUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "u1")
	assert.True(t, errors.Is(err, havenerr.ErrNotFound))

	_, err = s.UpsertProfile(ctx, Profile{UserID: "u1", Name: "Sam", Role: "creator", Languages: []string{"en", "es", "en"}})
	require.NoError(t, err)

	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, []string{"en", "es"}, p.Languages)

	_, err = s.UpsertProfile(ctx, Profile{UserID: "u1", Name: "Sam R"})
	require.NoError(t, err)
	p, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam R", p.Name)
	assert.Empty(t, p.Role)
	assert.Empty(t, p.Languages)

	_, err = s.UpsertProfile(ctx, Profile{})
	assert.True(t, havenerr.IsInvalidInput(err))
}

func TestSweepStaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	design := "design"

	items := map[string]StagingItem{
		"stale":       {ID: "stale", UserID: "u1", Title: "31 days", CreatedAt: daysAgo(31)},
		"aging":       {ID: "aging", UserID: "u1", Title: "10 days", CreatedAt: daysAgo(10)},
		"fresh":       {ID: "fresh", UserID: "u1", Title: "2 days", CreatedAt: daysAgo(2)},
		"categorized": {ID: "categorized", UserID: "u1", Title: "40 days", Category: &design, CreatedAt: daysAgo(40)},
	}
	for _, it := range items {
		_, err := s.CreateStagingItem(ctx, it)
		require.NoError(t, err)
	}

	cutoffs := SweepCutoffs{Aging: daysAgo(7), Archive: daysAgo(30)}
	res, err := s.SweepStaging(ctx, cutoffs)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Aged: 1, Archived: 1}, res)

	active, err := s.ListStagingItems(ctx, "u1")
	require.NoError(t, err)
	status := map[string]StagingStatus{}
	for _, it := range active {
		status[it.ID] = it.Status
	}
	assert.Equal(t, map[string]StagingStatus{
		"aging":       StagingAging,
		"fresh":       StagingActive,
		"categorized": StagingActive,
	}, status)

	n, err := s.CountArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err = s.SweepStaging(ctx, cutoffs)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	n, err = s.CountArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.SweepStaging(ctx, SweepCutoffs{Aging: daysAgo(30), Archive: daysAgo(7)})
	assert.True(t, havenerr.IsInvalidInput(err))
}

func TestSearchVault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []VaultItem{
		{UserID: "u1", Title: "Pricing Notes", Content: "tiered plans", CreatedAt: daysAgo(3)},
		{UserID: "u1", Title: "Launch", Content: "PRICING page copy", CreatedAt: daysAgo(1)},
		{UserID: "u1", Title: "100% organic", Content: "growth", CreatedAt: daysAgo(2)},
		{UserID: "u2", Title: "pricing", Content: "other user"},
	}
	for _, it := range seed {
		_, err := s.CreateVaultItem(ctx, it)
		require.NoError(t, err)
	}

	got, err := s.SearchVault(ctx, "u1", "pricing")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Launch", got[0].Title)
	assert.Equal(t, "Pricing Notes", got[1].Title)

	got, err = s.SearchVault(ctx, "u1", "100%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% organic", got[0].Title)

	got, err = s.SearchVault(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = s.SearchVault(ctx, "", "x")
	assert.True(t, havenerr.IsInvalidInput(err))
}
