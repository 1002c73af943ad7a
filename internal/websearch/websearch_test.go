package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

func TestSearch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a.example","content":"alpha","score":0.9},
			{"title":"B","url":"https://b.example","content":"beta"},
			{"title":"C","url":"https://c.example","content":"gamma"}
		]}`))
	}))
	defer srv.Close()

	c := New("key-123", srv.URL, nil)
	results, err := c.Search(context.Background(), "remote work trends", 2)
	require.NoError(t, err)

	assert.Equal(t, "key-123", got.APIKey)
	assert.Equal(t, "remote work trends", got.Query)
	assert.Equal(t, 2, got.MaxResults)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Title)

	assert.Equal(t, "[1] A (https://a.example)\nalpha\n[2] B (https://b.example)\nbeta", FormatSources(results))
}

func TestSearchErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New("", "", nil).Search(ctx, "q", 0)
	assert.Equal(t, 503, havenerr.StatusFor(err))

	_, err = New("k", "", nil).Search(ctx, " ", 0)
	assert.True(t, havenerr.IsInvalidInput(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err = New("k", srv.URL, nil).Search(ctx, "q", 0)
	assert.ErrorIs(t, err, havenerr.ErrUpstream)
}
