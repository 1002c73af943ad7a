package opengraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const articleHTML = `<!doctype html>
<html><head>
<title>Plain title</title>
<meta property="og:title" content="Ten Desk Setups">
<meta property="og:description" content="Ideas for a calmer workspace">
<meta property="og:image" content="/img/cover.jpg">
<meta property="og:site_name" content="Desk Weekly">
<meta name="description" content="ignored when og:description exists">
</head><body><meta property="og:title" content="body meta is ignored"></body></html>`

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Preview
	}{
		{
			name: "open graph tags",
			html: articleHTML,
			want: Preview{
				Title:       "Ten Desk Setups",
				Description: "Ideas for a calmer workspace",
				Image:       "/img/cover.jpg",
				SiteName:    "Desk Weekly",
			},
		},
		{
			name: "falls back to title and description",
			html: `<html><head><title> Only Title </title><meta name="Description" content="Plain description"></head></html>`,
			want: Preview{Title: "Only Title", Description: "Plain description"},
		},
		{
			name: "empty document",
			html: ``,
			want: Preview{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(articleHTML))
		case "/moved":
			http.Redirect(w, r, "/article", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New()
	ctx := context.Background()

	p, err := f.Fetch(ctx, srv.URL+"/moved")
	require.NoError(t, err)
	assert.False(t, p.Fallback)
	assert.Equal(t, "Ten Desk Setups", p.Title)
	assert.Equal(t, srv.URL+"/article", p.URL)
	assert.Equal(t, srv.URL+"/img/cover.jpg", p.Image)

	p, err = f.Fetch(ctx, srv.URL+"/missing")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, "127.0.0.1", p.Title)
}

func TestFetchUnreachableHostFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p, err := New().Fetch(context.Background(), addr+"/gone")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, "127.0.0.1", p.Title)
}

func TestFetchRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url", "/relative"} {
		_, err := New().Fetch(context.Background(), raw)
		assert.True(t, havenerr.IsInvalidInput(err), raw)
	}
}
