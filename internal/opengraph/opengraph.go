// Package opengraph fetches link previews from OpenGraph meta tags.
package opengraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	userAgent      = "HavenBot/1.0 (+link preview)"
)

// Preview is the link card shown on a link node.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	SiteName    string `json:"siteName"`
	Fallback    bool   `json:"fallback,omitempty"`
}

type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "opengraph")
	return f
}

// Fetch returns a preview for rawURL. Only an unusable URL is an error;
// fetch and parse failures produce a fallback preview titled with the host.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Preview{}, havenerr.Invalid("url must be an absolute http(s) URL")
	}

	p, err := f.fetch(ctx, u)
	if err != nil {
		f.logger.WarnContext(ctx, "link preview failed, using fallback",
			"url", u.String(),
			"error", err)
		return Preview{URL: u.String(), Title: u.Hostname(), Fallback: true}, nil
	}
	return p, nil
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Preview{}, fmt.Errorf("%w: status %d", havenerr.ErrUpstream, resp.StatusCode)
	}

	p, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Preview{}, err
	}

	// resp.Request.URL is the final URL after redirects.
	base := resp.Request.URL
	p.URL = base.String()
	p.Image = resolve(base, p.Image)
	if p.Title == "" {
		p.Title = base.Hostname()
	}
	if p.SiteName == "" {
		p.SiteName = base.Hostname()
	}
	return p, nil
}

// Parse extracts OpenGraph fields from an HTML document, falling back to
// <title> and meta description. Parsing stops at </head>.
func Parse(r io.Reader) (Preview, error) {
	var (
		p       Preview
		title   string
		desc    string
		inTitle bool
	)
	tokenizer := html.NewTokenizer(r)

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return Preview{}, err
			}
			return finish(p, title, desc), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				applyMeta(&p, &desc, tok.Attr)
			case atom.Body:
				return finish(p, title, desc), nil
			}

		case html.TextToken:
			if inTitle && title == "" {
				title = strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.EndTagToken:
			tok := tokenizer.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = false
			case atom.Head:
				return finish(p, title, desc), nil
			}
		}
	}
}

func applyMeta(p *Preview, desc *string, attrs []html.Attribute) {
	var key, content string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" || strings.HasPrefix(strings.ToLower(a.Val), "og:") {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	if content == "" {
		return
	}

	set := func(dst *string) {
		if *dst == "" {
			*dst = content
		}
	}
	switch key {
	case "og:title":
		set(&p.Title)
	case "og:description":
		set(&p.Description)
	case "og:image", "og:image:url":
		set(&p.Image)
	case "og:site_name":
		set(&p.SiteName)
	case "description":
		set(desc)
	}
}

func finish(p Preview, title, desc string) Preview {
	if p.Title == "" {
		p.Title = title
	}
	if p.Description == "" {
		p.Description = desc
	}
	return p
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
