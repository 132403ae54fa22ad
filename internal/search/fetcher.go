package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/verifact/internal/extract"
	"github.com/ppiankov/verifact/internal/retry"
	"github.com/ppiankov/verifact/internal/util"
	"github.com/ppiankov/verifact/internal/worker"
)

// ErrDisallowed is returned for pages robots.txt forbids
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ErrHostBusy is returned when a host has used up its fetch budget
var ErrHostBusy = errors.New("host fetch budget exhausted")

// Page is a fetched document reduced to its visible text
type Page struct {
	URL         string
	FinalURL    string
	Title       string
	Text        string
	StatusCode  int
	ContentType string
}

// Fetcher fetches pages that evidence passages are extracted from
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker // nil skips the robots.txt check
	policy     retry.Policy
	hosts      *worker.Limiter // nil fetches without per-host pacing
	paced      sync.Map        // hosts whose crawl delay was applied
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithRobots enables the robots.txt check
func WithRobots(r *util.RobotsChecker) FetcherOption {
	return func(f *Fetcher) { f.robots = r }
}

// WithHostLimiter paces fetches per host. A host over budget is skipped
// rather than waited on, so the caller falls back to the search snippet.
func WithHostLimiter(l *worker.Limiter) FetcherOption {
	return func(f *Fetcher) { f.hosts = l }
}

// WithFetchPolicy sets the retry policy used by FetchWithRetry
func WithFetchPolicy(p retry.Policy) FetcherOption {
	return func(f *Fetcher) { f.policy = p }
}

// NewFetcher creates a new Fetcher. Redirect chains longer than three hops
// are refused.
func NewFetcher(httpClient *http.Client, userAgent string, maxBytes int64, opts ...FetcherOption) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := *httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}

	policy := retry.DefaultPolicy()
	policy.BaseDelay = 500 * time.Millisecond
	f := &Fetcher{
		httpClient: &client,
		userAgent:  userAgent,
		maxBytes:   maxBytes,
		policy:     policy,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves one page. Robots denials, exhausted host budgets and
// client errors are permanent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	host := hostKey(rawURL)

	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if !allowed {
			return nil, retry.Permanent(fmt.Errorf("%s: %w", rawURL, ErrDisallowed))
		}
		if f.hosts != nil && crawlDelay > 0 {
			if _, seen := f.paced.LoadOrStore(host, struct{}{}); !seen {
				f.hosts.SetRate(host, 1/crawlDelay.Seconds(), 1)
			}
		}
	}

	if f.hosts != nil && !f.hosts.Allow(host) {
		return nil, retry.Permanent(fmt.Errorf("%s: %w", host, ErrHostBusy))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(&StatusError{URL: rawURL, StatusCode: resp.StatusCode})
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isTextual(contentType) {
		return nil, retry.Permanent(fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
	}

	raw := string(body)
	if strings.Contains(contentType, "html") || extract.LooksLikeHTML(raw) {
		page.Title = extract.PageTitle(raw)
		text, err := extract.VisibleText(raw)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("parse html: %w", err))
		}
		page.Text = text
	} else {
		page.Text = raw
	}

	return page, nil
}

// FetchWithRetry retries transient fetch failures
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Page, error) {
	return retry.Do(ctx, f.policy, func(ctx context.Context, _ int) (*Page, error) {
		return f.Fetch(ctx, rawURL)
	})
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

func hostKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return strings.ToLower(parsed.Host)
}
