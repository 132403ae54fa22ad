// Package search gathers web evidence for claims: a search API client, a
// robots-aware page fetcher and the hunter that turns both into evidence.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ppiankov/verifact/internal/retry"
)

// DefaultSerperEndpoint is the Serper web search endpoint
const DefaultSerperEndpoint = "https://google.serper.dev/search"

// Result is one organic search hit
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// StatusError reports a non-2xx HTTP response
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// classifyStatus marks client errors other than 429 as permanent
func classifyStatus(err *StatusError) error {
	if err.StatusCode == http.StatusTooManyRequests || err.StatusCode >= 500 {
		return err
	}
	return retry.Permanent(err)
}

// SerperClient queries the Serper.dev search API
type SerperClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewSerperClient creates a Serper client. An empty endpoint selects the
// public API.
func NewSerperClient(httpClient *http.Client, apiKey, endpoint string) *SerperClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultSerperEndpoint
	}
	return &SerperClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
	GL    string `json:"gl,omitempty"`
	HL    string `json:"hl,omitempty"`
}

type serperResponse struct {
	Organic []Result `json:"organic"`
}

// Search returns up to limit organic results, 1 to 10
func (c *SerperClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, retry.Permanent(fmt.Errorf("serper: API key not set"))
	}
	limit = min(10, max(1, limit))

	body, err := json.Marshal(serperRequest{Query: query, Num: limit, GL: "us", HL: "en"})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(&StatusError{URL: c.endpoint, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))})
	}

	var decoded serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Organic))
	for _, r := range decoded.Organic {
		if r.Link == "" {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
