// Package jina provides a client for the Jina AI search API, used as the
// web-search collaborator: query in, ordered result URLs out. The client is
// single-shot; retry policy belongs to the caller, which is why throttling
// and server faults are reported as typed errors rather than retried here.
package jina

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the search operations used by the pipeline.
type Client interface {
	// Search performs a web search and returns up to count result URLs in
	// provider order.
	Search(ctx context.Context, query string, count int) ([]string, error)
}

// RateLimitError reports provider throttling (HTTP 429). Callers should back
// off and retry.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("jina: rate limited (status %d)", e.StatusCode)
}

// StatusError reports a non-success HTTP status that is not a rate limit.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jina: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is a throttling signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsRetryable reports whether err is worth retrying with backoff: throttling
// or a transient server-side status.
func IsRetryable(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// searchResponse is the parsed Jina Search API response.
type searchResponse struct {
	Code int            `json:"code"`
	Data []searchResult `json:"data"`
}

type searchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom search base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Jina AI search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, count int) ([]string, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create search request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// Jina returns 422 when no results exist for the query.
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}

	urls := make([]string, 0, len(result.Data))
	for _, r := range result.Data {
		if r.URL == "" {
			continue
		}
		urls = append(urls, r.URL)
		if count > 0 && len(urls) >= count {
			break
		}
	}
	return urls, nil
}
