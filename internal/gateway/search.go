package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/util"
)

// HTTPSearchClient queries a JSON search endpoint (SearxNG-compatible:
// GET {base}/search?q=...&format=json). The endpoint is part of the
// resolved config; the engine never hardcodes a search provider.
type HTTPSearchClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

// NewHTTPSearchClient builds the search client from config.
func NewHTTPSearchClient(cfg model.SearchConfig, httpCfg model.HTTPConfig) (*HTTPSearchClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}

	return &HTTPSearchClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
		},
	}, nil
}

type searchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// Search runs one query. A 429 response is classified as ErrThrottled so
// the caller's backoff applies.
func (c *HTTPSearchClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: search endpoint returned 429", ErrThrottled)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4_000_000))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]SearchHit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		hits = append(hits, SearchHit{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			PublishedAt: r.PublishedDate,
		})
		if len(hits) >= c.maxResults {
			break
		}
	}

	return hits, nil
}
