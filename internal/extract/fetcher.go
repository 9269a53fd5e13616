// Package extract turns candidate URLs into evidence items: fetch under
// politeness constraints, reduce the page to readable text, and pull
// structured facts out through the gateway, all inside a
// bounded-concurrency pool that reserves budget before dispatch.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/util"
	"github.com/veridex/veridex/internal/worker"
)

// Page is one fetched document.
type Page struct {
	URL      string
	FinalURL string
	HTML     string
}

// Fetcher retrieves pages with robots.txt compliance, per-domain rate
// limiting, and a read-through page cache.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	store      cache.Cache
	pageTTL    time.Duration
}

// NewFetcher builds a fetcher from the resolved config. store may be nil
// to disable page caching.
func NewFetcher(httpCfg model.HTTPConfig, cacheCfg model.CacheConfig, store cache.Cache) *Fetcher {
	timeout := httpCfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBytes := httpCfg.MaxBodyBytes
	if maxBytes == 0 {
		maxBytes = 2_000_000
	}
	ratePerHost := httpCfg.RatePerHost
	if ratePerHost == 0 {
		ratePerHost = 1.0
	}

	if !cacheCfg.Enabled {
		store = nil
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: httpCfg.UserAgent,
		maxBytes:  maxBytes,
		robots:    util.NewRobotsChecker(httpCfg.UserAgent, timeout),
		limiter:   worker.NewLimiter(ratePerHost, httpCfg.RateBurst),
		store:     store,
		pageTTL:   cacheCfg.PageTTL,
	}
}

// ErrThrottledFetch marks an HTTP 429 from a source host.
var ErrThrottledFetch = fmt.Errorf("fetch throttled")

// Fetch retrieves one page, honoring robots.txt and crawl delays.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.store != nil {
		if html, found := f.store.Get(cache.PageKey(rawURL)); found {
			return &Page{URL: rawURL, FinalURL: rawURL, HTML: string(html)}, nil
		}
	}

	allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("robots check: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("robots.txt disallows %s", rawURL)
	}

	if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrThrottledFetch, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	page := &Page{
		URL:      rawURL,
		FinalURL: resp.Request.URL.String(),
		HTML:     string(body),
	}

	if f.store != nil {
		_ = f.store.Set(cache.PageKey(rawURL), body, f.pageTTL)
	}

	return page, nil
}

// DomainOf extracts the host of a URL, empty on parse failure.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
