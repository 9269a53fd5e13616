package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/model"
)

func TestFetchReturnsPage(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	})

	f := NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil)
	page, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(page.HTML, "hello") {
		t.Errorf("page HTML = %q", page.HTML)
	}
	if page.URL != srv.URL+"/page" {
		t.Errorf("page URL = %q", page.URL)
	}
}

func TestFetchUsesPageCache(t *testing.T) {
	var hits int32
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("<html><body>cached body</body></html>"))
	})

	store := cache.NewMemoryCache(time.Hour, time.Hour)
	f := NewFetcher(testHTTPConfig(), model.CacheConfig{Enabled: true, PageTTL: time.Hour}, store)

	url := srv.URL + "/page"
	first, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if first.HTML != second.HTML {
		t.Errorf("cached page differs from original")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("origin hit %d times, want 1", n)
	}
}

func TestFetchHonorsRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil)
	if _, err := f.Fetch(context.Background(), srv.URL+"/private/doc"); err == nil {
		t.Fatal("expected error for robots-disallowed path")
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/public/doc"); err != nil {
		t.Fatalf("allowed path failed: %v", err)
	}
}

func TestFetchTooManyRequestsIsThrottled(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	f := NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/page")
	if !errors.Is(err, ErrThrottledFetch) {
		t.Fatalf("err = %v, want ErrThrottledFetch", err)
	}
}

func TestFetchTruncatesOversizedBody(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 5000)))
	})

	cfg := testHTTPConfig()
	cfg.MaxBodyBytes = 1024
	f := NewFetcher(cfg, model.CacheConfig{}, nil)
	page, err := f.Fetch(context.Background(), srv.URL+"/big")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(page.HTML) != 1024 {
		t.Errorf("body length = %d, want truncated to 1024", len(page.HTML))
	}
}

func TestDomainOf(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.org/a/b", "example.org"},
		{"http://news.example.org:8080/x", "news.example.org:8080"},
		{"not a url\x00", ""},
	}
	for _, tc := range cases {
		if got := DomainOf(tc.url); got != tc.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
