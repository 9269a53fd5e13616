package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veridex/veridex/internal/budget"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/model"
)

type fakeExtractor struct {
	calls int32
	resp  extractResponse
	err   error
	usage gateway.Usage
}

func (f *fakeExtractor) Name() string { return "fake-extractor" }

func (f *fakeExtractor) CompleteJSON(_ context.Context, _ gateway.Request, out any) (gateway.Usage, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return f.usage, f.err
	}
	raw, err := json.Marshal(f.resp)
	if err != nil {
		return f.usage, err
	}
	return f.usage, json.Unmarshal(raw, out)
}

const articleHTML = `<html><head><title>Study Results</title></head><body>
<article><h1>Study Results</h1>
<p>A randomized trial of 4,000 participants found a 31 percent reduction in
hospitalizations over twelve months. The effect held across all age groups
studied and was published after peer review.</p>
<p>Critics note the trial excluded participants with prior conditions, which
limits how far the finding generalizes.</p></article></body></html>`

func testArena(t *testing.T) (*model.Arena, *model.Frame) {
	t.Helper()
	arena := model.NewArena()
	frame := &model.Frame{ID: "frame-001", Label: "Trial efficacy", AssessedStatement: "The treatment reduces hospitalizations."}
	arena.Frames[frame.ID] = frame
	return arena, frame
}

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testExtractionConfig() model.ExtractionConfig {
	return model.ExtractionConfig{Concurrency: 3, FailureThreshold: 0.5, MaxBackoff: time.Second}
}

func testHTTPConfig() model.HTTPConfig {
	return model.HTTPConfig{UserAgent: "veridex-test", RatePerHost: 100, RateBurst: 10}
}

func TestPoolExtractBuildsEvidence(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	})

	client := &fakeExtractor{
		resp: extractResponse{Evidence: []extractedFact{
			{Statement: "Hospitalizations fell 31 percent in the trial.", Stance: "supports", Methodology: "randomized trial", PublishedAt: "2026-02-10"},
			{Statement: "The trial excluded participants with prior conditions.", Stance: "contradicts", Methodology: "randomized trial"},
		}},
		usage: gateway.Usage{TotalTokens: 900},
	}
	tracker := budget.NewTracker(model.BudgetConfig{MaxTotalTokens: 100_000, EnforceHard: true})
	pool := NewPool(NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil), client, tracker, testExtractionConfig())

	arena, frame := testArena(t)
	items, skipped, warnings := pool.Extract(context.Background(), arena, frame, []string{srv.URL + "/article"})

	if len(skipped) != 0 {
		t.Fatalf("skipped = %+v, want none", skipped)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %+v, want none", warnings)
	}
	if len(items) != 2 {
		t.Fatalf("got %d evidence items, want 2", len(items))
	}

	for _, item := range items {
		if item.FrameID != frame.ID {
			t.Errorf("item %s frame = %q, want %q", item.ID, item.FrameID, frame.ID)
		}
		if _, ok := arena.Scopes[item.ScopeID]; !ok {
			t.Errorf("item %s references scope %q not registered in arena", item.ID, item.ScopeID)
		}
		if item.Domain == "" {
			t.Errorf("item %s has empty domain", item.ID)
		}
	}
	if items[0].Stance != model.StanceSupports || items[1].Stance != model.StanceContradicts {
		t.Errorf("stances = %s, %s", items[0].Stance, items[1].Stance)
	}
	if items[0].PublishedAt == nil || !items[0].PublishedAt.Equal(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published at = %v, want 2026-02-10", items[0].PublishedAt)
	}

	// Both facts share methodology and jurisdiction, so one scope.
	if items[0].ScopeID != items[1].ScopeID {
		t.Errorf("scopes differ for same methodology: %q vs %q", items[0].ScopeID, items[1].ScopeID)
	}
	if len(arena.Scopes) != 1 {
		t.Errorf("arena has %d scopes, want 1", len(arena.Scopes))
	}

	if usage := tracker.Usage(); usage.TotalTokens != 900 {
		t.Errorf("committed tokens = %d, want 900", usage.TotalTokens)
	}
}

func TestPoolExtractSkipsFailedSources(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good" {
			_, _ = w.Write([]byte(articleHTML))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client := &fakeExtractor{
		resp:  extractResponse{Evidence: []extractedFact{{Statement: "A fact.", Stance: "supports"}}},
		usage: gateway.Usage{TotalTokens: 100},
	}
	tracker := budget.NewTracker(model.BudgetConfig{MaxTotalTokens: 100_000, EnforceHard: true})
	pool := NewPool(NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil), client, tracker, testExtractionConfig())

	arena, frame := testArena(t)
	urls := []string{srv.URL + "/bad-1", srv.URL + "/bad-2", srv.URL + "/good"}
	items, skipped, warnings := pool.Extract(context.Background(), arena, frame, urls)

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 from the healthy source", len(items))
	}
	if len(skipped) != 2 {
		t.Fatalf("got %d skipped, want 2: %+v", len(skipped), skipped)
	}
	for _, s := range skipped {
		if s.FrameID != frame.ID || s.Reason == "" {
			t.Errorf("skipped source missing attribution: %+v", s)
		}
	}

	// 2 of 3 failed, above the 0.5 threshold.
	if len(warnings) != 1 || warnings[0].Type != model.WarnFetchDegradation {
		t.Fatalf("warnings = %+v, want one source_fetch_degradation", warnings)
	}

	// Failed units refund their reservation; only the successful call bills.
	if usage := tracker.Usage(); usage.TotalTokens != 100 {
		t.Errorf("committed tokens = %d, want 100", usage.TotalTokens)
	}
}

func TestPoolExtractBelowFailureThresholdNoWarning(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(articleHTML))
	})

	client := &fakeExtractor{
		resp:  extractResponse{Evidence: []extractedFact{{Statement: "A fact.", Stance: "supports"}}},
		usage: gateway.Usage{TotalTokens: 100},
	}
	tracker := budget.NewTracker(model.BudgetConfig{MaxTotalTokens: 100_000, EnforceHard: true})
	pool := NewPool(NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil), client, tracker, testExtractionConfig())

	arena, frame := testArena(t)
	urls := []string{srv.URL + "/bad", srv.URL + "/good-1", srv.URL + "/good-2"}
	_, skipped, warnings := pool.Extract(context.Background(), arena, frame, urls)

	if len(skipped) != 1 {
		t.Fatalf("got %d skipped, want 1", len(skipped))
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %+v, want none at 1/3 failure ratio", warnings)
	}
}

func TestPoolExtractBudgetDenialStopsWork(t *testing.T) {
	var fetches int32
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte(articleHTML))
	})

	client := &fakeExtractor{usage: gateway.Usage{TotalTokens: 100}}
	// Token cap below a single reservation: every reserve is denied.
	tracker := budget.NewTracker(model.BudgetConfig{MaxTotalTokens: 100, EnforceHard: true})
	pool := NewPool(NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil), client, tracker, testExtractionConfig())

	arena, frame := testArena(t)
	urls := []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}
	items, skipped, _ := pool.Extract(context.Background(), arena, frame, urls)

	if len(items) != 0 {
		t.Fatalf("got %d items, want 0 under exhausted budget", len(items))
	}
	if len(skipped) != len(urls) {
		t.Fatalf("got %d skipped, want %d", len(skipped), len(urls))
	}
	if n := atomic.LoadInt32(&fetches); n != 0 {
		t.Errorf("made %d fetches after budget denial, want 0", n)
	}
	if n := atomic.LoadInt32(&client.calls); n != 0 {
		t.Errorf("made %d model calls after budget denial, want 0", n)
	}
}

func TestPoolExtractThrottledModelPenalizesFrame(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	})

	client := &fakeExtractor{err: gateway.ErrThrottled, usage: gateway.Usage{TotalTokens: 50}}
	tracker := budget.NewTracker(model.BudgetConfig{MaxTotalTokens: 100_000, EnforceHard: true})
	pool := NewPool(NewFetcher(testHTTPConfig(), model.CacheConfig{}, nil), client, tracker, testExtractionConfig())

	arena, frame := testArena(t)
	items, skipped, _ := pool.Extract(context.Background(), arena, frame, []string{srv.URL + "/a"})

	if len(items) != 0 || len(skipped) != 1 {
		t.Fatalf("items=%d skipped=%d, want 0 and 1", len(items), len(skipped))
	}
	// The throttled call still billed the tokens the gateway reported.
	if usage := tracker.Usage(); usage.TotalTokens != 50 {
		t.Errorf("committed tokens = %d, want 50", usage.TotalTokens)
	}
}

func TestFrameThrottleBackoffGrowth(t *testing.T) {
	sem := semaphore.NewWeighted(3)
	throttle := &frameThrottle{maxHold: 2}

	throttle.penalize(sem, 4*time.Second)
	if throttle.delay != time.Second {
		t.Fatalf("delay after first penalty = %v, want 1s", throttle.delay)
	}
	throttle.penalize(sem, 4*time.Second)
	throttle.penalize(sem, 4*time.Second)
	throttle.penalize(sem, 4*time.Second)
	if throttle.delay != 4*time.Second {
		t.Errorf("delay = %v, want capped at 4s", throttle.delay)
	}
	if throttle.shrunk != 2 {
		t.Errorf("shrunk = %d, want capped at maxHold 2", throttle.shrunk)
	}
	// Two permits held: only one remains for dispatch.
	if !sem.TryAcquire(1) {
		t.Fatal("expected one free permit")
	}
	if sem.TryAcquire(1) {
		t.Error("expected no further free permits")
	}
}

func TestFrameThrottleWaitHonorsCancel(t *testing.T) {
	throttle := &frameThrottle{delay: time.Minute, maxHold: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := throttle.wait(ctx); err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
}
