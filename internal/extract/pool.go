package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/veridex/veridex/internal/budget"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

// reservedTokensPerExtraction is the budget slice reserved before each
// unit of work; the commit settles to actual usage.
const reservedTokensPerExtraction = 4000

const extractSystem = `You extract verifiable facts from an article that bear on one
assessed statement. For each fact note whether it supports or contradicts the
statement and the methodology, jurisdiction, or standard the source operates
under, when stated. Reply with only a JSON object:
{"evidence":[{"statement":...,"stance":"supports"|"contradicts",
"methodology":...,"jurisdiction":...,"standard":...,"published_at":"YYYY-MM-DD" or ""}]}.
Omit facts that do not bear on the statement.`

type extractedFact struct {
	Statement    string `json:"statement"`
	Stance       string `json:"stance"`
	Methodology  string `json:"methodology"`
	Jurisdiction string `json:"jurisdiction"`
	Standard     string `json:"standard"`
	PublishedAt  string `json:"published_at"`
}

type extractResponse struct {
	Evidence []extractedFact `json:"evidence"`
}

type unitResult struct {
	url   string
	facts []extractedFact
	skip  string
}

// Pool is the evidence extraction worker set. Concurrency is bounded; a
// throttling signal shrinks in-flight work for the affected frame only
// and applies exponential backoff before the next unit starts.
type Pool struct {
	fetcher *Fetcher
	client  gateway.ModelClient
	tracker *budget.Tracker
	cfg     model.ExtractionConfig
	log     *slog.Logger
}

// NewPool creates the pool.
func NewPool(fetcher *Fetcher, client gateway.ModelClient, tracker *budget.Tracker, cfg model.ExtractionConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Pool{
		fetcher: fetcher,
		client:  client,
		tracker: tracker,
		cfg:     cfg,
		log:     logging.New("extract"),
	}
}

// frameThrottle is the per-frame backoff state. Penalties shrink the
// frame's effective concurrency by permanently holding semaphore permits
// for the rest of the call, and stretch the delay before each new unit.
type frameThrottle struct {
	mu      sync.Mutex
	delay   time.Duration
	shrunk  int
	maxHold int
}

func (t *frameThrottle) penalize(sem *semaphore.Weighted, max time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.delay == 0 {
		t.delay = time.Second
	} else if t.delay < max {
		t.delay *= 2
		if t.delay > max {
			t.delay = max
		}
	}

	if t.shrunk < t.maxHold && sem.TryAcquire(1) {
		t.shrunk++
	}
}

func (t *frameThrottle) wait(ctx context.Context) error {
	t.mu.Lock()
	delay := t.delay
	t.mu.Unlock()
	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Extract processes the candidate URLs for one frame. A single URL's
// failure is a skipped source, never a pool failure; the caller proceeds
// with whatever evidence landed. Budget is reserved before each unit and
// released when the unit produces nothing billable.
func (p *Pool) Extract(ctx context.Context, arena *model.Arena, frame *model.Frame, urls []string) ([]model.EvidenceItem, []model.SkippedSource, []model.Warning) {
	if len(urls) == 0 {
		return nil, nil, nil
	}

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	throttle := &frameThrottle{maxHold: p.cfg.Concurrency - 1}
	results := make([]unitResult, len(urls))
	var budgetStopped atomic.Bool

	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			results[idx] = p.runUnit(ctx, frame, u, sem, throttle, &budgetStopped)
		}(i, rawURL)
	}
	wg.Wait()

	return p.assemble(arena, frame, results)
}

func (p *Pool) runUnit(ctx context.Context, frame *model.Frame, rawURL string, sem *semaphore.Weighted, throttle *frameThrottle, budgetStopped *atomic.Bool) unitResult {
	out := unitResult{url: rawURL}

	if budgetStopped.Load() {
		out.skip = "budget exhausted before dispatch"
		return out
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		out.skip = "cancelled"
		return out
	}
	defer sem.Release(1)

	if err := throttle.wait(ctx); err != nil {
		out.skip = "cancelled"
		return out
	}

	// Reserve before dispatch, never after.
	res, err := p.tracker.Reserve(frame.ID, 0, reservedTokensPerExtraction)
	if err != nil {
		if _, denied := budget.IsDenied(err); denied {
			budgetStopped.Store(true)
		}
		out.skip = fmt.Sprintf("budget reservation denied: %v", err)
		return out
	}

	page, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		p.tracker.Release(res)
		if errors.Is(err, ErrThrottledFetch) {
			throttle.penalize(sem, p.cfg.MaxBackoff)
			out.skip = "source throttled fetch"
			return out
		}
		out.skip = fmt.Sprintf("fetch failed: %v", err)
		return out
	}

	title, body, err := ReadArticle(page)
	if err != nil {
		p.tracker.Release(res)
		out.skip = fmt.Sprintf("unparseable content: %v", err)
		return out
	}

	facts, usage, err := p.extractFacts(ctx, frame, title, body, page.FinalURL)
	if err != nil {
		if errors.Is(err, gateway.ErrThrottled) {
			throttle.penalize(sem, p.cfg.MaxBackoff)
		}
		// A timed-out or failed call is not refunded beyond unused
		// tokens; whatever the gateway reported consumed stays charged.
		if usage.TotalTokens > 0 {
			p.tracker.Commit(res, usage.TotalTokens)
		} else {
			p.tracker.Release(res)
		}
		out.skip = fmt.Sprintf("extraction failed: %v", err)
		return out
	}

	p.tracker.Commit(res, usage.TotalTokens)
	out.facts = facts
	return out
}

func (p *Pool) extractFacts(ctx context.Context, frame *model.Frame, title, body, pageURL string) ([]extractedFact, gateway.Usage, error) {
	prompt := fmt.Sprintf("Assessed statement: %s\n\nArticle (%s)", frame.AssessedStatement, pageURL)
	if title != "" {
		prompt += "\nTitle: " + title
	}
	prompt += "\n\n" + body

	var resp extractResponse
	usage, err := p.client.CompleteJSON(ctx, gateway.Request{System: extractSystem, Prompt: prompt}, &resp)
	if err != nil {
		return nil, usage, err
	}
	return resp.Evidence, usage, nil
}

// assemble registers scopes and builds immutable evidence items. Runs
// single-threaded after the workers join, so arena mutation needs no
// lock.
func (p *Pool) assemble(arena *model.Arena, frame *model.Frame, results []unitResult) ([]model.EvidenceItem, []model.SkippedSource, []model.Warning) {
	var items []model.EvidenceItem
	var skipped []model.SkippedSource
	scopeIDs := make(map[string]string)

	now := time.Now().UTC()
	for _, r := range results {
		if r.skip != "" {
			skipped = append(skipped, model.SkippedSource{URL: r.url, FrameID: frame.ID, Reason: r.skip})
			continue
		}
		for _, fact := range r.facts {
			statement := strings.TrimSpace(fact.Statement)
			if statement == "" {
				continue
			}

			scopeKey := fact.Methodology + "|" + fact.Jurisdiction + "|" + fact.Standard
			scopeID, ok := scopeIDs[scopeKey]
			if !ok {
				scopeID = "scope-" + uuid.NewString()[:8]
				arena.Scopes[scopeID] = &model.EvidenceScope{
					ID:           scopeID,
					Methodology:  fact.Methodology,
					Jurisdiction: fact.Jurisdiction,
					Standard:     fact.Standard,
				}
				scopeIDs[scopeKey] = scopeID
			}

			stance := model.StanceSupports
			if strings.EqualFold(fact.Stance, string(model.StanceContradicts)) {
				stance = model.StanceContradicts
			}

			item := model.EvidenceItem{
				ID:          "ev-" + uuid.NewString()[:8],
				Statement:   statement,
				SourceURL:   r.url,
				Domain:      DomainOf(r.url),
				ScopeID:     scopeID,
				FrameID:     frame.ID,
				Stance:      stance,
				ExtractedAt: now,
			}
			if ts, err := time.Parse("2006-01-02", fact.PublishedAt); err == nil {
				item.PublishedAt = &ts
			}
			items = append(items, item)
		}
	}

	var warnings []model.Warning
	if len(results) > 0 {
		ratio := float64(len(skipped)) / float64(len(results))
		if ratio > p.cfg.FailureThreshold {
			warnings = append(warnings, model.Warning{
				Type:     model.WarnFetchDegradation,
				Severity: model.WarnWarning,
				FrameID:  frame.ID,
				Stage:    "extract",
				Message:  fmt.Sprintf("%d of %d fetch attempts failed", len(skipped), len(results)),
			})
			p.log.Warn("source fetch degradation", "frame", frame.ID, "skipped", len(skipped), "attempted", len(results))
		}
	}

	return items, skipped, warnings
}
