package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veridex/veridex/internal/budget"
	"github.com/veridex/veridex/internal/extract"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

// iterationTokenEstimate is the budget slice reserved for one loop
// iteration's query generation. Extraction units reserve their own.
const iterationTokenEstimate = 1500

const maxQueriesPerIteration = 4

const querySystem = `You generate web search queries to verify one assessed statement.
Given the statement and the coverage gaps, produce focused queries that would
surface primary sources, and when a counter-evidence gap is listed, queries
phrased to find criticism or refutation. Reply with only a JSON object:
{"queries":["...", ...]}.`

// StopReason says why a frame's research loop ended.
type StopReason string

const (
	StopCovered   StopReason = "covered"
	StopBudget    StopReason = "budget_exhausted"
	StopNoLeads   StopReason = "no_new_leads"
	StopCancelled StopReason = "cancelled"
)

// Result is everything one frame's research produced.
type Result struct {
	Evidence   []model.EvidenceItem
	Skipped    []model.SkippedSource
	Warnings   []model.Warning
	Iterations int
	Reason     StopReason
	OpenGaps   []Gap
}

// SeenSet deduplicates candidate URLs across every frame of one job. A
// URL fetched for one frame is never re-fetched for another.
type SeenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{urls: make(map[string]struct{})}
}

// Add records the URL and reports whether it was new.
func (s *SeenSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Loop drives research for a single frame. Safe to run one Loop per
// frame concurrently; the tracker and seen set carry the shared state.
type Loop struct {
	client  gateway.ModelClient
	search  gateway.SearchClient
	pool    *extract.Pool
	tracker *budget.Tracker
	cfg     model.CoverageConfig
	log     *slog.Logger
	now     func() time.Time
}

// NewLoop creates a research loop.
func NewLoop(client gateway.ModelClient, search gateway.SearchClient, pool *extract.Pool, tracker *budget.Tracker, cfg model.CoverageConfig) *Loop {
	return &Loop{
		client:  client,
		search:  search,
		pool:    pool,
		tracker: tracker,
		cfg:     cfg,
		log:     logging.New("research"),
		now:     time.Now,
	}
}

// Research runs the loop for one frame until coverage is reached, the
// budget denies another iteration, or no new leads remain. Budget
// exhaustion is a degradation, never an error: the frame finalizes with
// whatever evidence it has plus a budget_exceeded warning.
func (l *Loop) Research(ctx context.Context, arena *model.Arena, frame *model.Frame, seen *SeenSet) Result {
	var out Result
	gaps := EvaluateCoverage(arena, frame, nil, l.cfg, l.now())

	for {
		if ctx.Err() != nil {
			out.Reason = StopCancelled
			break
		}

		res, err := l.tracker.Reserve(frame.ID, 1, iterationTokenEstimate)
		if err != nil {
			if reason, denied := budget.IsDenied(err); denied {
				out.Warnings = append(out.Warnings, model.Warning{
					Type:     model.WarnBudgetExceeded,
					Severity: model.WarnWarning,
					FrameID:  frame.ID,
					Stage:    "research",
					Message:  fmt.Sprintf("research stopped: %s", reason),
				})
			}
			out.Reason = StopBudget
			break
		}
		out.Iterations++

		queries, usage := l.queries(ctx, frame, gaps)
		l.tracker.Commit(res, usage.TotalTokens)

		urls := l.searchAll(ctx, queries, seen)
		if len(urls) == 0 {
			out.Reason = StopNoLeads
			break
		}

		items, skipped, warnings := l.pool.Extract(ctx, arena, frame, urls)
		out.Evidence = append(out.Evidence, items...)
		out.Skipped = append(out.Skipped, skipped...)
		out.Warnings = append(out.Warnings, warnings...)

		gaps = EvaluateCoverage(arena, frame, out.Evidence, l.cfg, l.now())
		if len(gaps) == 0 {
			out.Reason = StopCovered
			break
		}
		l.log.Debug("coverage gaps remain",
			"frame", frame.ID, "iteration", out.Iterations, "gaps", len(gaps))
	}

	out.OpenGaps = gaps
	return out
}

// queries asks the model for gap-directed search queries, falling back
// to deterministic phrasings when the model is unavailable or fails.
func (l *Loop) queries(ctx context.Context, frame *model.Frame, gaps []Gap) ([]string, gateway.Usage) {
	if l.client == nil {
		return fallbackQueries(frame, gaps), gateway.Usage{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Assessed statement: %s\n", frame.AssessedStatement)
	if frame.Jurisdiction != "" {
		fmt.Fprintf(&sb, "Jurisdiction: %s\n", frame.Jurisdiction)
	}
	if len(gaps) > 0 {
		sb.WriteString("Coverage gaps:\n")
		for _, g := range gaps {
			fmt.Fprintf(&sb, "- %s: %s\n", g.Kind, g.Detail)
		}
	}
	fmt.Fprintf(&sb, "Produce at most %d queries.", maxQueriesPerIteration)

	var resp struct {
		Queries []string `json:"queries"`
	}
	usage, err := l.client.CompleteJSON(ctx, gateway.Request{System: querySystem, Prompt: sb.String()}, &resp)
	if err != nil {
		l.log.Warn("query generation failed, using fallback queries", "frame", frame.ID, "error", err)
		return fallbackQueries(frame, gaps), usage
	}

	queries := resp.Queries
	if len(queries) > maxQueriesPerIteration {
		queries = queries[:maxQueriesPerIteration]
	}
	if len(queries) == 0 {
		queries = fallbackQueries(frame, gaps)
	}
	return queries, usage
}

func fallbackQueries(frame *model.Frame, gaps []Gap) []string {
	queries := []string{frame.AssessedStatement}
	for _, g := range gaps {
		switch g.Kind {
		case GapCounterEvidence:
			queries = append(queries, frame.AssessedStatement+" criticism refutation")
		case GapRecency:
			queries = append(queries, frame.AssessedStatement+" latest findings")
		}
		if len(queries) >= maxQueriesPerIteration {
			break
		}
	}
	return queries
}

// searchAll runs the queries and returns URLs not yet claimed by any
// frame in the job. Individual search failures are logged and skipped.
func (l *Loop) searchAll(ctx context.Context, queries []string, seen *SeenSet) []string {
	var urls []string
	for _, q := range queries {
		hits, err := l.search.Search(ctx, q)
		if err != nil {
			l.log.Warn("search failed", "query", q, "error", err)
			continue
		}
		for _, hit := range hits {
			if hit.URL == "" || !seen.Add(hit.URL) {
				continue
			}
			urls = append(urls, hit.URL)
		}
	}
	return urls
}
