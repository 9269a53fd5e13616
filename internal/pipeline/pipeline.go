// Package pipeline orchestrates a verification job end to end: input
// understanding, claim admission, frame detection, gap-driven research,
// source reliability scoring, and verdict aggregation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridex/veridex/internal/budget"
	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/extract"
	"github.com/veridex/veridex/internal/frames"
	"github.com/veridex/veridex/internal/gate"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/reliability"
	"github.com/veridex/veridex/internal/research"
	"github.com/veridex/veridex/internal/verdict"
)

// setupTokenEstimate covers understanding and frame detection, settled
// against actual usage.
const setupTokenEstimate = 3000

// Pipeline holds the per-process components; per-job state (budget
// tracker, seen set, arena) is created inside Run.
type Pipeline struct {
	cfg      *model.Config
	primary  gateway.ModelClient
	search   gateway.SearchClient
	fetcher  *extract.Fetcher
	rel      *reliability.Service
	detector *frames.Detector
	agg      *verdict.Aggregator
	renderer *Renderer
	log      *slog.Logger
}

// New wires a pipeline from configuration: OpenAI-backed model clients,
// the search gateway, the page fetcher, and the reliability consensus
// service sharing one layered cache.
func New(cfg *model.Config) (*Pipeline, error) {
	primary, err := gateway.NewOpenAIClient(cfg.LLM, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("primary model client: %w", err)
	}

	relClients := []gateway.ModelClient{primary}
	if cfg.LLM.SecondaryModel != "" && cfg.LLM.SecondaryModel != cfg.LLM.Model {
		secondary, err := gateway.NewOpenAIClient(cfg.LLM, cfg.LLM.SecondaryModel)
		if err != nil {
			return nil, fmt.Errorf("secondary model client: %w", err)
		}
		relClients = append(relClients, secondary)
	}

	search, err := gateway.NewHTTPSearchClient(cfg.Search, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("search client: %w", err)
	}

	var store cache.Cache
	if cfg.Cache.Enabled {
		store = cache.NewLayeredCache(cfg.Cache.PageTTL, cfg.Cache.Dir, cfg.Cache.ReliabilityTTL)
	}

	return &Pipeline{
		cfg:      cfg,
		primary:  primary,
		search:   search,
		fetcher:  extract.NewFetcher(cfg.HTTP, cfg.Cache, store),
		rel:      reliability.NewService(relClients, store, cfg.Reliability),
		detector: frames.NewDetector(primary, cfg.Frames),
		agg:      verdict.NewAggregator(cfg.Verdict),
		renderer: NewRenderer(cfg.Output.IncludeFooter),
		log:      logging.New("pipeline"),
	}, nil
}

// Renderer exposes the report renderer for callers that write artifacts.
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// frameResearch pairs a frame with its research outcome.
type frameResearch struct {
	frameID string
	result  research.Result
}

// Run executes one job and returns its report. Degradations accumulate
// as warnings; only unusable input or cancellation fail the job.
func (p *Pipeline) Run(ctx context.Context, job *model.Job, emit *Emitter) (*model.Report, error) {
	started := time.Now().UTC()
	variant := model.ParseVariant(job.PipelineVariant)

	emit.Emit(model.JobRunning, 0, "info", "starting %s pipeline", variant)

	subject, text, err := p.resolveInput(ctx, job)
	if err != nil {
		return nil, err
	}

	if variant != model.VariantOrchestrated {
		return p.runMonolithic(ctx, job, variant, subject, text, started, emit)
	}

	tracker := budget.NewTracker(p.cfg.Budget)
	defer tracker.Close()

	report := &model.Report{
		JobID:     job.ID,
		InputType: job.InputType,
		Input:     job.InputValue,
		StartedAt: started,
		Variant:   variant.String(),
	}

	// Understanding and claim admission.
	setupRes, err := tracker.Reserve("_setup", 0, setupTokenEstimate)
	if err != nil {
		return nil, fmt.Errorf("setup budget: %w", err)
	}
	subject, claims, usage, err := p.understandInput(ctx, job, subject, text)
	if err != nil {
		tracker.Release(setupRes)
		return nil, err
	}
	report.Subject = subject

	admitted, rejected := gate.AdmitClaims(claims)
	for _, r := range rejected {
		c := r.Claim
		c.Reason = r.Reason
		report.Claims = append(report.Claims, c)
	}
	emit.Emit(model.JobRunning, 15, "info", "admitted %d of %d claims", len(admitted), len(claims))
	if len(admitted) == 0 {
		tracker.Release(setupRes)
		return nil, fmt.Errorf("no admissible claims in input")
	}

	arena := model.NewArena()
	for i := range admitted {
		c := admitted[i]
		arena.Claims[c.ID] = &c
	}

	// Frame detection and deduplication.
	detectUsage, err := p.detector.Detect(ctx, arena, subject)
	if err != nil {
		tracker.Commit(setupRes, usage.TotalTokens+detectUsage.TotalTokens)
		return nil, fmt.Errorf("frame detection: %w", err)
	}
	tracker.Commit(setupRes, usage.TotalTokens+detectUsage.TotalTokens)
	report.Warnings = append(report.Warnings, frames.Dedup(arena, p.cfg.Frames)...)

	frameIDs := arena.FrameIDs()
	emit.Emit(model.JobRunning, 25, "info", "researching %d frames", len(frameIDs))

	// Parallel per-frame research against the shared budget tracker.
	results := p.researchFrames(ctx, arena, frameIDs, tracker)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for _, fr := range results {
		report.Evidence = append(report.Evidence, fr.result.Evidence...)
		report.Skipped = append(report.Skipped, fr.result.Skipped...)
		report.Warnings = append(report.Warnings, fr.result.Warnings...)
	}
	emit.Emit(model.JobRunning, 65, "info", "collected %d evidence items, %d sources skipped",
		len(report.Evidence), len(report.Skipped))

	// Source reliability for every contributing domain.
	report.Reliability = p.scoreSources(ctx, report.Evidence)
	emit.Emit(model.JobRunning, 80, "info", "scored %d source domains", len(report.Reliability))

	// Frame verdicts through the verdict admission gate, then the
	// article-level fold.
	evidenceByFrame := make(map[string][]model.EvidenceItem)
	for _, item := range report.Evidence {
		evidenceByFrame[item.FrameID] = append(evidenceByFrame[item.FrameID], item)
	}

	var assessed []*model.Frame
	var frameVerdicts []model.FrameVerdict
	for _, id := range frameIDs {
		fv := p.agg.Frame(arena.Frames[id], evidenceByFrame[id], report.Reliability)
		fv, warn := gate.AdmitVerdict(fv, p.cfg.Verdict)
		if warn != nil {
			report.Warnings = append(report.Warnings, *warn)
		}
		assessed = append(assessed, arena.Frames[id])
		frameVerdicts = append(frameVerdicts, fv)
	}
	report.Verdict = p.agg.Article(assessed, frameVerdicts)

	// Finalize: arena state into the report, budget accounting, and the
	// warnings the tracker accumulated (soft overruns).
	p.fillArenaState(report, arena)
	report.Warnings = append(report.Warnings, tracker.Warnings()...)
	report.Budget = tracker.Usage()
	report.FinishedAt = time.Now().UTC()

	emit.Emit(model.JobSucceeded, 100, "info", "verdict %d%% true, confidence %.2f",
		report.Verdict.TruthPercent, report.Verdict.Confidence)
	return report, nil
}

// resolveInput produces the text to understand. URL inputs are fetched
// and reduced to article markdown before decomposition.
func (p *Pipeline) resolveInput(ctx context.Context, job *model.Job) (subject, text string, err error) {
	switch job.InputType {
	case model.InputURL:
		page, err := p.fetcher.Fetch(ctx, job.InputValue)
		if err != nil {
			return "", "", fmt.Errorf("fetch input: %w", err)
		}
		title, body, err := extract.ReadArticle(page)
		if err != nil {
			return "", "", fmt.Errorf("read input article: %w", err)
		}
		if title == "" {
			title = job.InputValue
		}
		return title, body, nil
	default:
		return firstLine(job.InputValue), job.InputValue, nil
	}
}

func (p *Pipeline) understandInput(ctx context.Context, job *model.Job, subject, text string) (string, []model.AtomicClaim, gateway.Usage, error) {
	understood, claims, usage, err := p.understand(ctx, job.InputType, text)
	if err != nil {
		return "", nil, usage, err
	}
	if understood != "" {
		subject = understood
	}
	return subject, claims, usage, nil
}

// researchFrames runs one research loop per frame, at most the
// extraction concurrency at a time. The tracker serializes budget
// decisions; the seen set keeps frames from re-fetching each other's
// sources.
func (p *Pipeline) researchFrames(ctx context.Context, arena *model.Arena, frameIDs []string, tracker *budget.Tracker) []frameResearch {
	pool := extract.NewPool(p.fetcher, p.primary, tracker, p.cfg.Extraction)
	loop := research.NewLoop(p.primary, p.search, pool, tracker, p.cfg.Coverage)
	seen := research.NewSeenSet()

	results := make([]frameResearch, len(frameIDs))
	var g errgroup.Group
	if n := p.cfg.Extraction.Concurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, id := range frameIDs {
		g.Go(func() error {
			results[i] = frameResearch{
				frameID: id,
				result:  loop.Research(ctx, arena, arena.Frames[id], seen),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// scoreSources evaluates reliability for every evidence domain, with the
// evidence URLs as the grounding pack for citation checks.
func (p *Pipeline) scoreSources(ctx context.Context, evidence []model.EvidenceItem) map[string]model.SourceReliabilityRecord {
	domainSet := make(map[string]struct{})
	var pack []reliability.PackItem
	for _, item := range evidence {
		if item.Domain != "" {
			domainSet[item.Domain] = struct{}{}
		}
		pi := reliability.PackItem{URL: item.SourceURL}
		if item.PublishedAt != nil {
			pi.PublishedAt = *item.PublishedAt
		}
		pack = append(pack, pi)
	}
	if len(domainSet) == 0 {
		return nil
	}

	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return p.rel.Prefetch(ctx, domains, pack)
}

// fillArenaState copies claims, frames, and scopes into the report in
// deterministic order, with frame assignments written back onto claims.
func (p *Pipeline) fillArenaState(report *model.Report, arena *model.Arena) {
	frameIDs := arena.FrameIDs()
	assignments := make(map[string][]string)
	for _, fid := range frameIDs {
		for _, cid := range arena.Members(fid) {
			assignments[cid] = append(assignments[cid], fid)
		}
		report.Frames = append(report.Frames, *arena.Frames[fid])
	}

	claimIDs := make([]string, 0, len(arena.Claims))
	for id := range arena.Claims {
		claimIDs = append(claimIDs, id)
	}
	sort.Strings(claimIDs)
	for _, id := range claimIDs {
		c := *arena.Claims[id]
		c.FrameIDs = assignments[id]
		report.Claims = append(report.Claims, c)
	}

	scopeIDs := make([]string, 0, len(arena.Scopes))
	for id := range arena.Scopes {
		scopeIDs = append(scopeIDs, id)
	}
	sort.Strings(scopeIDs)
	for _, id := range scopeIDs {
		report.Scopes = append(report.Scopes, *arena.Scopes[id])
	}
}

const monolithicCanonical = `You are a fact-checking assistant. Decompose the input into its
atomic claims, assess each against your knowledge, and produce an overall
verdict. Score truth as a percentage and confidence in [0,1]. Reply with only
a JSON object:
{"subject":...,"truth_percent":0-100,"confidence":0.0-1.0,"rationale":...,
"claims":[{"text":...,"centrality":"HIGH"|"MEDIUM"|"LOW","kind":"assertion"|"opinion"|"prediction"}]}.`

const monolithicDynamic = `You are a fact-checking assistant. Choose whatever analysis
structure fits this input best, then report an overall verdict: truth as a
percentage, confidence in [0,1], and the reasoning. Reply with only a JSON
object:
{"subject":...,"truth_percent":0-100,"confidence":0.0-1.0,"rationale":...,
"claims":[{"text":...,"centrality":"HIGH"|"MEDIUM"|"LOW","kind":"assertion"|"opinion"|"prediction"}]}.`

// runMonolithic answers the job with a single model call instead of the
// research pipeline. Cheaper and weaker; the report says which variant
// produced it and carries no evidence trail.
func (p *Pipeline) runMonolithic(ctx context.Context, job *model.Job, variant model.PipelineVariant, subject, text string, started time.Time, emit *Emitter) (*model.Report, error) {
	system := monolithicCanonical
	if variant == model.VariantMonolithicDynamic {
		system = monolithicDynamic
	}

	var resp struct {
		Subject      string            `json:"subject"`
		TruthPercent int               `json:"truth_percent"`
		Confidence   float64           `json:"confidence"`
		Rationale    string            `json:"rationale"`
		Claims       []understoodClaim `json:"claims"`
	}
	if _, err := p.primary.CompleteJSON(ctx, gateway.Request{System: system, Prompt: text}, &resp); err != nil {
		return nil, fmt.Errorf("monolithic verdict: %w", err)
	}

	if strings.TrimSpace(resp.Subject) != "" {
		subject = strings.TrimSpace(resp.Subject)
	}
	report := &model.Report{
		JobID:      job.ID,
		Subject:    subject,
		InputType:  job.InputType,
		Input:      job.InputValue,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Variant:    variant.String(),
	}
	for i, uc := range resp.Claims {
		if strings.TrimSpace(uc.Text) == "" {
			continue
		}
		report.Claims = append(report.Claims, model.AtomicClaim{
			ID:         fmt.Sprintf("claim-%03d", i+1),
			Text:       strings.TrimSpace(uc.Text),
			Centrality: parseCentrality(uc.Centrality),
			Kind:       parseKind(uc.Kind),
		})
	}

	fv := model.FrameVerdict{
		FrameID:      "frame-001",
		TruthPercent: clampPercent(resp.TruthPercent),
		Confidence:   clampUnit(resp.Confidence),
		Rationale:    resp.Rationale,
	}
	report.Verdict = model.ArticleVerdict{
		TruthPercent:  fv.TruthPercent,
		Confidence:    fv.Confidence,
		Reliability:   model.ReliabilityLow,
		FrameVerdicts: []model.FrameVerdict{fv},
	}
	report.Warnings = append(report.Warnings, model.Warning{
		Type:     model.WarnLowConfidence,
		Severity: model.WarnInfo,
		Stage:    "verdict",
		Message:  "single-call variant: no evidence trail backs this verdict",
	})

	emit.Emit(model.JobSucceeded, 100, "info", "verdict %d%% true, confidence %.2f",
		report.Verdict.TruthPercent, report.Verdict.Confidence)
	return report, nil
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
