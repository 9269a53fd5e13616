// Package reliability scores source trustworthiness per domain through
// multi-model consensus, with a long-TTL persistent cache and a
// skeptical fallback chain.
package reliability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/veridex/veridex/internal/cache"
	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

const evaluateSystem = `You assess the reliability of a web domain as a source of factual
reporting. Ground your judgment in the provided evidence items where possible
and cite the URLs you actually used. Reply with only a JSON object:
{"score":0..1,"confidence":0..1,"source_type":one of
[news_outlet,wire_service,academic,government,encyclopedia,advocacy_group,
blog,social_media,content_farm,propaganda_outlet,unknown],
"evidence_cited":[urls],"caveats":[strings]}.`

// Service is the source reliability scorer. Evaluations of the same
// yet-uncached domain coalesce into one flight, and independent model
// calls for one domain run in parallel.
type Service struct {
	clients []gateway.ModelClient
	store   cache.Cache
	cfg     model.ReliabilityConfig
	log     *slog.Logger

	flight singleflight.Group

	// now is injectable for deterministic recency weighting in tests.
	now func() time.Time
}

// NewService creates the scorer. At least two clients are needed for
// consensus; with fewer, every evaluation takes the single-model path.
func NewService(clients []gateway.ModelClient, store cache.Cache, cfg model.ReliabilityConfig) *Service {
	return &Service{
		clients: clients,
		store:   store,
		cfg:     cfg,
		log:     logging.New("reliability"),
		now:     time.Now,
	}
}

// Evaluate returns the domain's reliability record, cache-first. A cached
// record is returned exactly as stored until its TTL expires. Consensus
// failure never propagates as an error; the fallback chain ends at the
// configured default score with a no-consensus caveat.
func (s *Service) Evaluate(ctx context.Context, domain string, pack []PackItem) (model.SourceReliabilityRecord, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return model.SourceReliabilityRecord{}, fmt.Errorf("empty domain")
	}

	if rec, ok := s.cached(domain); ok {
		return rec, nil
	}

	v, err, _ := s.flight.Do(domain, func() (any, error) {
		// Re-check inside the flight: a concurrent evaluation may have
		// landed between the miss and the coalesce.
		if rec, ok := s.cached(domain); ok {
			return rec, nil
		}

		rec, err := s.evaluate(ctx, domain, pack)
		if err != nil {
			return model.SourceReliabilityRecord{}, err
		}

		if raw, err := json.Marshal(rec); err == nil && s.store != nil {
			if err := s.store.Set(cache.ReliabilityKey(domain), raw, s.cfg.CacheTTL); err != nil {
				s.log.Warn("reliability cache write failed", "domain", domain, "error", err)
			}
		}
		return rec, nil
	})
	if err != nil {
		return model.SourceReliabilityRecord{}, err
	}
	return v.(model.SourceReliabilityRecord), nil
}

// Invalidate drops a domain's cached record, forcing re-evaluation.
func (s *Service) Invalidate(domain string) {
	if s.store == nil {
		return
	}
	_ = s.store.Delete(cache.ReliabilityKey(strings.ToLower(domain)))
}

// Prefetch evaluates a batch of domains with bounded parallelism, used by
// the orchestrator ahead of aggregation to avoid per-citation latency.
// Individual failures yield default records instead of failing the batch.
func (s *Service) Prefetch(ctx context.Context, domains []string, pack []PackItem) map[string]model.SourceReliabilityRecord {
	out := make(map[string]model.SourceReliabilityRecord, len(domains))
	var mu sync.Mutex

	limit := s.cfg.PoolSize
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, domain := range domains {
		g.Go(func() error {
			rec, err := s.Evaluate(gctx, domain, pack)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				rec = s.defaultRecord(domain, "evaluation failed")
			}
			mu.Lock()
			out[domain] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Service) cached(domain string) (model.SourceReliabilityRecord, bool) {
	if s.store == nil {
		return model.SourceReliabilityRecord{}, false
	}
	raw, found := s.store.Get(cache.ReliabilityKey(domain))
	if !found {
		return model.SourceReliabilityRecord{}, false
	}
	var rec model.SourceReliabilityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.SourceReliabilityRecord{}, false
	}
	return rec, true
}

// evaluate runs the model calls and the consensus selection.
func (s *Service) evaluate(ctx context.Context, domain string, pack []PackItem) (model.SourceReliabilityRecord, error) {
	assessments := s.ask(ctx, domain, pack)
	if ctx.Err() != nil {
		return model.SourceReliabilityRecord{}, ctx.Err()
	}

	switch len(assessments) {
	case 0:
		return s.defaultRecord(domain, "no model responded"), nil
	case 1:
		if assessments[0].Confidence >= s.cfg.ConfidenceGate {
			return s.record(domain, assessments[0], nil), nil
		}
		return s.defaultRecord(domain, "single response below confidence gate"), nil
	}

	chosen, agreed := selectAssessment(assessments[0], assessments[1], pack, s.cfg, s.now())
	if chosen.Model == "" {
		return s.defaultRecord(domain, "no consensus and no response cleared the confidence gate"), nil
	}

	var caveats []string
	if !agreed {
		caveats = append(caveats, "no consensus; higher-confidence response used")
	}
	return s.record(domain, chosen, caveats), nil
}

// ask queries every configured client in parallel and keeps the first two
// successful assessments in client order, so selection input is stable.
func (s *Service) ask(ctx context.Context, domain string, pack []PackItem) []Assessment {
	results := make([]*Assessment, len(s.clients))

	var wg sync.WaitGroup
	for i, client := range s.clients {
		wg.Add(1)
		go func(idx int, c gateway.ModelClient) {
			defer wg.Done()

			var a Assessment
			_, err := c.CompleteJSON(ctx, gateway.Request{
				System: evaluateSystem,
				Prompt: s.prompt(domain, pack),
			}, &a)
			if err != nil {
				s.log.Warn("model assessment failed", "domain", domain, "model", c.Name(), "error", err)
				return
			}
			a.Model = c.Name()
			a.Score = clamp01(a.Score)
			a.Confidence = clamp01(a.Confidence)
			if a.SourceType == "" {
				a.SourceType = model.SourceTypeUnknown
			}
			results[idx] = &a
		}(i, client)
	}
	wg.Wait()

	out := make([]Assessment, 0, 2)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
			if len(out) == 2 {
				break
			}
		}
	}
	return out
}

func (s *Service) prompt(domain string, pack []PackItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Domain: %s\n\nEvidence pack:\n", domain)
	if len(pack) == 0 {
		sb.WriteString("(none retrieved)\n")
	}
	for _, item := range pack {
		fmt.Fprintf(&sb, "- %s (published %s)\n", item.URL, item.PublishedAt.Format("2006-01-02"))
	}
	return sb.String()
}

func (s *Service) record(domain string, a Assessment, extraCaveats []string) model.SourceReliabilityRecord {
	rec := model.SourceReliabilityRecord{
		Domain:        domain,
		Score:         a.Score,
		Confidence:    a.Confidence,
		SourceType:    a.SourceType,
		EvidenceCited: a.EvidenceCited,
		Caveats:       append(a.Caveats, extraCaveats...),
		EvaluatedAt:   s.now().UTC(),
	}
	return applyCap(rec)
}

func (s *Service) defaultRecord(domain, why string) model.SourceReliabilityRecord {
	return model.SourceReliabilityRecord{
		Domain:      domain,
		Score:       s.cfg.DefaultScore,
		Confidence:  0,
		SourceType:  model.SourceTypeUnknown,
		Caveats:     []string{"no consensus: " + why},
		EvaluatedAt: s.now().UTC(),
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
