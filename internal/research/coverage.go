// Package research runs the gap-driven evidence loop for one frame:
// query, extract, evaluate coverage, repeat until the gaps close or the
// budget does.
package research

import (
	"fmt"
	"time"

	"github.com/veridex/veridex/internal/model"
)

// GapKind names one class of missing coverage.
type GapKind string

const (
	// GapCounterEvidence means a load-bearing claim has no contradicting
	// evidence yet. A frame never stops on coverage grounds while this
	// gap is open.
	GapCounterEvidence GapKind = "counter_evidence"
	GapDomainDiversity GapKind = "domain_diversity"
	GapEvidenceVolume  GapKind = "evidence_volume"
	GapRecency         GapKind = "recency"
)

// Gap is one identified hole in a frame's evidence, with enough detail
// to steer the next round of queries.
type Gap struct {
	Kind    GapKind
	ClaimID string
	Detail  string
}

// EvaluateCoverage inspects the evidence gathered for a frame and
// returns the open gaps. An empty result means the frame is covered and
// research may stop.
func EvaluateCoverage(arena *model.Arena, frame *model.Frame, items []model.EvidenceItem, cfg model.CoverageConfig, now time.Time) []Gap {
	var gaps []Gap

	hasCounter := false
	for _, item := range items {
		if item.Stance == model.StanceContradicts {
			hasCounter = true
			break
		}
	}
	if !hasCounter {
		for _, claimID := range arena.Members(frame.ID) {
			claim, ok := arena.Claims[claimID]
			if !ok || !claim.Verifiable() || claim.Centrality != model.CentralityHigh {
				continue
			}
			gaps = append(gaps, Gap{
				Kind:    GapCounterEvidence,
				ClaimID: claim.ID,
				Detail:  fmt.Sprintf("no contradicting evidence for central claim %q", claim.Text),
			})
		}
	}

	if cfg.MinEvidenceItems > 0 && len(items) < cfg.MinEvidenceItems {
		gaps = append(gaps, Gap{
			Kind:   GapEvidenceVolume,
			Detail: fmt.Sprintf("%d evidence items, need %d", len(items), cfg.MinEvidenceItems),
		})
	}

	if cfg.MinSourceDomains > 0 {
		domains := make(map[string]struct{})
		for _, item := range items {
			if item.Domain != "" {
				domains[item.Domain] = struct{}{}
			}
		}
		if len(domains) < cfg.MinSourceDomains {
			gaps = append(gaps, Gap{
				Kind:   GapDomainDiversity,
				Detail: fmt.Sprintf("%d source domains, need %d", len(domains), cfg.MinSourceDomains),
			})
		}
	}

	if cfg.RecencyWindow > 0 {
		cutoff := now.Add(-cfg.RecencyWindow)
		recent := false
		for _, item := range items {
			if item.PublishedAt != nil && item.PublishedAt.After(cutoff) {
				recent = true
				break
			}
		}
		if !recent {
			gaps = append(gaps, Gap{
				Kind:   GapRecency,
				Detail: fmt.Sprintf("no evidence published within the last %s", cfg.RecencyWindow),
			})
		}
	}

	return gaps
}
