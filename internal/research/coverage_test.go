package research

import (
	"testing"
	"time"

	"github.com/veridex/veridex/internal/model"
)

func coverageArena(centrality model.Centrality, kind model.ClaimKind) (*model.Arena, *model.Frame) {
	arena := model.NewArena()
	frame := &model.Frame{ID: "frame-001", Label: "Policy impact", AssessedStatement: "The policy reduced emissions."}
	arena.Frames[frame.ID] = frame
	claim := &model.AtomicClaim{ID: "claim-001", Text: "Emissions fell 20 percent.", Centrality: centrality, Kind: kind}
	arena.Claims[claim.ID] = claim
	arena.Assign(frame.ID, claim.ID)
	return arena, frame
}

func evidenceFor(frame string, n int, stance model.Stance, domain string) []model.EvidenceItem {
	items := make([]model.EvidenceItem, n)
	for i := range items {
		items[i] = model.EvidenceItem{
			ID:      "ev-" + string(rune('a'+i)),
			FrameID: frame,
			Stance:  stance,
			Domain:  domain,
		}
	}
	return items
}

func TestCoverageCounterEvidenceRequiredForCentralClaims(t *testing.T) {
	arena, frame := coverageArena(model.CentralityHigh, model.ClaimKindAssertion)
	cfg := model.CoverageConfig{MinEvidenceItems: 2, MinSourceDomains: 1}

	items := evidenceFor(frame.ID, 3, model.StanceSupports, "example.org")
	gaps := EvaluateCoverage(arena, frame, items, cfg, time.Now())

	found := false
	for _, g := range gaps {
		if g.Kind == GapCounterEvidence && g.ClaimID == "claim-001" {
			found = true
		}
	}
	if !found {
		t.Fatalf("gaps = %+v, want counter_evidence for claim-001", gaps)
	}

	// One contradicting item closes the gap.
	items = append(items, model.EvidenceItem{ID: "ev-x", FrameID: frame.ID, Stance: model.StanceContradicts, Domain: "other.org"})
	for _, g := range EvaluateCoverage(arena, frame, items, cfg, time.Now()) {
		if g.Kind == GapCounterEvidence {
			t.Fatalf("counter_evidence gap still open: %+v", g)
		}
	}
}

func TestCoverageCounterEvidenceNotRequiredForPeripheralClaims(t *testing.T) {
	arena, frame := coverageArena(model.CentralityLow, model.ClaimKindAssertion)
	cfg := model.CoverageConfig{MinEvidenceItems: 1, MinSourceDomains: 1}

	items := evidenceFor(frame.ID, 2, model.StanceSupports, "example.org")
	for _, g := range EvaluateCoverage(arena, frame, items, cfg, time.Now()) {
		if g.Kind == GapCounterEvidence {
			t.Fatalf("unexpected counter_evidence gap for LOW centrality claim: %+v", g)
		}
	}
}

func TestCoverageCounterEvidenceIgnoresOpinions(t *testing.T) {
	arena, frame := coverageArena(model.CentralityHigh, model.ClaimKindOpinion)
	cfg := model.CoverageConfig{MinEvidenceItems: 1, MinSourceDomains: 1}

	items := evidenceFor(frame.ID, 2, model.StanceSupports, "example.org")
	for _, g := range EvaluateCoverage(arena, frame, items, cfg, time.Now()) {
		if g.Kind == GapCounterEvidence {
			t.Fatalf("opinion claim demanded counter-evidence: %+v", g)
		}
	}
}

func TestCoverageVolumeAndDiversityGaps(t *testing.T) {
	arena, frame := coverageArena(model.CentralityLow, model.ClaimKindAssertion)
	cfg := model.CoverageConfig{MinEvidenceItems: 5, MinSourceDomains: 3}

	items := evidenceFor(frame.ID, 2, model.StanceSupports, "example.org")
	gaps := EvaluateCoverage(arena, frame, items, cfg, time.Now())

	kinds := make(map[GapKind]bool)
	for _, g := range gaps {
		kinds[g.Kind] = true
	}
	if !kinds[GapEvidenceVolume] {
		t.Error("missing evidence_volume gap at 2 of 5 items")
	}
	if !kinds[GapDomainDiversity] {
		t.Error("missing domain_diversity gap at 1 of 3 domains")
	}
}

func TestCoverageRecencyGap(t *testing.T) {
	arena, frame := coverageArena(model.CentralityLow, model.ClaimKindAssertion)
	cfg := model.CoverageConfig{MinEvidenceItems: 1, MinSourceDomains: 1, RecencyWindow: 30 * 24 * time.Hour}
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	stale := now.Add(-90 * 24 * time.Hour)
	items := []model.EvidenceItem{{ID: "ev-a", FrameID: frame.ID, Stance: model.StanceContradicts, Domain: "a.org", PublishedAt: &stale}}

	gaps := EvaluateCoverage(arena, frame, items, cfg, now)
	if len(gaps) != 1 || gaps[0].Kind != GapRecency {
		t.Fatalf("gaps = %+v, want only recency", gaps)
	}

	fresh := now.Add(-24 * time.Hour)
	items = append(items, model.EvidenceItem{ID: "ev-b", FrameID: frame.ID, Stance: model.StanceSupports, Domain: "b.org", PublishedAt: &fresh})
	if gaps := EvaluateCoverage(arena, frame, items, cfg, now); len(gaps) != 0 {
		t.Fatalf("gaps = %+v, want none with a fresh item", gaps)
	}
}
