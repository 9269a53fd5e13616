package verdict

import (
	"testing"
	"time"

	"github.com/veridex/veridex/internal/model"
)

func testAggregator() *Aggregator {
	agg := NewAggregator(model.VerdictConfig{
		MinSources:          3,
		MinEvidenceItems:    5,
		RecencyHalfLife:     365 * 24 * time.Hour,
		InterFrameThreshold: 0.25,
		MinFrameSimilarity:  0.15,
	})
	agg.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return agg
}

func item(id, domain string, stance model.Stance, published *time.Time) model.EvidenceItem {
	return model.EvidenceItem{ID: id, Domain: domain, Stance: stance, FrameID: "frame-001", PublishedAt: published}
}

func reliabilityMap(scores map[string]float64) map[string]model.SourceReliabilityRecord {
	out := make(map[string]model.SourceReliabilityRecord, len(scores))
	for domain, score := range scores {
		out[domain] = model.SourceReliabilityRecord{Domain: domain, Score: score, Confidence: 0.9}
	}
	return out
}

func TestFrameVerdictReliabilityOutweighsCount(t *testing.T) {
	agg := testAggregator()
	frame := &model.Frame{ID: "frame-001"}
	recent := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// Three low-reliability supporting items against one strong
	// contradicting item: counting heads says true, weighting says not.
	items := []model.EvidenceItem{
		item("ev-1", "contentfarm-a.example", model.StanceSupports, &recent),
		item("ev-2", "contentfarm-b.example", model.StanceSupports, &recent),
		item("ev-3", "contentfarm-c.example", model.StanceSupports, &recent),
		item("ev-4", "journal.example", model.StanceContradicts, &recent),
	}
	rel := reliabilityMap(map[string]float64{
		"contentfarm-a.example": 0.1,
		"contentfarm-b.example": 0.1,
		"contentfarm-c.example": 0.1,
		"journal.example":       0.9,
	})

	v := agg.Frame(frame, items, rel)
	if v.TruthPercent >= 50 {
		t.Errorf("truth = %d, want below 50 when the strong source contradicts", v.TruthPercent)
	}
	if v.EvidenceFor != 3 || v.EvidenceAgainst != 1 {
		t.Errorf("tallies = %d for / %d against", v.EvidenceFor, v.EvidenceAgainst)
	}
	if v.SourceCount != 4 {
		t.Errorf("source count = %d, want 4", v.SourceCount)
	}
}

func TestFrameVerdictRecencyDiscount(t *testing.T) {
	agg := testAggregator()
	frame := &model.Frame{ID: "frame-001"}

	fresh := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	stale := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	// Same-reliability sources disagree; the fresh one dominates.
	items := []model.EvidenceItem{
		item("ev-1", "a.example", model.StanceSupports, &fresh),
		item("ev-2", "b.example", model.StanceContradicts, &stale),
	}
	rel := reliabilityMap(map[string]float64{"a.example": 0.8, "b.example": 0.8})

	v := agg.Frame(frame, items, rel)
	if v.TruthPercent <= 80 {
		t.Errorf("truth = %d, want well above 80 when the contradiction is six years old", v.TruthPercent)
	}
}

func TestFrameVerdictUnknownDomainGetsSkepticalDefault(t *testing.T) {
	agg := testAggregator()
	frame := &model.Frame{ID: "frame-001"}
	recent := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	items := []model.EvidenceItem{
		item("ev-1", "unknown.example", model.StanceSupports, &recent),
		item("ev-2", "journal.example", model.StanceContradicts, &recent),
	}
	rel := reliabilityMap(map[string]float64{"journal.example": 0.9})

	v := agg.Frame(frame, items, rel)
	if v.TruthPercent >= 50 {
		t.Errorf("truth = %d, want below 50: unrated source must not outweigh a rated one", v.TruthPercent)
	}
}

func TestFrameVerdictNoEvidence(t *testing.T) {
	agg := testAggregator()
	v := agg.Frame(&model.Frame{ID: "frame-001"}, nil, nil)
	if v.TruthPercent != 50 {
		t.Errorf("truth = %d, want neutral 50", v.TruthPercent)
	}
	if !v.LowConfidence || v.Confidence != 0 {
		t.Errorf("verdict = %+v, want zero-confidence low-confidence", v)
	}
}

func TestFrameVerdictConfidenceScalesWithCoverage(t *testing.T) {
	agg := testAggregator()
	frame := &model.Frame{ID: "frame-001"}
	recent := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	thin := []model.EvidenceItem{item("ev-1", "a.example", model.StanceSupports, &recent)}
	wide := []model.EvidenceItem{
		item("ev-1", "a.example", model.StanceSupports, &recent),
		item("ev-2", "b.example", model.StanceSupports, &recent),
		item("ev-3", "c.example", model.StanceContradicts, &recent),
		item("ev-4", "d.example", model.StanceSupports, &recent),
		item("ev-5", "e.example", model.StanceSupports, &recent),
	}
	rel := reliabilityMap(map[string]float64{
		"a.example": 0.8, "b.example": 0.8, "c.example": 0.8, "d.example": 0.8, "e.example": 0.8,
	})

	thinV := agg.Frame(frame, thin, rel)
	wideV := agg.Frame(frame, wide, rel)
	if thinV.Confidence >= wideV.Confidence {
		t.Errorf("confidence thin=%.2f wide=%.2f, want wide coverage more confident", thinV.Confidence, wideV.Confidence)
	}
}

// relatedFrames share enough topic vocabulary to stay coherent.
func relatedFrames() []*model.Frame {
	return []*model.Frame{
		{ID: "frame-001", Label: "Emissions reduction, national inventory",
			AssessedStatement: "The policy reduced national emissions by 20 percent"},
		{ID: "frame-002", Label: "Emissions reduction, independent audit",
			AssessedStatement: "Independent audits confirm the emissions reduction attributed to the policy"},
	}
}

func TestArticleVerdictAveragesByConfidence(t *testing.T) {
	agg := testAggregator()
	verdicts := []model.FrameVerdict{
		{FrameID: "frame-001", TruthPercent: 80, Confidence: 0.9},
		{FrameID: "frame-002", TruthPercent: 70, Confidence: 0.3},
	}
	out := agg.Article(relatedFrames(), verdicts)
	// Weighted mean (80*0.9 + 70*0.3) / 1.2 = 77.5, rounds to 78.
	if out.TruthPercent != 78 {
		t.Errorf("truth = %d, want 78", out.TruthPercent)
	}
	if out.Reliability != model.ReliabilityHigh {
		t.Errorf("reliability = %s, want high for close frames", out.Reliability)
	}
}

func TestArticleVerdictDivergentFramesLowReliability(t *testing.T) {
	agg := testAggregator()
	verdicts := []model.FrameVerdict{
		{FrameID: "frame-001", TruthPercent: 90, Confidence: 0.8},
		{FrameID: "frame-002", TruthPercent: 20, Confidence: 0.8},
	}
	out := agg.Article(relatedFrames(), verdicts)
	if out.Reliability != model.ReliabilityLow {
		t.Errorf("reliability = %s, want low at 70-point divergence", out.Reliability)
	}
}

func TestArticleVerdictUnrelatedFramesLowReliability(t *testing.T) {
	agg := testAggregator()
	unrelated := []*model.Frame{
		{ID: "frame-001", Label: "Vaccine trial efficacy",
			AssessedStatement: "The vaccine showed 90 percent efficacy in phase three trials"},
		{ID: "frame-002", Label: "Stadium attendance record",
			AssessedStatement: "The stadium set an attendance record last season"},
	}
	// Identical truth percents: dispersion alone cannot tell that the
	// frames answer different questions.
	verdicts := []model.FrameVerdict{
		{FrameID: "frame-001", TruthPercent: 70, Confidence: 0.8},
		{FrameID: "frame-002", TruthPercent: 70, Confidence: 0.8},
	}
	out := agg.Article(unrelated, verdicts)
	if out.Reliability != model.ReliabilityLow {
		t.Errorf("reliability = %s, want low when frames share no topic", out.Reliability)
	}
}

func TestArticleVerdictNoFrames(t *testing.T) {
	agg := testAggregator()
	out := agg.Article(nil, nil)
	if out.TruthPercent != 50 || out.Reliability != model.ReliabilityLow {
		t.Errorf("verdict = %+v, want neutral low-reliability", out)
	}
}
