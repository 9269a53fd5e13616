// Package verdict turns a frame's evidence into a truth percentage with
// calibrated confidence, and folds frame verdicts into the article-level
// outcome.
package verdict

import (
	"fmt"
	"math"
	"time"

	"github.com/veridex/veridex/internal/frames"
	"github.com/veridex/veridex/internal/model"
)

// unknownSourceScore weights evidence from a domain with no reliability
// record. Matches the skeptical default of the reliability service.
const unknownSourceScore = 0.4

// undatedRecencyFactor discounts evidence with no publication date as if
// it were one half-life old.
const undatedRecencyFactor = 0.5

// Aggregator computes frame and article verdicts. Votes are never
// counted raw: each item's contribution is its source reliability score
// discounted by age.
type Aggregator struct {
	cfg model.VerdictConfig
	now func() time.Time
}

func NewAggregator(cfg model.VerdictConfig) *Aggregator {
	return &Aggregator{cfg: cfg, now: time.Now}
}

// weight is one evidence item's contribution to its stance tally.
func (a *Aggregator) weight(item model.EvidenceItem, reliability map[string]model.SourceReliabilityRecord) float64 {
	score := unknownSourceScore
	if rec, ok := reliability[item.Domain]; ok {
		score = rec.Score
	}

	factor := undatedRecencyFactor
	if item.PublishedAt != nil && a.cfg.RecencyHalfLife > 0 {
		age := a.now().Sub(*item.PublishedAt)
		if age < 0 {
			age = 0
		}
		factor = math.Exp2(-age.Hours() / a.cfg.RecencyHalfLife.Hours())
	}

	return score * factor
}

// Frame computes the verdict for one frame from its evidence and the
// reliability records of the contributing domains.
func (a *Aggregator) Frame(frame *model.Frame, items []model.EvidenceItem, reliability map[string]model.SourceReliabilityRecord) model.FrameVerdict {
	v := model.FrameVerdict{FrameID: frame.ID}

	var weightFor, weightAgainst float64
	domains := make(map[string]struct{})
	for _, item := range items {
		w := a.weight(item, reliability)
		switch item.Stance {
		case model.StanceContradicts:
			weightAgainst += w
			v.EvidenceAgainst++
		default:
			weightFor += w
			v.EvidenceFor++
		}
		if item.Domain != "" {
			domains[item.Domain] = struct{}{}
		}
	}
	v.SourceCount = len(domains)

	total := weightFor + weightAgainst
	if total == 0 {
		v.TruthPercent = 50
		v.Confidence = 0
		v.LowConfidence = true
		v.Rationale = "no weighable evidence"
		return v
	}

	v.TruthPercent = int(math.Round(100 * weightFor / total))
	v.Confidence = a.confidence(len(items), len(domains), total)
	v.Rationale = fmt.Sprintf("%d supporting vs %d contradicting items across %d domains (weighted %.2f vs %.2f)",
		v.EvidenceFor, v.EvidenceAgainst, v.SourceCount, weightFor, weightAgainst)
	return v
}

// confidence blends mean evidence weight with coverage relative to the
// minimum floors. The quality gate applies its own cap on top when
// coverage is short.
func (a *Aggregator) confidence(items, domains int, totalWeight float64) float64 {
	mean := totalWeight / float64(items)

	coverage := 1.0
	if a.cfg.MinEvidenceItems > 0 {
		coverage = math.Min(coverage, float64(items)/float64(a.cfg.MinEvidenceItems))
	}
	if a.cfg.MinSources > 0 {
		coverage = math.Min(coverage, float64(domains)/float64(a.cfg.MinSources))
	}

	c := mean * coverage
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Article folds frame verdicts into the article-level outcome. The
// average is confidence-weighted. Reliability drops to low when the
// frames answer materially different questions (mean pairwise topic
// similarity under the floor) or when truth percentages diverge beyond
// the inter-frame threshold, so readers fall back to per-frame
// verdicts. assessed carries the frames behind the verdicts.
func (a *Aggregator) Article(assessed []*model.Frame, verdicts []model.FrameVerdict) model.ArticleVerdict {
	out := model.ArticleVerdict{FrameVerdicts: verdicts, Reliability: model.ReliabilityHigh}
	if len(verdicts) == 0 {
		out.TruthPercent = 50
		out.Reliability = model.ReliabilityLow
		return out
	}

	var truthSum, confWeight, confSum float64
	for _, fv := range verdicts {
		w := fv.Confidence
		if w <= 0 {
			w = 0.01
		}
		truthSum += float64(fv.TruthPercent) * w
		confWeight += w
		confSum += fv.Confidence
	}
	out.TruthPercent = int(math.Round(truthSum / confWeight))
	out.Confidence = confSum / float64(len(verdicts))

	if coherence(assessed) < a.cfg.MinFrameSimilarity || dispersion(verdicts) > a.cfg.InterFrameThreshold {
		out.Reliability = model.ReliabilityLow
	}
	return out
}

// coherence is the mean pairwise topic similarity across the assessed
// frames. A single frame is trivially coherent.
func coherence(assessed []*model.Frame) float64 {
	if len(assessed) < 2 {
		return 1
	}
	var sum float64
	var pairs int
	for i := 0; i < len(assessed); i++ {
		for j := i + 1; j < len(assessed); j++ {
			sum += frames.Similarity(assessed[i], assessed[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// dispersion is the mean pairwise distance between frame truth
// percentages, on a 0..1 scale.
func dispersion(verdicts []model.FrameVerdict) float64 {
	if len(verdicts) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(verdicts); i++ {
		for j := i + 1; j < len(verdicts); j++ {
			sum += math.Abs(float64(verdicts[i].TruthPercent)-float64(verdicts[j].TruthPercent)) / 100
			pairs++
		}
	}
	return sum / float64(pairs)
}
