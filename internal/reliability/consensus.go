package reliability

import (
	"math"
	"time"

	"github.com/veridex/veridex/internal/model"
)

// Assessment is one model's structured opinion of a domain.
type Assessment struct {
	Model         string           `json:"model"`
	Score         float64          `json:"score"`
	Confidence    float64          `json:"confidence"`
	SourceType    model.SourceType `json:"source_type"`
	EvidenceCited []string         `json:"evidence_cited"`
	Caveats       []string         `json:"caveats"`
}

// PackItem is one entry of the retrieved evidence pack handed to the
// models for grounding. Citations are matched against these URLs.
type PackItem struct {
	URL         string
	PublishedAt time.Time
}

// selectAssessment applies the consensus policy to two independent
// assessments. When the scores agree within the threshold, the
// better-founded one wins: the one citing more of the evidence pack,
// recency-weighted, with the lower score as tie-break (skeptical
// default). Scores are never averaged. Without agreement, the higher
// confidence response wins if it clears the gate; otherwise the caller
// falls back to the configured default.
//
// The selection is symmetric in argument order, which makes consensus
// commutative in model order.
func selectAssessment(a, b Assessment, pack []PackItem, cfg model.ReliabilityConfig, now time.Time) (Assessment, bool) {
	if math.Abs(a.Score-b.Score) < cfg.ConsensusThreshold {
		wa := citationWeight(a.EvidenceCited, pack, cfg.RecencyHalfLife, now)
		wb := citationWeight(b.EvidenceCited, pack, cfg.RecencyHalfLife, now)

		switch {
		case wa > wb:
			return a, true
		case wb > wa:
			return b, true
		case a.Score < b.Score:
			return a, true
		case b.Score < a.Score:
			return b, true
		case a.Model <= b.Model:
			return a, true
		default:
			return b, true
		}
	}

	if a.Confidence >= b.Confidence && a.Confidence >= cfg.ConfidenceGate {
		return a, false
	}
	if b.Confidence > a.Confidence && b.Confidence >= cfg.ConfidenceGate {
		return b, false
	}

	return Assessment{}, false
}

// citationWeight sums recency-decayed weights of the cited pack items. A
// citation outside the pack counts for nothing: being "better founded"
// means grounding in the retrieved evidence, not inventing sources.
func citationWeight(cited []string, pack []PackItem, halfLife time.Duration, now time.Time) float64 {
	if halfLife <= 0 {
		halfLife = 180 * 24 * time.Hour
	}

	byURL := make(map[string]PackItem, len(pack))
	for _, item := range pack {
		byURL[item.URL] = item
	}

	var total float64
	seen := make(map[string]bool, len(cited))
	for _, url := range cited {
		if seen[url] {
			continue
		}
		seen[url] = true

		item, ok := byURL[url]
		if !ok {
			continue
		}
		age := now.Sub(item.PublishedAt)
		if age < 0 {
			age = 0
		}
		total += math.Exp2(-age.Hours() / halfLife.Hours())
	}
	return total
}

// sourceTypeCaps are the deterministic score ceilings per declared source
// type. Enforced in code, never trusted to model output.
var sourceTypeCaps = map[model.SourceType]float64{
	model.SourceTypePropagandaOutlet: 0.15,
	model.SourceTypeContentFarm:      0.25,
	model.SourceTypeSocialMedia:      0.40,
	model.SourceTypeBlog:             0.60,
	model.SourceTypeAdvocacy:         0.65,
}

// applyCap clamps a record's score to its source type's ceiling.
func applyCap(rec model.SourceReliabilityRecord) model.SourceReliabilityRecord {
	if cap, ok := sourceTypeCaps[rec.SourceType]; ok && rec.Score > cap {
		rec.Score = cap
		rec.Caveats = append(rec.Caveats, "score capped by source type")
	}
	return rec
}
