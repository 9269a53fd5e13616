package model

import "time"

// SourceReliabilityRecord is the per-domain trustworthiness assessment
// produced by the multi-model consensus scorer. Records are cached with a
// TTL and invalidated only by explicit re-evaluation.
type SourceReliabilityRecord struct {
	Domain        string     `json:"domain"`
	Score         float64    `json:"score"`      // 0..1
	Confidence    float64    `json:"confidence"` // 0..1
	SourceType    SourceType `json:"source_type"`
	EvidenceCited []string   `json:"evidence_cited,omitempty"`
	Caveats       []string   `json:"caveats,omitempty"`
	EvaluatedAt   time.Time  `json:"evaluated_at"`
}

// SourceType is the declared category of a source. Score ceilings per type
// are enforced in code, never trusted to model output.
type SourceType string

const (
	SourceTypeNewsOutlet       SourceType = "news_outlet"
	SourceTypeWireService      SourceType = "wire_service"
	SourceTypeAcademic         SourceType = "academic"
	SourceTypeGovernment       SourceType = "government"
	SourceTypeEncyclopedia     SourceType = "encyclopedia"
	SourceTypeAdvocacy         SourceType = "advocacy_group"
	SourceTypeBlog             SourceType = "blog"
	SourceTypeSocialMedia      SourceType = "social_media"
	SourceTypeContentFarm      SourceType = "content_farm"
	SourceTypePropagandaOutlet SourceType = "propaganda_outlet"
	SourceTypeUnknown          SourceType = "unknown"
)
