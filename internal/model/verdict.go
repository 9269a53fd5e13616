package model

// FrameVerdict is the per-frame outcome: a truth percentage with
// calibrated confidence, plus the evidence tallies that produced it.
type FrameVerdict struct {
	FrameID         string   `json:"frame_id"`
	TruthPercent    int      `json:"truth_percent"` // 0..100
	Confidence      float64  `json:"confidence"`    // 0..1
	EvidenceFor     int      `json:"evidence_for"`
	EvidenceAgainst int      `json:"evidence_against"`
	SourceCount     int      `json:"source_count"`
	LowConfidence   bool     `json:"low_confidence"`
	Rationale       string   `json:"rationale,omitempty"`
}

// VerdictReliability tags whether the article-level average is meaningful.
type VerdictReliability string

const (
	// ReliabilityHigh means the frames answer closely related questions
	// and the average can be read at face value.
	ReliabilityHigh VerdictReliability = "high"
	// ReliabilityLow means the frames answer materially different
	// questions; callers should read per-frame verdicts, not the average.
	ReliabilityLow VerdictReliability = "low"
)

// ArticleVerdict is the final aggregated outcome across all frames.
type ArticleVerdict struct {
	TruthPercent  int                `json:"truth_percent"`
	Confidence    float64            `json:"confidence"`
	Reliability   VerdictReliability `json:"article_verdict_reliability"`
	FrameVerdicts []FrameVerdict     `json:"frame_verdicts"`
	Warnings      []Warning          `json:"warnings,omitempty"`
}
