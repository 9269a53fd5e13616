package model

import "time"

// EvidenceItem is one extracted fact tied to a source and a scope. Items
// are created by the extraction pool and never mutated afterwards; the
// aggregator only references them.
type EvidenceItem struct {
	ID          string    `json:"id"`
	Statement   string    `json:"statement"`
	SourceURL   string    `json:"source_url"`
	Domain      string    `json:"domain,omitempty"`
	ScopeID     string    `json:"scope_id"`
	FrameID     string    `json:"frame_id"`
	Stance      Stance    `json:"stance"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Stance records whether the evidence supports or contradicts the frame's
// assessed statement.
type Stance string

const (
	StanceSupports    Stance = "supports"
	StanceContradicts Stance = "contradicts"
)

// SkippedSource records a URL the extraction pool could not turn into
// evidence. Skips are never loop failures; they feed the fetch
// degradation warning threshold.
type SkippedSource struct {
	URL     string `json:"url"`
	FrameID string `json:"frame_id"`
	Reason  string `json:"reason"`
}
