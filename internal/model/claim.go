package model

// AtomicClaim is a single verifiable assertion extracted from the input.
// Claims are created once during the understanding stage and are immutable
// after claim admission; a claim whose frame turns out to be invalid is
// marked unassigned, never deleted.
type AtomicClaim struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Centrality Centrality `json:"centrality"`
	Polarity   Polarity   `json:"polarity"`
	FrameIDs   []string   `json:"frame_ids,omitempty"` // Empty means orphaned
	Kind       ClaimKind  `json:"kind"`
	Reason     string     `json:"reason,omitempty"` // Admission annotation from Gate 1
}

// Centrality ranks how load-bearing a claim is for the input's thesis.
type Centrality string

const (
	CentralityHigh   Centrality = "HIGH"
	CentralityMedium Centrality = "MEDIUM"
	CentralityLow    Centrality = "LOW"
)

// Polarity records whether the claim asserts or counters the thesis.
type Polarity string

const (
	PolarityAsserts  Polarity = "asserts"
	PolarityCounters Polarity = "counters"
)

// ClaimKind classifies a claim for admission purposes.
type ClaimKind string

const (
	ClaimKindAssertion  ClaimKind = "assertion"  // Verifiable factual assertion
	ClaimKindOpinion    ClaimKind = "opinion"    // Kept for transparency, excluded from verdict math
	ClaimKindPrediction ClaimKind = "prediction" // Same treatment as opinion
)

// IsOrphaned reports whether the claim has no frame assignment.
func (c AtomicClaim) IsOrphaned() bool {
	return len(c.FrameIDs) == 0
}

// Verifiable reports whether the claim participates in verdict math.
func (c AtomicClaim) Verifiable() bool {
	return c.Kind == ClaimKindAssertion
}
