// Package gate implements the admission checks between pipeline stages.
// Gates downgrade confidence or annotate; they never halt the job.
package gate

import (
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// Rejection records a claim that did not pass claim admission, kept for
// the report's audit trail.
type Rejection struct {
	Claim  model.AtomicClaim `json:"claim"`
	Reason string            `json:"reason"`
}

// AdmitClaims is the claim admission gate run before research. Verifiable
// assertions pass; opinions and predictions pass flagged for transparency
// and are excluded from verdict math; everything else is rejected with a
// reason.
func AdmitClaims(claims []model.AtomicClaim) ([]model.AtomicClaim, []Rejection) {
	admitted := make([]model.AtomicClaim, 0, len(claims))
	var rejected []Rejection

	for _, c := range claims {
		text := strings.TrimSpace(c.Text)
		switch {
		case text == "":
			rejected = append(rejected, Rejection{Claim: c, Reason: "empty claim text"})
		case strings.HasSuffix(text, "?"):
			rejected = append(rejected, Rejection{Claim: c, Reason: "question, not an assertion"})
		case c.Kind == model.ClaimKindOpinion || c.Kind == model.ClaimKindPrediction:
			c.Reason = fmt.Sprintf("flagged %s: retained for transparency, excluded from verdict", c.Kind)
			admitted = append(admitted, c)
		case c.Kind == model.ClaimKindAssertion:
			admitted = append(admitted, c)
		default:
			rejected = append(rejected, Rejection{
				Claim:  c,
				Reason: fmt.Sprintf("unclassifiable claim kind %q", c.Kind),
			})
		}
	}

	return admitted, rejected
}

// AdmitVerdict is the verdict admission gate run before finalization. A
// frame verdict backed by too few sources or too little evidence is
// marked low confidence and surfaced, not blocked.
func AdmitVerdict(v model.FrameVerdict, cfg model.VerdictConfig) (model.FrameVerdict, *model.Warning) {
	evidenceItems := v.EvidenceFor + v.EvidenceAgainst

	var reasons []string
	if v.SourceCount < cfg.MinSources {
		reasons = append(reasons, fmt.Sprintf("%d sources (min %d)", v.SourceCount, cfg.MinSources))
	}
	if evidenceItems < cfg.MinEvidenceItems {
		reasons = append(reasons, fmt.Sprintf("%d evidence items (min %d)", evidenceItems, cfg.MinEvidenceItems))
	}

	if len(reasons) == 0 {
		return v, nil
	}

	v.LowConfidence = true
	if v.Confidence > 0.5 {
		v.Confidence = 0.5
	}

	return v, &model.Warning{
		Type:     model.WarnLowConfidence,
		Severity: model.WarnWarning,
		FrameID:  v.FrameID,
		Stage:    "verdict",
		Message:  "low-confidence verdict: " + strings.Join(reasons, ", "),
	}
}
