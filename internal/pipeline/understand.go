package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/model"
)

const understandSystem = `You decompose an input into atomic, individually checkable claims.
For each claim report its centrality to the input's main thesis (HIGH, MEDIUM,
or LOW), whether it asserts or counters that thesis, and its kind: a factual
assertion, an opinion, or a prediction. Split compound statements; never merge
distinct claims. Reply with only a JSON object:
{"subject":"one-line subject","claims":[{"text":...,"centrality":"HIGH"|"MEDIUM"|"LOW",
"polarity":"asserts"|"counters","kind":"assertion"|"opinion"|"prediction"}]}.`

type understoodClaim struct {
	Text       string `json:"text"`
	Centrality string `json:"centrality"`
	Polarity   string `json:"polarity"`
	Kind       string `json:"kind"`
}

type understanding struct {
	Subject string            `json:"subject"`
	Claims  []understoodClaim `json:"claims"`
}

// understand turns the raw input into atomic claims. For a bare claim
// input a model failure degrades to a single verbatim claim; for article
// input there is nothing sensible to fall back to and the job fails.
func (p *Pipeline) understand(ctx context.Context, inputType model.InputType, text string) (string, []model.AtomicClaim, gateway.Usage, error) {
	var resp understanding
	usage, err := p.primary.CompleteJSON(ctx, gateway.Request{
		System: understandSystem,
		Prompt: text,
	}, &resp)
	if err != nil {
		if inputType == model.InputClaim {
			p.log.Warn("claim decomposition failed, using input verbatim", "error", err)
			claim := model.AtomicClaim{
				ID:         "claim-001",
				Text:       strings.TrimSpace(text),
				Centrality: model.CentralityHigh,
				Polarity:   model.PolarityAsserts,
				Kind:       model.ClaimKindAssertion,
			}
			return claim.Text, []model.AtomicClaim{claim}, usage, nil
		}
		return "", nil, usage, fmt.Errorf("understand input: %w", err)
	}

	claims := make([]model.AtomicClaim, 0, len(resp.Claims))
	for i, uc := range resp.Claims {
		if strings.TrimSpace(uc.Text) == "" {
			continue
		}
		claims = append(claims, model.AtomicClaim{
			ID:         fmt.Sprintf("claim-%03d", i+1),
			Text:       strings.TrimSpace(uc.Text),
			Centrality: parseCentrality(uc.Centrality),
			Polarity:   parsePolarity(uc.Polarity),
			Kind:       parseKind(uc.Kind),
		})
	}

	subject := strings.TrimSpace(resp.Subject)
	if subject == "" {
		subject = firstLine(text)
	}
	if len(claims) == 0 {
		return subject, nil, usage, fmt.Errorf("understand input: no claims extracted")
	}
	return subject, claims, usage, nil
}

func parseCentrality(s string) model.Centrality {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(model.CentralityHigh):
		return model.CentralityHigh
	case string(model.CentralityLow):
		return model.CentralityLow
	default:
		return model.CentralityMedium
	}
}

func parsePolarity(s string) model.Polarity {
	if strings.EqualFold(strings.TrimSpace(s), string(model.PolarityCounters)) {
		return model.PolarityCounters
	}
	return model.PolarityAsserts
}

func parseKind(s string) model.ClaimKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(model.ClaimKindOpinion):
		return model.ClaimKindOpinion
	case string(model.ClaimKindPrediction):
		return model.ClaimKindPrediction
	default:
		return model.ClaimKindAssertion
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
