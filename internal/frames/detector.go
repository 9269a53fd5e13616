// Package frames groups atomic claims into evidence-emergent analytical
// frames and merges near-duplicate frames before research begins.
package frames

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/veridex/veridex/internal/gateway"
	"github.com/veridex/veridex/internal/logging"
	"github.com/veridex/veridex/internal/model"
)

const detectSystem = `You are an analyst grouping factual claims into assessment frames.
A frame is one coherent question that needs its own verdict, such as a single
legal proceeding, a single statistical record, or a single event. Group claims
that must be judged together; separate claims that different kinds of evidence
would answer. Reply with only a JSON object.`

type detectedFrame struct {
	Label             string   `json:"label"`
	AssessedStatement string   `json:"assessed_statement"`
	Jurisdiction      string   `json:"jurisdiction"`
	ClaimIDs          []string `json:"claim_ids"`
}

type detectResponse struct {
	Frames []detectedFrame `json:"frames"`
}

// Detector proposes frames for a claim set. In deterministic mode the
// model is bypassed and a single frame holds every claim, which makes
// repeated detection reproducible for regression runs.
type Detector struct {
	client gateway.ModelClient
	cfg    model.FramesConfig
}

// NewDetector creates a detector.
func NewDetector(client gateway.ModelClient, cfg model.FramesConfig) *Detector {
	return &Detector{client: client, cfg: cfg}
}

// Detect populates the arena with frames and claim assignments. Claims
// the model leaves out stay in the arena as orphans for audit. The
// returned usage feeds the budget tracker.
func (d *Detector) Detect(ctx context.Context, arena *model.Arena, background string) (gateway.Usage, error) {
	if d.cfg.Deterministic || d.client == nil {
		d.detectSingleFrame(arena, background)
		return gateway.Usage{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Background:\n")
	sb.WriteString(background)
	sb.WriteString("\n\nClaims:\n")
	for _, id := range sortedClaimIDs(arena) {
		c := arena.Claims[id]
		fmt.Fprintf(&sb, "- id=%s centrality=%s polarity=%s text=%s\n", c.ID, c.Centrality, c.Polarity, c.Text)
	}
	sb.WriteString("\nReturn {\"frames\":[{\"label\":...,\"assessed_statement\":...,\"jurisdiction\":...,\"claim_ids\":[...]}]}.")

	var resp detectResponse
	usage, err := d.client.CompleteJSON(ctx, gateway.Request{
		System: detectSystem,
		Prompt: sb.String(),
	}, &resp)
	if err != nil {
		// Structured-output failure degrades to the deterministic layout
		// rather than failing the job.
		logging.New("frames").Warn("frame detection degraded to single frame", "error", err)
		d.detectSingleFrame(arena, background)
		return usage, nil
	}

	for i, df := range resp.Frames {
		frame := &model.Frame{
			ID:                fmt.Sprintf("frame-%03d", i+1),
			Label:             strings.TrimSpace(df.Label),
			AssessedStatement: strings.TrimSpace(df.AssessedStatement),
			Jurisdiction:      strings.TrimSpace(df.Jurisdiction),
		}
		if frame.Label == "" {
			frame.Label = fmt.Sprintf("Frame %d", i+1)
		}
		arena.Frames[frame.ID] = frame
		for _, claimID := range df.ClaimIDs {
			if _, ok := arena.Claims[claimID]; ok {
				arena.Assign(frame.ID, claimID)
			}
		}
	}

	if len(arena.Frames) == 0 {
		d.detectSingleFrame(arena, background)
	}

	return usage, nil
}

// detectSingleFrame assigns every claim to one frame derived from the
// background. Deterministic by construction.
func (d *Detector) detectSingleFrame(arena *model.Arena, background string) {
	frame := &model.Frame{
		ID:                "frame-001",
		Label:             "Primary assessment",
		AssessedStatement: strings.TrimSpace(background),
	}
	if frame.AssessedStatement == "" && len(arena.Claims) > 0 {
		frame.AssessedStatement = arena.Claims[sortedClaimIDs(arena)[0]].Text
	}
	arena.Frames[frame.ID] = frame
	for _, id := range sortedClaimIDs(arena) {
		arena.Assign(frame.ID, id)
	}
}

func sortedClaimIDs(arena *model.Arena) []string {
	ids := make([]string, 0, len(arena.Claims))
	for id := range arena.Claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
