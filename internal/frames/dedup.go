package frames

import (
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// Dedup merges near-duplicate frames in place. Two frames merge when
// their similarity meets the threshold; the survivor is always the frame
// with the lower ID, so IDs are stable and a second pass over an
// already-merged set is a no-op. Dedup runs to a fixpoint because a merge
// can push the union frame over the threshold with a third frame.
//
// Over-merging is worse than over-splitting for auditability, so a frame
// count at or above the advisory limit only emits a warning.
func Dedup(arena *model.Arena, cfg model.FramesConfig) []model.Warning {
	var warnings []model.Warning

	for {
		dst, src, ok := findMergeablePair(arena, cfg.SimilarityThreshold)
		if !ok {
			break
		}
		arena.MergeFrames(dst, src)
	}

	if cfg.OversplitAdvisory > 0 && len(arena.Frames) >= cfg.OversplitAdvisory {
		warnings = append(warnings, model.Warning{
			Type:     model.WarnFrameOversplit,
			Severity: model.WarnInfo,
			Stage:    "frames",
			Message:  fmt.Sprintf("%d frames detected; possible over-splitting", len(arena.Frames)),
		})
	}

	return warnings
}

// findMergeablePair walks frame IDs in lexical order and returns the
// first pair over the threshold, lower ID first. Deterministic given the
// same frame set.
func findMergeablePair(arena *model.Arena, threshold float64) (dst, src string, ok bool) {
	ids := arena.FrameIDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if Similarity(arena.Frames[ids[i]], arena.Frames[ids[j]]) >= threshold {
				return ids[i], ids[j], true
			}
		}
	}
	return "", "", false
}

// Similarity scores topic overlap between two frames: Jaccard over the
// token sets of label plus assessed statement, with a fixed boost when
// both declare the same jurisdiction and a penalty when they declare
// different ones.
func Similarity(a, b *model.Frame) float64 {
	ta := tokens(a.Label + " " + a.AssessedStatement)
	tb := tokens(b.Label + " " + b.AssessedStatement)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	score := float64(intersection) / float64(union)

	switch {
	case a.Jurisdiction != "" && a.Jurisdiction == b.Jurisdiction:
		score += 0.15
	case a.Jurisdiction != "" && b.Jurisdiction != "" && a.Jurisdiction != b.Jurisdiction:
		score -= 0.25
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "was": true, "were": true, "with": true,
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(s)) {
		tok := strings.Trim(raw, ".,;:!?\"'()[]")
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}
