package model

import "sort"

// Frame (claim assessment boundary) is an evidence-emergent grouping of
// compatible evidence scopes that requires its own verdict, such as two
// distinct legal proceedings about the same subject. Frames are mutated
// only by merge during deduplication and are never split once research
// has begun, because budget allocation depends on a fixed frame count.
type Frame struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	AssessedStatement string `json:"assessed_statement"`
	Jurisdiction      string `json:"jurisdiction,omitempty"`
	MergedFrom        []string `json:"merged_from,omitempty"` // IDs absorbed during dedup
}

// EvidenceScope is per-source methodological metadata: the methodology,
// jurisdiction, or standard the source operates under. Many evidence items
// inside one frame can share a scope; a scope is narrower than a frame.
type EvidenceScope struct {
	ID           string `json:"id"`
	Methodology  string `json:"methodology,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Standard     string `json:"standard,omitempty"`
}

// Arena owns claims, frames, and their many-to-many assignment, keyed by
// stable string IDs. Assignment is an explicit edge table so that frame
// merges are index rewrites rather than object mutation, and claim IDs
// survive every merge.
type Arena struct {
	Claims map[string]*AtomicClaim
	Frames map[string]*Frame
	Scopes map[string]*EvidenceScope

	// edges maps frame ID to the ordered set of member claim IDs.
	edges map[string][]string
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		Claims: make(map[string]*AtomicClaim),
		Frames: make(map[string]*Frame),
		Scopes: make(map[string]*EvidenceScope),
		edges:  make(map[string][]string),
	}
}

// Assign adds a claim to a frame. Assigning an already-assigned pair is a
// no-op, which keeps dedup merges idempotent.
func (a *Arena) Assign(frameID, claimID string) {
	for _, id := range a.edges[frameID] {
		if id == claimID {
			return
		}
	}
	a.edges[frameID] = append(a.edges[frameID], claimID)
	if c, ok := a.Claims[claimID]; ok {
		for _, fid := range c.FrameIDs {
			if fid == frameID {
				return
			}
		}
		c.FrameIDs = append(c.FrameIDs, frameID)
	}
}

// Members returns the claim IDs assigned to a frame, in assignment order.
func (a *Arena) Members(frameID string) []string {
	return a.edges[frameID]
}

// MergeFrames rewrites the edge table so that all of src's members belong
// to dst, records src in dst's merge history, and removes src. Claim IDs
// are untouched apart from the frame reference rewrite.
func (a *Arena) MergeFrames(dstID, srcID string) {
	if dstID == srcID {
		return
	}
	dst, ok := a.Frames[dstID]
	if !ok {
		return
	}
	src, ok := a.Frames[srcID]
	if !ok {
		return
	}

	for _, claimID := range a.edges[srcID] {
		if c, ok := a.Claims[claimID]; ok {
			c.FrameIDs = replaceID(c.FrameIDs, srcID, dstID)
		}
		a.Assign(dstID, claimID)
	}
	delete(a.edges, srcID)

	dst.MergedFrom = append(dst.MergedFrom, srcID)
	dst.MergedFrom = append(dst.MergedFrom, src.MergedFrom...)
	delete(a.Frames, srcID)
}

// Unassign removes a claim from a frame, leaving the claim in the arena
// as an orphan for audit.
func (a *Arena) Unassign(frameID, claimID string) {
	members := a.edges[frameID]
	for i, id := range members {
		if id == claimID {
			a.edges[frameID] = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if c, ok := a.Claims[claimID]; ok {
		c.FrameIDs = removeID(c.FrameIDs, frameID)
	}
}

// FrameIDs returns all frame IDs in lexical order for deterministic walks.
func (a *Arena) FrameIDs() []string {
	ids := make([]string, 0, len(a.Frames))
	for id := range a.Frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OrphanedClaims returns claims with no frame assignment.
func (a *Arena) OrphanedClaims() []*AtomicClaim {
	var orphans []*AtomicClaim
	for _, id := range a.claimIDs() {
		if c := a.Claims[id]; c.IsOrphaned() {
			orphans = append(orphans, c)
		}
	}
	return orphans
}

func (a *Arena) claimIDs() []string {
	ids := make([]string, 0, len(a.Claims))
	for id := range a.Claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func replaceID(ids []string, old, new string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id == old {
			id = new
		}
		dup := false
		for _, prev := range out {
			if prev == id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
