// Package budget enforces the research budget: iteration and token
// ceilings per frame and per job. Reservation happens before any gateway
// dispatch, never after, so concurrent workers cannot overrun the caps.
package budget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/veridex/veridex/internal/model"
)

// DenialReason says why a reservation was refused.
type DenialReason string

const (
	ReasonFrameExhausted  DenialReason = "frame_iterations_exhausted"
	ReasonTotalExhausted  DenialReason = "total_iterations_exhausted"
	ReasonTokensExhausted DenialReason = "tokens_exhausted"
	ReasonClosed          DenialReason = "tracker_closed"
)

// DeniedError is returned by Reserve when the budget does not cover the
// request. Budget exhaustion is never fatal to the job: the affected
// frame degrades to insufficient evidence with a budget_exceeded warning.
type DeniedError struct {
	Reason  DenialReason
	FrameID string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("budget denied for frame %s: %s", e.FrameID, e.Reason)
}

// IsDenied reports whether err is a budget denial and returns its reason.
func IsDenied(err error) (DenialReason, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}

// Reservation is a granted slice of budget. It must be resolved exactly
// once, by Commit or Release.
type Reservation struct {
	FrameID    string
	Iterations int
	Tokens     int

	// Overrun marks a soft-enforcement grant beyond the caps.
	Overrun bool

	resolved bool
}

// Tracker holds the mutable budget counters under a single-writer mutex.
// Reads outside the lock see only snapshots.
type Tracker struct {
	mu sync.Mutex

	caps model.BudgetConfig

	perFrame    map[string]int
	totalIters  int
	totalTokens int
	closed      bool

	warnings []model.Warning
}

// NewTracker creates a tracker for one job with the given caps.
func NewTracker(caps model.BudgetConfig) *Tracker {
	return &Tracker{
		caps:     caps,
		perFrame: make(map[string]int),
	}
}

// Reserve charges the counters up front and returns a reservation. Under
// hard enforcement a denial is a stop signal for that frame only. Under
// soft enforcement the request is granted past the caps and a
// budget_overrun warning is recorded.
func (t *Tracker) Reserve(frameID string, iterations, tokens int) (*Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, &DeniedError{Reason: ReasonClosed, FrameID: frameID}
	}

	reason, within := t.check(frameID, iterations, tokens)
	if !within && t.caps.EnforceHard {
		return nil, &DeniedError{Reason: reason, FrameID: frameID}
	}

	t.perFrame[frameID] += iterations
	t.totalIters += iterations
	t.totalTokens += tokens

	res := &Reservation{
		FrameID:    frameID,
		Iterations: iterations,
		Tokens:     tokens,
		Overrun:    !within,
	}
	if res.Overrun {
		t.warnings = append(t.warnings, model.Warning{
			Type:     model.WarnBudgetOverrun,
			Severity: model.WarnWarning,
			FrameID:  frameID,
			Stage:    "research",
			Message:  fmt.Sprintf("soft budget overrun: %s", reason),
		})
	}
	return res, nil
}

// check must be called with the lock held.
func (t *Tracker) check(frameID string, iterations, tokens int) (DenialReason, bool) {
	if t.caps.MaxIterationsPerFrame > 0 && t.perFrame[frameID]+iterations > t.caps.MaxIterationsPerFrame {
		return ReasonFrameExhausted, false
	}
	if t.caps.MaxTotalIterations > 0 && t.totalIters+iterations > t.caps.MaxTotalIterations {
		return ReasonTotalExhausted, false
	}
	if t.caps.MaxTotalTokens > 0 && t.totalTokens+tokens > t.caps.MaxTotalTokens {
		return ReasonTokensExhausted, false
	}
	return "", true
}

// Commit settles a reservation against the tokens actually consumed. The
// iteration charge stands; the token charge is adjusted to actual usage.
func (t *Tracker) Commit(res *Reservation, actualTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res.resolved {
		return
	}
	res.resolved = true

	t.totalTokens += actualTokens - res.Tokens
	if t.totalTokens < 0 {
		t.totalTokens = 0
	}
}

// Release returns an unused reservation to the pool, e.g. when the call
// it guarded failed before consuming anything or the job was cancelled.
func (t *Tracker) Release(res *Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res.resolved {
		return
	}
	res.resolved = true

	t.perFrame[res.FrameID] -= res.Iterations
	t.totalIters -= res.Iterations
	t.totalTokens -= res.Tokens
}

// Close refuses all further reservations. Outstanding reservations are
// still releasable, so cancellation cannot leak budget.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Usage returns a snapshot of spent budget.
func (t *Tracker) Usage() model.BudgetUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	perFrame := make(map[string]int, len(t.perFrame))
	for id, n := range t.perFrame {
		perFrame[id] = n
	}
	return model.BudgetUsage{
		IterationsPerFrame: perFrame,
		TotalIterations:    t.totalIters,
		TotalTokens:        t.totalTokens,
	}
}

// Warnings drains the warnings recorded so far.
func (t *Tracker) Warnings() []model.Warning {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.warnings
	t.warnings = nil
	return out
}
