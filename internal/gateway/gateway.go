// Package gateway wraps all outbound model and search calls behind one
// capability surface: ask a model for structured output, or run a web
// query. Timeouts, retries, throttle classification, and structured
// output repair live here so callers only see domain errors.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrThrottled marks a rate-limit response. The extraction pool keys
	// its per-frame backoff on this.
	ErrThrottled = errors.New("gateway: throttled")

	// ErrStructuredOutput means the model failed to produce a
	// schema-conformant object even after the repair retry. Stages fall
	// back to their best partial result.
	ErrStructuredOutput = errors.New("gateway: structured output failure")
)

// Usage reports token consumption of a single call, used for budget
// commits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is one structured-output completion request.
type Request struct {
	System    string
	Prompt    string
	Model     string // Empty selects the client's default
	MaxTokens int
}

// ModelClient asks one model for structured output. Implementations must
// honor ctx cancellation and classify rate limiting as ErrThrottled.
type ModelClient interface {
	Name() string
	CompleteJSON(ctx context.Context, req Request, out any) (Usage, error)
}

// SearchHit is one result from the search gateway.
type SearchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchClient runs a web query.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// backoffDelay returns the bounded exponential delay for retry attempt n
// (0-based).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepCtx waits for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
