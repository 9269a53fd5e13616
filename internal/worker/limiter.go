// Package worker provides the shared concurrency primitives: per-domain
// politeness rate limiting and the batch job pool.
package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies per-domain rate limiting so that one slow or strict
// host never throttles fetches against every other host.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter with the given default per-domain rate.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 3
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until the URL's domain allows another request or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain, err := domainOf(rawURL)
	if err != nil {
		return err
	}
	return l.limiterFor(domain).Wait(ctx)
}

// WaitWithDelay additionally honors a host-requested crawl delay after
// rate clearance.
func (l *Limiter) WaitWithDelay(ctx context.Context, rawURL string, delay time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetDomainRate overrides the rate for one domain.
func (l *Limiter) SetDomainRate(domain string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[domain] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[domain]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[domain]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[domain] = limiter
	return limiter
}

func domainOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
