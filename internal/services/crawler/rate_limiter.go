package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out page loads per host
type HostLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultDelay time.Duration
}

// NewHostLimiter creates a limiter allowing one request per delay per host
func NewHostLimiter(defaultDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := extractHost(rawURL)
	if host == "" || l.defaultDelay <= 0 {
		return nil
	}
	return l.limiter(host).Wait(ctx)
}

// SetHostDelay overrides the delay for one host
func (l *HostLimiter) SetHostDelay(host string, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[host] = rate.NewLimiter(rate.Every(delay), 1)
}

// HostDelay returns the delay applied to host
func (l *HostLimiter) HostDelay(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return time.Duration(float64(time.Second) / float64(limiter.Limit()))
	}
	return l.defaultDelay
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.defaultDelay), 1)
		l.limiters[host] = limiter
	}
	return limiter
}

func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
