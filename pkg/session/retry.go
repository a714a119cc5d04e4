package session

import (
	"math"
	"sync"
	"time"
)

// RetryPolicy decides whether a failed connection attempt should be retried
// and how long to wait. One policy instance lives for the whole session, so
// the retry budget spans reconnects. It decays: a session that stays healthy
// past the cooldown window does not inherit an exhausted budget from an old
// transient blip.
type RetryPolicy struct {
	BaseDelay time.Duration
	Factor    float64
	MaxDelay  time.Duration
	// TransientCeiling bounds backoff retries for network-class errors.
	TransientCeiling int
	// GenericCeiling bounds plain retries for unclassified errors.
	GenericCeiling int
	Cooldown       time.Duration

	now func() time.Time

	mu          sync.Mutex
	count       int
	lastErrorAt time.Time
}

// NewRetryPolicy returns the one policy used by every product call site.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		BaseDelay:        400 * time.Millisecond,
		Factor:           1.5,
		MaxDelay:         10 * time.Second,
		TransientCeiling: 5,
		GenericCeiling:   3,
		Cooldown:         60 * time.Second,
		now:              time.Now,
	}
}

// Next records an error of the given kind and returns the backoff delay and
// whether to retry at all. Terminal kinds never retry, at any count.
func (p *RetryPolicy) Next(kind Kind) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.lastErrorAt.IsZero() && now.Sub(p.lastErrorAt) > p.Cooldown {
		p.count = 0
	}
	p.lastErrorAt = now

	if kind.Terminal() {
		return 0, false
	}

	p.count++

	ceiling := p.GenericCeiling
	if kind == KindTransientNetwork || kind == KindDeviceUnavailable {
		ceiling = p.TransientCeiling
	}
	if p.count > ceiling {
		return 0, false
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Factor, float64(p.count-1)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay, true
}

// Count returns the current retry attempt number.
func (p *RetryPolicy) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Reset clears the budget; used by user-triggered manual retry.
func (p *RetryPolicy) Reset() {
	p.mu.Lock()
	p.count = 0
	p.lastErrorAt = time.Time{}
	p.mu.Unlock()
}
