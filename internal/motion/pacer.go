package motion

import (
	"sync"
	"time"
)

// Pacer enforces a minimum spacing between candidates before they reach
// the gate, independent of capture cadence.
type Pacer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewPacer creates a pacer. A nil clock means time.Now.
func NewPacer(interval time.Duration, now func() time.Time) *Pacer {
	if now == nil {
		now = time.Now
	}
	return &Pacer{interval: interval, now: now}
}

// Allow reports whether a candidate may pass now and, if so, records it.
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	if !p.last.IsZero() && t.Sub(p.last) < p.interval {
		return false
	}
	p.last = t
	return true
}

func (p *Pacer) Reset() {
	p.mu.Lock()
	p.last = time.Time{}
	p.mu.Unlock()
}
