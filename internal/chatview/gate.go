package chatview

import (
	"time"

	"golang.org/x/time/rate"
)

// ScrollGate lets at most one page load through per window. It owns its last
// fired time, so two views never share a gate.
type ScrollGate struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewScrollGate returns a gate that opens once per window.
func NewScrollGate(window time.Duration, now func() time.Time) *ScrollGate {
	if now == nil {
		now = time.Now
	}
	return &ScrollGate{limiter: rate.NewLimiter(rate.Every(window), 1), now: now}
}

// Allow reports whether the gate is open and, if so, closes it for one window.
func (g *ScrollGate) Allow() bool {
	return g.limiter.AllowN(g.now(), 1)
}
