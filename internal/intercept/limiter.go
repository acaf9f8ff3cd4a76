package intercept

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter drops requests that arrive within a window of the last one it let
// through. Dropped requests do not extend the window.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter. A zero window lets everything through.
func NewLimiter(window time.Duration) *Limiter {
	if window <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(window), 1)}
}

// ShouldProcess reports whether a request seen at now may be handled.
func (l *Limiter) ShouldProcess(now time.Time) bool {
	return l.lim.AllowN(now, 1)
}
