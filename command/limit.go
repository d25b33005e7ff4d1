package command

import (
	"time"

	"golang.org/x/time/rate"
)

// Limits holds token bucket rate limits for command families.
// It is not safe for concurrent use.
type Limits struct {
	m map[string]*rate.Limiter
}

// NewLimits creates an empty set of limits.
func NewLimits() *Limits {
	return &Limits{m: make(map[string]*rate.Limiter)}
}

// Set limits a family to one use per every with the given burst.
func (l *Limits) Set(family string, every time.Duration, burst int) {
	l.m[family] = rate.NewLimiter(rate.Every(every), burst)
}

// Try spends a token from a family's bucket. It never blocks. If no token
// is available, the result is the time until one will be along with false.
// Families without limits always succeed.
func (l *Limits) Try(family string, now time.Time) (time.Duration, bool) {
	if l == nil || family == "" {
		return 0, true
	}
	lim := l.m[family]
	if lim == nil {
		return 0, true
	}
	if lim.AllowN(now, 1) {
		return 0, true
	}
	r := lim.Limit()
	if r <= 0 {
		// A zero rate never refills.
		return time.Duration(1<<63 - 1), false
	}
	need := 1 - lim.TokensAt(now)
	wait := time.Duration(need / float64(r) * float64(time.Second))
	return wait, false
}
