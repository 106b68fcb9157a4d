// Package ratelimit implements the per-participant inbound-message
// token bucket feeding the RATE_LIMITED error code: a fixed-rate
// golang.org/x/time/rate bucket per participant, created lazily and
// discarded on disconnect.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per participant.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// New constructs a Limiter enforcing requestsPerMinute per participant,
// with a burst capacity of burst.
func New(requestsPerMinute, burst int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether participantID may send another message right
// now, consuming a token if so. Each participant gets its own
// independent bucket, created lazily.
func (l *Limiter) Allow(participantID string) bool {
	return l.bucketFor(participantID).Allow()
}

// Remove discards a participant's bucket (on disconnect), preventing
// unbounded growth of the bucket map over a long-lived broker process.
func (l *Limiter) Remove(participantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, participantID)
}

func (l *Limiter) bucketFor(participantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[participantID]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[participantID] = b
	}
	return b
}

// Reserved is a helper for tests: reports how long a caller would need
// to wait for its next token, without consuming one.
func (l *Limiter) Reserved(participantID string) time.Duration {
	b := l.bucketFor(participantID)
	r := b.ReserveN(time.Now(), 1)
	defer r.Cancel()
	return r.Delay()
}
