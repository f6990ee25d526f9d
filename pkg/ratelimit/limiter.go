// Package ratelimit gates outgoing attempts with a client-side token bucket
// and honors Retry-After pauses announced by the server.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	bbsRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bbs_rate_limit_waits_total",
		Help: "Total number of attempts that had to wait for the rate limiter",
	})

	bbsRateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bbs_rate_limit_pauses_total",
		Help: "Total number of Retry-After pauses announced by the server",
	})
)

// MaxPause bounds a single Retry-After pause.
const MaxPause = 2 * time.Minute

// Limiter gates attempts. A nil *Limiter never blocks.
type Limiter struct {
	bucket *rate.Limiter
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewLimiter creates a limiter allowing rps attempts per second with the
// given burst. rps <= 0 disables the token bucket; Retry-After pauses
// still apply.
func NewLimiter(rps float64, burst int, logger zerolog.Logger) *Limiter {
	l := &Limiter{logger: logger, now: time.Now}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return l
}

// Wait blocks until an attempt may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	if pause := l.pauseRemaining(); pause > 0 {
		bbsRateLimitWaitsTotal.Inc()
		l.logger.Debug().Dur("pause", pause).Msg("Waiting for server pause to end")
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.bucket == nil {
		return nil
	}
	if !l.bucket.Allow() {
		bbsRateLimitWaitsTotal.Inc()
		return l.bucket.Wait(ctx)
	}
	return nil
}

// UpdateFromHeaders records a Retry-After announced on 429 or 503 responses.
func (l *Limiter) UpdateFromHeaders(status int, headers http.Header) {
	if l == nil {
		return
	}
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	pause, ok := parseRetryAfter(headers.Get("Retry-After"), l.now())
	if !ok {
		return
	}
	if pause > MaxPause {
		pause = MaxPause
	}

	l.mu.Lock()
	until := l.now().Add(pause)
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.mu.Unlock()

	bbsRateLimitPausesTotal.Inc()
	l.logger.Warn().
		Int("status", status).
		Dur("pause", pause).
		Msg("Server requested a pause")
}

// PausedUntil returns the end of the current server pause, zero if none.
func (l *Limiter) PausedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pausedUntil
}

func (l *Limiter) pauseRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pausedUntil.Sub(l.now())
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
