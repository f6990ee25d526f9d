package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	bbsRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bbs_retries_total",
		Help: "Total number of retry attempts by failure kind",
	}, []string{"kind"})

	bbsRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bbs_retry_backoff_seconds",
		Help:    "Backoff duration for retries by failure kind",
		Buckets: []float64{0.1, 0.3, 0.6, 1.2, 2.5, 5, 10},
	}, []string{"kind"})

	bbsRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bbs_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by failure kind",
	}, []string{"kind"})
)

// RetryPolicy decides whether a failed attempt is tried again and how long
// to wait first.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. It doubles per attempt.
	BaseDelay time.Duration

	// JitterMax bounds the random extra delay added to every wait.
	JitterMax time.Duration

	// MaxDelay caps the exponential part. Zero means no cap.
	MaxDelay time.Duration

	// Jitter returns a value in [0, max). Nil uses a uniform random source.
	Jitter func(max time.Duration) time.Duration
}

// RetryDecision is the outcome of RetryPolicy.ShouldRetry.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// DefaultRetryPolicy returns the policy used when Config.Retry is zero:
// three attempts, 300ms base, up to 100ms jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		JitterMax:   100 * time.Millisecond,
	}
}

// IsRetriable reports whether a failure is transient: a timeout, no response
// at all, or a status in 500..599. Cancellation and local failures are never
// retried.
func IsRetriable(f Failure) bool {
	if f.StatusCode >= http.StatusInternalServerError && f.StatusCode < 600 {
		return true
	}
	if f.StatusCode != 0 || f.Local {
		return false
	}
	if f.Err == nil || errors.Is(f.Err, context.Canceled) {
		return false
	}
	return true
}

// ShouldRetry decides for the given 1-based attempt number.
func (p RetryPolicy) ShouldRetry(f Failure, attempt int) RetryDecision {
	if !IsRetriable(f) || attempt >= p.MaxAttempts {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Delay: p.Backoff(attempt)}
}

// Backoff returns BaseDelay * 2^(attempt-1) plus jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	return delay + p.jitter()
}

func (p RetryPolicy) jitter() time.Duration {
	if p.JitterMax <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.JitterMax)
	}
	return time.Duration(rand.Int64N(int64(p.JitterMax)))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
