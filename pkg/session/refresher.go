// Package session coordinates refresh-token exchanges so that at most one
// exchange is in flight per credential store, however many requests hit an
// expired access token at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/bbs-client/pkg/credentials"
	"github.com/Sternrassler/bbs-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoRefreshToken means the store held no refresh token to exchange.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionTerminated wraps a missing refresh token or a rejected
	// exchange. The store has been cleared by the time it is returned.
	// Store read and write errors are returned without it.
	ErrSessionTerminated = errors.New("session terminated")
)

var bbsSessionRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bbs_session_refreshes_total",
	Help: "Refresh flights by result (success, failed, no_token, already_refreshed, store_error)",
}, []string{"result"})

// DefaultTimeout bounds one exchange when the caller gives none.
const DefaultTimeout = 15 * time.Second

const flightKey = "refresh"

// Exchanger trades a refresh token for a new credential pair. A missing
// refresh token in the result means the server did not rotate it.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (credentials.Credentials, error)
}

// ExchangerFunc adapts a function to Exchanger.
type ExchangerFunc func(ctx context.Context, refreshToken string) (credentials.Credentials, error)

// Exchange implements Exchanger.
func (f ExchangerFunc) Exchange(ctx context.Context, refreshToken string) (credentials.Credentials, error) {
	return f(ctx, refreshToken)
}

// Refresher owns the refresh flight for one store.
type Refresher struct {
	store     credentials.Store
	exchanger Exchanger
	timeout   time.Duration
	logger    zerolog.Logger

	group     singleflight.Group
	exchanges atomic.Int64

	mu         sync.Mutex
	terminated []func(reason error)
}

// NewRefresher creates a refresher. A timeout of 0 uses DefaultTimeout.
func NewRefresher(store credentials.Store, exchanger Exchanger, timeout time.Duration) *Refresher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Refresher{
		store:     store,
		exchanger: exchanger,
		timeout:   timeout,
		logger:    logging.NewLogger("bbs-session"),
	}
}

// OnTerminated registers fn to be called whenever a refresh fails and the
// session is cleared. fn runs once per failed flight, on the refreshing
// goroutine, before waiting callers are released. The flight is already
// forgotten at that point, so fn may call Refresh; that starts a new flight.
func (r *Refresher) OnTerminated(fn func(reason error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, fn)
}

// Exchanges returns how many exchanges were started.
func (r *Refresher) Exchanges() int64 {
	return r.exchanges.Load()
}

// Refresh returns fresh credentials, joining the flight already in progress
// if there is one. staleAccess is the access token the caller saw rejected;
// when the store already holds a different one, that pair is returned
// without an exchange. A caller whose ctx ends stops waiting without
// cancelling the flight for everyone else.
func (r *Refresher) Refresh(ctx context.Context, staleAccess string) (credentials.Credentials, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey, func() (interface{}, error) {
		creds, reason, err := r.refresh(flightCtx, staleAccess)
		if reason != nil {
			r.group.Forget(flightKey)
			r.notifyTerminated(reason)
		}
		return creds, err
	})

	select {
	case <-ctx.Done():
		return credentials.Credentials{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return credentials.Credentials{}, res.Err
		}
		return res.Val.(credentials.Credentials), nil
	}
}

// refresh runs one flight. reason is set when the session was terminated.
func (r *Refresher) refresh(ctx context.Context, staleAccess string) (creds credentials.Credentials, reason, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	current, err := r.store.Get(ctx)
	if err != nil {
		bbsSessionRefreshesTotal.WithLabelValues("store_error").Inc()
		return credentials.Credentials{}, nil, fmt.Errorf("read credentials: %w", err)
	}
	if current != nil && current.AccessToken != "" && current.AccessToken != staleAccess {
		bbsSessionRefreshesTotal.WithLabelValues("already_refreshed").Inc()
		r.logger.Debug().Msg("Access token already replaced, skipping exchange")
		return *current, nil, nil
	}
	if current == nil || current.RefreshToken == "" {
		bbsSessionRefreshesTotal.WithLabelValues("no_token").Inc()
		return r.terminate(ctx, ErrNoRefreshToken)
	}

	r.exchanges.Add(1)
	r.logger.Debug().
		Str("refresh_token", logging.Redact(current.RefreshToken)).
		Msg("Exchanging refresh token")

	next, err := r.exchanger.Exchange(ctx, current.RefreshToken)
	if err != nil {
		bbsSessionRefreshesTotal.WithLabelValues("failed").Inc()
		return r.terminate(ctx, err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	if err := r.store.Set(ctx, next); err != nil {
		bbsSessionRefreshesTotal.WithLabelValues("store_error").Inc()
		return credentials.Credentials{}, nil, fmt.Errorf("store refreshed credentials: %w", err)
	}

	bbsSessionRefreshesTotal.WithLabelValues("success").Inc()
	r.logger.Info().
		Bool("rotated", next.RefreshToken != current.RefreshToken).
		Msg("Session refreshed")
	return next, nil, nil
}

func (r *Refresher) terminate(ctx context.Context, reason error) (credentials.Credentials, error, error) {
	if err := r.store.Clear(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Failed to clear credentials")
	}
	r.logger.Warn().Err(reason).Msg("Session terminated")
	return credentials.Credentials{}, reason, fmt.Errorf("%w: %w", ErrSessionTerminated, reason)
}

func (r *Refresher) notifyTerminated(reason error) {
	r.mu.Lock()
	listeners := append([]func(error){}, r.terminated...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}
