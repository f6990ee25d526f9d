// Package client provides the authenticated HTTP pipeline for the board
// backend: credential injection, transparent session refresh, bounded
// retries, and normalization of every failure into a ClassifiedError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bbs-client/pkg/credentials"
	"github.com/Sternrassler/bbs-client/pkg/logging"
	"github.com/Sternrassler/bbs-client/pkg/ratelimit"
	"github.com/Sternrassler/bbs-client/pkg/session"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	bbsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bbs_requests_total",
		Help: "Total attempts by method and status",
	}, []string{"method", "status"})

	bbsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bbs_request_duration_seconds",
		Help:    "Logical request duration in seconds, retries included",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
	}, []string{"method"})

	bbsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bbs_errors_total",
		Help: "Terminal errors by kind",
	}, []string{"kind"})
)

// Header names set by the pipeline.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAuth      = "Authorization"
)

// RetryMode controls whether transient failures of a request are retried.
type RetryMode int

const (
	// RetryAuto retries idempotent methods only.
	RetryAuto RetryMode = iota
	// RetryAlways retries regardless of method.
	RetryAlways
	// RetryNever sends exactly one attempt (plus a possible session replay).
	RetryNever
)

// Request describes one logical request.
type Request struct {
	Method string
	// Path is joined to Config.BaseURL unless it is an absolute URL.
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Header      http.Header

	// Timeout overrides Config.Timeout for every attempt of this request.
	Timeout time.Duration
	Retry   RetryMode

	// SkipAuth sends no Authorization header and disables session recovery.
	// Login, signup and the refresh exchange use it.
	SkipAuth bool

	// Progress is called as the body is written, once per attempt.
	Progress func(sent, total int64)
}

// NewJSONRequest builds a request with a JSON-encoded body. A nil body sends none.
func NewJSONRequest(method, path string, body any) (*Request, error) {
	req := &Request{Method: method, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req.Body = data
		req.ContentType = "application/json"
	}
	return req, nil
}

func (r *Request) retryable() bool {
	switch r.Retry {
	case RetryAlways:
		return true
	case RetryNever:
		return false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// Client is the authenticated request pipeline. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	store      credentials.Store
	refresher  *session.Refresher
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend, e.g. "http://localhost:8080".
	BaseURL string

	// Store holds the session. Required.
	Store credentials.Store

	// HTTPClient is used for every attempt. Its Timeout should be zero;
	// per-attempt timeouts come from Timeout.
	HTTPClient *http.Client

	// Timeout bounds a single attempt.
	Timeout time.Duration

	UserAgent string

	Retry RetryPolicy

	// CSRF supplies the anti-forgery header. Nil sends none.
	CSRF CSRFSource

	// RefreshPath is the refresh-token exchange endpoint.
	RefreshPath string

	// RefreshTimeout bounds one exchange.
	RefreshTimeout time.Duration

	// ProactiveRefresh refreshes before sending when the access token is a
	// JWT expiring within RefreshSkew.
	ProactiveRefresh bool
	RefreshSkew      time.Duration

	// RequestsPerSecond limits attempts. Zero is unlimited.
	RequestsPerSecond float64
	Burst             int

	// Messages localizes ClassifiedError.UserMessage.
	Messages MessageCatalog
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string, store credentials.Store) Config {
	return Config{
		BaseURL:        baseURL,
		Store:          store,
		Timeout:        15 * time.Second,
		UserAgent:      "bbs-client/1.0",
		Retry:          DefaultRetryPolicy(),
		RefreshPath:    "/api/auth/refresh",
		RefreshTimeout: 15 * time.Second,
		RefreshSkew:    30 * time.Second,
		Burst:          1,
		Messages:       DefaultMessages,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = "/api/auth/refresh"
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = 30 * time.Second
	}
	if cfg.Messages == nil {
		cfg.Messages = DefaultMessages
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := logging.NewLogger("bbs-client")

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		store:      cfg.Store,
		limiter:    ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst, logger),
		config:     cfg,
		logger:     logger,
		sleep:      sleep,
	}
	c.refresher = session.NewRefresher(cfg.Store, c, cfg.RefreshTimeout)
	return c, nil
}

// Store returns the credential store.
func (c *Client) Store() credentials.Store {
	return c.store
}

// Refresher returns the session refresher, e.g. to register OnTerminated.
func (c *Client) Refresher() *session.Refresher {
	return c.refresher
}

// Send executes req through the pipeline. On success the response status is
// 2xx and its envelope did not report failure. Every error is a
// *ClassifiedError.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, c.fail(Failure{Local: true, Err: errors.New("nil request")}, c.logger)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	startTime := time.Now()
	defer func() {
		bbsRequestDuration.WithLabelValues(req.Method).Observe(time.Since(startTime).Seconds())
	}()

	if c.config.ProactiveRefresh && !req.SkipAuth {
		if err := c.refreshIfExpiring(ctx, logger); err != nil {
			return nil, err
		}
	}

	replayed := false
	for attempt := 1; ; {
		resp, failure, usedToken := c.attempt(ctx, req, requestID)
		if failure == nil {
			if attempt > 1 || replayed {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		if failure.StatusCode == http.StatusUnauthorized && !req.SkipAuth && !replayed {
			replayed = true
			if err := c.recoverSession(ctx, usedToken, logger); err != nil {
				return nil, err
			}
			logger.Debug().Msg("Replaying request with refreshed session")
			continue
		}

		if !req.retryable() || ctx.Err() != nil {
			return nil, c.fail(*failure, logger)
		}

		decision := c.config.Retry.ShouldRetry(*failure, attempt)
		if !decision.Retry {
			if IsRetriable(*failure) {
				kind := c.config.Messages.Classify(*failure).Kind
				bbsRetryExhaustedTotal.WithLabelValues(string(kind)).Inc()
				logger.Warn().
					Str("kind", string(kind)).
					Int("max_attempts", c.config.Retry.MaxAttempts).
					Msg("Retry attempts exhausted")
				failure.Err = exhausted(attempt, failure.Err)
			}
			return nil, c.fail(*failure, logger)
		}

		kind := string(c.config.Messages.Classify(*failure).Kind)
		bbsRetriesTotal.WithLabelValues(kind).Inc()
		bbsRetryBackoffSeconds.WithLabelValues(kind).Observe(decision.Delay.Seconds())
		logger.Warn().
			Str("kind", kind).
			Int("attempt", attempt).
			Dur("backoff", decision.Delay).
			Msg("Retrying request after backoff")

		if err := c.sleep(ctx, decision.Delay); err != nil {
			logger.Warn().Int("attempt", attempt).Msg("Context cancelled during retry backoff")
			return nil, c.fail(Failure{Local: true, Err: err}, logger)
		}
		attempt++
	}
}

func exhausted(attempts int, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w after %d attempts", ErrRetryExhausted, attempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, cause)
}

// fail classifies the terminal failure. Called exactly once per failed Send.
func (c *Client) fail(f Failure, logger zerolog.Logger) error {
	ce := c.config.Messages.Classify(f)
	bbsErrorsTotal.WithLabelValues(string(ce.Kind)).Inc()
	logger.Error().
		Str("kind", string(ce.Kind)).
		Int("status", ce.HTTPStatus).
		AnErr("cause", ce.Err).
		Msg("Request failed")
	return ce
}

// attempt sends one HTTP request. It returns either a response or a failure,
// plus the access token that was attached.
func (c *Client) attempt(ctx context.Context, req *Request, requestID string) (*Response, *Failure, string) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Failure{Local: true, Err: fmt.Errorf("rate limit: %w", err)}, ""
	}

	timeout := c.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := c.resolve(req)
	if err != nil {
		return nil, &Failure{Local: true, Err: err}, ""
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
		if req.Progress != nil {
			body = &progressReader{r: body, total: int64(len(req.Body)), fn: req.Progress}
		}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, target, body)
	if err != nil {
		return nil, &Failure{Local: true, Err: fmt.Errorf("create request: %w", err)}, ""
	}
	if req.Body != nil {
		httpReq.ContentLength = int64(len(req.Body))
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	var token string
	if !req.SkipAuth {
		creds, err := c.store.Get(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read credentials, sending anonymously")
		} else if creds != nil && creds.AccessToken != "" {
			token = creds.AccessToken
			httpReq.Header.Set(HeaderAuth, "Bearer "+token)
		}
	}

	if c.config.CSRF != nil {
		if header, value, ok := c.config.CSRF.CSRFToken(httpReq.URL); ok {
			httpReq.Header.Set(header, value)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		bbsRequestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		return nil, &Failure{Err: err}, token
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		bbsRequestsTotal.WithLabelValues(req.Method, "read_error").Inc()
		return nil, &Failure{Err: fmt.Errorf("read response: %w", err)}, token
	}

	bbsRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(httpResp.StatusCode)).Inc()
	c.limiter.UpdateFromHeaders(httpResp.StatusCode, httpResp.Header)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 || envelopeFailed(data) {
		return nil, &Failure{StatusCode: httpResp.StatusCode, Body: data}, token
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil, token
}

func (c *Client) resolve(req *Request) (string, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", req.Path, err)
	}
	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		joined := *c.baseURL
		joined.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
		joined.RawQuery = ref.RawQuery
		u = &joined
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// recoverSession handles a 401. The refresher skips the exchange when the
// store already holds a token other than the one this request used.
func (c *Client) recoverSession(ctx context.Context, usedToken string, logger zerolog.Logger) error {
	if _, err := c.refresher.Refresh(ctx, usedToken); err != nil {
		if errors.Is(err, session.ErrSessionTerminated) {
			return c.fail(Failure{StatusCode: http.StatusUnauthorized, Err: err}, logger)
		}
		return c.fail(Failure{Local: true, Err: err}, logger)
	}
	return nil
}

// refreshIfExpiring refreshes ahead of time. Only a terminated session is
// reported; other failures leave the request to the 401 path.
func (c *Client) refreshIfExpiring(ctx context.Context, logger zerolog.Logger) error {
	creds, err := c.store.Get(ctx)
	if err != nil || creds == nil || creds.RefreshToken == "" {
		return nil
	}
	if !creds.ExpiresWithin(c.config.RefreshSkew) {
		return nil
	}
	logger.Debug().Msg("Access token about to expire, refreshing first")
	if _, err := c.refresher.Refresh(ctx, creds.AccessToken); err != nil {
		if errors.Is(err, session.ErrSessionTerminated) {
			return c.fail(Failure{StatusCode: http.StatusUnauthorized, Err: err}, logger)
		}
		logger.Warn().Err(err).Msg("Proactive refresh failed")
	}
	return nil
}

// tokenPair is the data of a login or refresh response.
type tokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessTTLSeconds int64  `json:"accessTtlSeconds"`
}

// Exchange implements session.Exchanger against Config.RefreshPath.
// It is sent once, without retries and without session recovery.
func (c *Client) Exchange(ctx context.Context, refreshToken string) (credentials.Credentials, error) {
	req, err := NewJSONRequest(http.MethodPost, c.config.RefreshPath, map[string]string{
		"refreshToken": refreshToken,
	})
	if err != nil {
		return credentials.Credentials{}, err
	}
	req.SkipAuth = true
	req.Retry = RetryNever

	resp, err := c.Send(ctx, req)
	if err != nil {
		return credentials.Credentials{}, err
	}

	var pair tokenPair
	if err := DecodeData(resp, &pair); err != nil {
		return credentials.Credentials{}, err
	}
	if pair.AccessToken == "" {
		return credentials.Credentials{}, errors.New("refresh response carried no access token")
	}
	return credentials.Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// progressReader reports bytes handed to the transport.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
