// Package testutil provides a configurable fake of the board backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBackend is an httptest server speaking the board API's envelope and
// bearer-token auth. Login and refresh are implemented; everything else is
// configured per test with SetHandler or SetResponse.
type MockBackend struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	users         map[string]string
	validAccess   map[string]bool
	validRefresh  map[string]bool
	tokenSeq      int
	RotateRefresh bool
	RefreshDelay  time.Duration
	RefreshStatus int

	// Tracking
	RequestCount      int
	RefreshCount      int
	LastRequestHeader http.Header
	pathCounts        map[string]int
}

// NewMockBackend starts a backend with one user, alice/secret.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:      make(map[string]http.HandlerFunc),
		users:         map[string]string{"alice": "secret"},
		validAccess:   make(map[string]bool),
		validRefresh:  make(map[string]bool),
		pathCounts:    make(map[string]int),
		RotateRefresh: true,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RefreshCount = 0
	m.LastRequestHeader = nil
	m.pathCounts = make(map[string]int)
}

// SetHandler sets a custom handler for "METHOD /path" or "/path".
func (m *MockBackend) SetHandler(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// SetResponse configures a simple response for a pattern.
func (m *MockBackend) SetResponse(pattern string, resp MockResponse) {
	m.SetHandler(pattern, resp.handler())
}

// SetProtectedResponse is SetResponse behind bearer-token auth.
func (m *MockBackend) SetProtectedResponse(pattern string, resp MockResponse) {
	m.SetHandler(pattern, m.Protect(resp.handler()))
}

// Protect wraps h so it answers 401 unless the request carries a valid
// access token.
func (m *MockBackend) Protect(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		m.mu.RLock()
		ok := token != "" && m.validAccess[token]
		m.mu.RUnlock()
		if !ok {
			WriteEnvelope(w, http.StatusUnauthorized, false, "Unauthorized", nil)
			return
		}
		h(w, r)
	}
}

// AddUser registers a login.
func (m *MockBackend) AddUser(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = password
}

// IssueTokens creates a valid access/refresh pair.
func (m *MockBackend) IssueTokens() (access, refresh string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issueLocked()
}

func (m *MockBackend) issueLocked() (string, string) {
	m.tokenSeq++
	access := fmt.Sprintf("access-%d", m.tokenSeq)
	refresh := fmt.Sprintf("refresh-%d", m.tokenSeq)
	m.validAccess[access] = true
	m.validRefresh[refresh] = true
	return access, refresh
}

// ExpireAccessTokens invalidates every access token issued so far.
func (m *MockBackend) ExpireAccessTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validAccess = make(map[string]bool)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (m *MockBackend) RevokeRefreshTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validRefresh = make(map[string]bool)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRefreshCount returns the number of refresh exchanges received.
func (m *MockBackend) GetRefreshCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RefreshCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockBackend) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockBackend) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockBackend) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
		m.handleLogin(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		m.handleSignup(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh":
		m.handleRefresh(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/auth/me":
		m.Protect(func(w http.ResponseWriter, r *http.Request) {
			WriteEnvelope(w, http.StatusOK, true, "OK", map[string]any{
				"id": 1, "username": "alice", "email": "alice@example.com", "role": "USER",
			})
		})(w, r)
	default:
		WriteEnvelope(w, http.StatusNotFound, false, "Not found", nil)
	}
}

func (m *MockBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteEnvelope(w, http.StatusBadRequest, false, "Malformed request", nil)
		return
	}

	m.mu.Lock()
	password, ok := m.users[body.Username]
	if !ok || password != body.Password {
		m.mu.Unlock()
		WriteEnvelope(w, http.StatusUnauthorized, false, "Invalid username or password", nil)
		return
	}
	access, refresh := m.issueLocked()
	m.mu.Unlock()

	WriteEnvelope(w, http.StatusOK, true, "Login successful", map[string]any{
		"accessToken":      access,
		"refreshToken":     refresh,
		"accessTtlSeconds": 900,
	})
}

func (m *MockBackend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteEnvelope(w, http.StatusBadRequest, false, "Malformed request", nil)
		return
	}
	if body.Username == "" {
		WriteEnvelope(w, http.StatusBadRequest, false, "Validation failed",
			map[string]string{"username": "must not be blank"})
		return
	}

	m.mu.Lock()
	if _, taken := m.users[body.Username]; taken {
		m.mu.Unlock()
		WriteEnvelope(w, http.StatusConflict, false, "Username already exists", nil)
		return
	}
	m.users[body.Username] = body.Password
	id := len(m.users)
	m.mu.Unlock()

	WriteEnvelope(w, http.StatusOK, true, "Signup successful", map[string]any{
		"id": id, "username": body.Username, "email": body.Email, "role": "USER",
	})
}

func (m *MockBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.mu.Lock()
	m.RefreshCount++
	delay := m.RefreshDelay
	status := m.RefreshStatus
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		WriteEnvelope(w, status, false, "Refresh failed", nil)
		return
	}

	m.mu.Lock()
	if !m.validRefresh[body.RefreshToken] {
		m.mu.Unlock()
		WriteEnvelope(w, http.StatusUnauthorized, false, "Invalid refresh token", nil)
		return
	}
	access, refresh := m.issueLocked()
	if m.RotateRefresh {
		delete(m.validRefresh, body.RefreshToken)
	} else {
		delete(m.validRefresh, refresh)
		refresh = ""
	}
	m.mu.Unlock()

	data := map[string]any{"accessToken": access, "accessTtlSeconds": 900}
	if refresh != "" {
		data["refreshToken"] = refresh
	}
	WriteEnvelope(w, http.StatusOK, true, "Token refreshed", data)
}

func (resp MockResponse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// WriteEnvelope writes {"success", "message", "data"} with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	body := map[string]any{"success": success, "message": message}
	if data != nil {
		body["data"] = data
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func envelopeBody(success bool, message string, data any) string {
	body := map[string]any{"success": success, "message": message}
	if data != nil {
		body["data"] = data
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

var jsonHeaders = map[string]string{"Content-Type": "application/json; charset=utf-8"}

// NewSuccessResponse creates a 200 OK envelope around data.
func NewSuccessResponse(data any) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       envelopeBody(true, "OK", data),
		Headers:    jsonHeaders,
	}
}

// NewErrorResponse creates a failed envelope with status and message.
func NewErrorResponse(status int, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       envelopeBody(false, message, nil),
		Headers:    jsonHeaders,
	}
}

// NewValidationResponse mirrors the backend's bean-validation handler.
func NewValidationResponse(fields map[string]string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       envelopeBody(false, "Validation failed", fields),
		Headers:    jsonHeaders,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal server error")
}
