package client

import (
	"net/http"
	"net/url"
)

// Default names used by Spring Security's cookie CSRF repository.
const (
	DefaultCSRFCookie = "XSRF-TOKEN"
	DefaultCSRFHeader = "X-XSRF-TOKEN"
)

// CSRFSource supplies the anti-forgery token for an outgoing request.
// ok is false when no token is available; the request is then sent without one.
type CSRFSource interface {
	CSRFToken(u *url.URL) (header, token string, ok bool)
}

// StaticCSRF always returns the same header and token.
type StaticCSRF struct {
	Header string
	Token  string
}

// CSRFToken implements CSRFSource.
func (s StaticCSRF) CSRFToken(*url.URL) (string, string, bool) {
	if s.Token == "" {
		return "", "", false
	}
	header := s.Header
	if header == "" {
		header = DefaultCSRFHeader
	}
	return header, s.Token, true
}

// CookieCSRF reads the token from a cookie the server set in Jar and echoes
// it in a header.
type CookieCSRF struct {
	Jar        http.CookieJar
	CookieName string
	HeaderName string
}

// NewCookieCSRF returns a source using the XSRF-TOKEN / X-XSRF-TOKEN pair.
func NewCookieCSRF(jar http.CookieJar) *CookieCSRF {
	return &CookieCSRF{
		Jar:        jar,
		CookieName: DefaultCSRFCookie,
		HeaderName: DefaultCSRFHeader,
	}
}

// CSRFToken implements CSRFSource.
func (c *CookieCSRF) CSRFToken(u *url.URL) (string, string, bool) {
	if c.Jar == nil || u == nil {
		return "", "", false
	}
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == c.CookieName && cookie.Value != "" {
			return c.HeaderName, cookie.Value, true
		}
	}
	return "", "", false
}
