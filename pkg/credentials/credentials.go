// Package credentials holds the session tokens of the board client.
//
// A Store is the only owner of the access/refresh token pair. The request
// pipeline reads it before every attempt, the session refresher overwrites it
// after a token exchange, and logout clears it. Writes always replace the
// whole pair; implementations never merge a partial update into stored state.
package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCorrupt indicates stored credentials exist but could not be decoded.
var ErrCorrupt = errors.New("stored credentials are corrupt")

// Credentials is the token pair issued by the backend on login or refresh.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// IsZero reports whether no token is present at all.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store persists the current credentials.
//
// Get returns nil, nil when the client is anonymous. Implementations must be
// safe for concurrent use and must never expose a half-written pair.
type Store interface {
	Get(ctx context.Context) (*Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// AccessExpiry returns the exp claim of a JWT access token.
// The signature is not verified; the result is only used to decide whether a
// refresh is worth doing before a request. Opaque tokens report ok == false.
func AccessExpiry(token string) (exp time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// ExpiresWithin reports whether the access token is a JWT expiring within d.
func (c Credentials) ExpiresWithin(d time.Duration) bool {
	exp, ok := AccessExpiry(c.AccessToken)
	if !ok {
		return false
	}
	return time.Until(exp) <= d
}
