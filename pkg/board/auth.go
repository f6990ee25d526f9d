package board

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/bbs-client/pkg/client"
	"github.com/Sternrassler/bbs-client/pkg/credentials"
)

type authTokens struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessTTLSeconds int64  `json:"accessTtlSeconds"`
}

// Login exchanges a username and password for a session and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	req, err := client.NewJSONRequest(http.MethodPost, pathLogin, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	req.SkipAuth = true
	req.Retry = client.RetryNever

	var tokens authTokens
	if err := c.do(ctx, req, &tokens); err != nil {
		return err
	}
	if tokens.AccessToken == "" {
		return errors.New("login response carried no access token")
	}

	if err := c.store.Set(ctx, credentials.Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}); err != nil {
		return err
	}
	c.logger.Info().
		Str("username", username).
		Int64("access_ttl_seconds", tokens.AccessTTLSeconds).
		Msg("Logged in")
	return nil
}

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, username, password, email string) (*User, error) {
	req, err := client.NewJSONRequest(http.MethodPost, pathSignup, map[string]string{
		"username": username,
		"password": password,
		"email":    email,
	})
	if err != nil {
		return nil, err
	}
	req.SkipAuth = true
	req.Retry = client.RetryNever

	var user User
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the account the current session belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, http.MethodGet, pathMe, nil, client.RetryAuto, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout forgets the session locally. The backend keeps no logout endpoint.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx)
}
