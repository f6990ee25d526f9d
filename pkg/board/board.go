// Package board is a typed client for the bulletin-board API. Every call
// goes through the authenticated pipeline in pkg/client, so callers get
// session refresh, retries and normalized errors for free.
package board

import (
	"context"
	"fmt"

	"github.com/Sternrassler/bbs-client/pkg/aggregate"
	"github.com/Sternrassler/bbs-client/pkg/client"
	"github.com/Sternrassler/bbs-client/pkg/credentials"
	"github.com/Sternrassler/bbs-client/pkg/logging"
	"github.com/rs/zerolog"
)

// API paths.
const (
	pathLogin    = "/api/auth/login"
	pathSignup   = "/api/auth/signup"
	pathMe       = "/api/auth/me"
	pathBoards   = "/api/boards"
	pathUpload   = "/api/files/upload"
	pathUploads  = "/api/files/upload-multiple"
	pathWithFile = "/api/boards/with-files"
)

// Client exposes the board API.
type Client struct {
	api    *client.Client
	store  credentials.Store
	counts *aggregate.Fetcher
	logger zerolog.Logger
}

// New wraps api. countsCfg bounds the reply-count fan-out.
func New(api *client.Client, countsCfg aggregate.Config) *Client {
	c := &Client{
		api:    api,
		store:  api.Store(),
		logger: logging.NewLogger("bbs-board"),
	}
	c.counts = aggregate.NewFetcher(c.replyCount, countsCfg)
	return c
}

// API returns the underlying pipeline.
func (c *Client) API() *client.Client {
	return c.api
}

// call sends a JSON request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, body any, retry client.RetryMode, out any) error {
	req, err := client.NewJSONRequest(method, path, body)
	if err != nil {
		return err
	}
	req.Retry = retry
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *client.Request, out any) error {
	resp, err := c.api.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return client.DecodeData(resp, out)
}

func boardPath(id int64) string {
	return fmt.Sprintf("%s/%d", pathBoards, id)
}
