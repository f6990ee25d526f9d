package board

import (
	"context"
	"net/http"

	"github.com/Sternrassler/bbs-client/pkg/client"
)

// ListBoards returns every board.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	boards := []Board{}
	if err := c.call(ctx, http.MethodGet, pathBoards, nil, client.RetryAuto, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// GetBoard returns one board with its files.
func (c *Client) GetBoard(ctx context.Context, id int64) (*Board, error) {
	var b Board
	if err := c.call(ctx, http.MethodGet, boardPath(id), nil, client.RetryAuto, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBoard creates a board without attachments.
func (c *Client) CreateBoard(ctx context.Context, in BoardRequest) (*Board, error) {
	var b Board
	if err := c.call(ctx, http.MethodPost, pathBoards, in, client.RetryAuto, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBoard replaces title and contents of a board.
func (c *Client) UpdateBoard(ctx context.Context, id int64, in BoardRequest) (*Board, error) {
	var b Board
	if err := c.call(ctx, http.MethodPut, boardPath(id), in, client.RetryAuto, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBoard removes a board.
func (c *Client) DeleteBoard(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, boardPath(id), nil, client.RetryAuto, nil)
}
