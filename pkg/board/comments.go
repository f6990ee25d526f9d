package board

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bbs-client/pkg/client"
)

// Creates and deletes of comments and replies use RetryAlways. A retried
// create can post twice.

// ListComments returns the comments of a board.
func (c *Client) ListComments(ctx context.Context, boardID int64) ([]Comment, error) {
	comments := []Comment{}
	path := fmt.Sprintf("%s/%d/comments", pathBoards, boardID)
	if err := c.call(ctx, http.MethodGet, path, nil, client.RetryAuto, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment adds a comment to a board.
func (c *Client) CreateComment(ctx context.Context, boardID int64, in CommentRequest) (*Comment, error) {
	var out Comment
	path := fmt.Sprintf("%s/%d/comments", pathBoards, boardID)
	if err := c.call(ctx, http.MethodPost, path, in, client.RetryAlways, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateComment edits a comment.
func (c *Client) UpdateComment(ctx context.Context, id int64, in CommentRequest) (*Comment, error) {
	var out Comment
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/comments/%d", id), in, client.RetryAuto, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/comments/%d", id), nil, client.RetryAlways, nil)
}

// ListReplies returns the replies of a comment. The listing endpoint serves
// a bare JSON array.
func (c *Client) ListReplies(ctx context.Context, commentID int64) ([]Reply, error) {
	replies := []Reply{}
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/reply/list/%d", commentID), nil, client.RetryAuto, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// CreateReply adds a reply to a comment.
func (c *Client) CreateReply(ctx context.Context, commentID int64, in ReplyRequest) (*Reply, error) {
	var out Reply
	path := fmt.Sprintf("/api/comments/%d/replies", commentID)
	if err := c.call(ctx, http.MethodPost, path, in, client.RetryAlways, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReply edits a reply.
func (c *Client) UpdateReply(ctx context.Context, id int64, in ReplyRequest) (*Reply, error) {
	var out Reply
	if err := c.call(ctx, http.MethodPut, fmt.Sprintf("/api/replies/%d", id), in, client.RetryAuto, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReply removes a reply.
func (c *Client) DeleteReply(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/replies/%d", id), nil, client.RetryAlways, nil)
}
