package board

import "context"

// ReplyCounts returns the number of replies for every comment id, fetching
// all of them concurrently. A comment whose replies could not be loaded
// counts as zero; the call itself never fails.
func (c *Client) ReplyCounts(ctx context.Context, commentIDs []int64) map[int64]int {
	return c.counts.CountsFor(ctx, commentIDs)
}

func (c *Client) replyCount(ctx context.Context, commentID int64) (int, error) {
	replies, err := c.ListReplies(ctx, commentID)
	if err != nil {
		return 0, err
	}
	return len(replies), nil
}

// Thread loads a board's comments together with their reply counts.
func (c *Client) Thread(ctx context.Context, boardID int64) (*Thread, error) {
	comments, err := c.ListComments(ctx, boardID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(comments))
	for i, cm := range comments {
		ids[i] = cm.ID
	}
	return &Thread{
		Comments:    comments,
		ReplyCounts: c.ReplyCounts(ctx, ids),
	}, nil
}
