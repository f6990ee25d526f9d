package board

// User is the account returned by /api/auth/me and signup.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// FileInfo describes a file attached to a board.
type FileInfo struct {
	ID             int64  `json:"id"`
	FileName       string `json:"fileName"`
	StoredFileName string `json:"storedFileName"`
	FileURL        string `json:"fileUrl"`
}

// Board is one post.
type Board struct {
	ID            int64      `json:"id"`
	BoardWriter   string     `json:"boardWriter"`
	BoardTitle    string     `json:"boardTitle"`
	BoardContents string     `json:"boardContents"`
	BoardHits     int        `json:"boardHits"`
	CreatedAt     string     `json:"createdAt"`
	FileAttached  int        `json:"fileAttached"`
	Files         []FileInfo `json:"files"`
}

// BoardRequest creates or updates a board. BoardPass is optional on update.
type BoardRequest struct {
	BoardWriter   string `json:"boardWriter,omitempty"`
	BoardPass     string `json:"boardPass,omitempty"`
	BoardTitle    string `json:"boardTitle"`
	BoardContents string `json:"boardContents"`
}

// Comment belongs to a board.
type Comment struct {
	ID              int64  `json:"id"`
	CommentWriter   string `json:"commentWriter"`
	CommentContents string `json:"commentContents"`
	BoardID         int64  `json:"boardId"`
	CreatedAt       string `json:"createdAt"`
}

// CommentRequest creates or updates a comment.
type CommentRequest struct {
	CommentWriter   string `json:"commentWriter"`
	CommentContents string `json:"commentContents"`
}

// Reply belongs to a comment.
type Reply struct {
	ID            int64  `json:"id"`
	ReplyWriter   string `json:"replyWriter"`
	ReplyContents string `json:"replyContents"`
	CommentID     int64  `json:"commentId"`
	CreatedAt     string `json:"createdAt"`
}

// ReplyRequest creates or updates a reply.
type ReplyRequest struct {
	ReplyWriter   string `json:"replyWriter"`
	ReplyContents string `json:"replyContents"`
}

// UploadResult is what the server returns per stored file.
type UploadResult struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// Thread is a board's comments with their reply counts.
type Thread struct {
	Comments    []Comment
	ReplyCounts map[int64]int
}
