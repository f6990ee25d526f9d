package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/bbs-client/pkg/client"
)

// Upload timeouts by payload size.
const (
	LargeFileThreshold   = 5 * 1024 * 1024
	DefaultUploadTimeout = 30 * time.Second
	LargeUploadTimeout   = 2 * time.Minute
)

// File is an in-memory file to upload.
type File struct {
	Name string
	Data []byte
}

// ProgressFunc receives the upload progress as a percentage in [0, 100].
// Values never decrease and the last call is always 100 on success.
type ProgressFunc func(percent int)

// UploadTimeout picks the per-attempt timeout for files: the large timeout
// when any file exceeds LargeFileThreshold.
func UploadTimeout(files ...File) time.Duration {
	for _, f := range files {
		if len(f.Data) > LargeFileThreshold {
			return LargeUploadTimeout
		}
	}
	return DefaultUploadTimeout
}

// UploadFile stores one file and returns where it can be fetched.
func (c *Client) UploadFile(ctx context.Context, f File, progress ProgressFunc) (*UploadResult, error) {
	body, contentType, err := buildMultipart(nil, "file", []File{f})
	if err != nil {
		return nil, err
	}

	report, finish := newProgressReporter(progress)
	resp, err := c.api.Send(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        pathUpload,
		Body:        body,
		ContentType: contentType,
		Timeout:     UploadTimeout(f),
		Retry:       client.RetryNever,
		Progress:    report,
	})
	if err != nil {
		return nil, err
	}
	finish()

	// Single uploads answer with a bare result, not an envelope.
	var out UploadResult
	env, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	if len(env.Data) > 0 {
		err = json.Unmarshal(env.Data, &out)
	} else {
		err = json.Unmarshal(resp.Body, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("decode upload result: %w", err)
	}
	return &out, nil
}

// UploadFiles stores several files in one request. An empty list returns an
// empty result without touching the network.
func (c *Client) UploadFiles(ctx context.Context, files []File, progress ProgressFunc) ([]UploadResult, error) {
	if len(files) == 0 {
		return []UploadResult{}, nil
	}

	body, contentType, err := buildMultipart(nil, "files", files)
	if err != nil {
		return nil, err
	}

	report, finish := newProgressReporter(progress)
	results := []UploadResult{}
	err = c.do(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        pathUploads,
		Body:        body,
		ContentType: contentType,
		Timeout:     UploadTimeout(files...),
		Retry:       client.RetryNever,
		Progress:    report,
	}, &results)
	if err != nil {
		return nil, err
	}
	finish()
	return results, nil
}

// CreateBoardWithFiles creates a board and its attachments in one request.
func (c *Client) CreateBoardWithFiles(ctx context.Context, in BoardRequest, files []File, progress ProgressFunc) (*Board, error) {
	boardJSON, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}
	body, contentType, err := buildMultipart(map[string]string{"board": string(boardJSON)}, "files", files)
	if err != nil {
		return nil, err
	}

	report, finish := newProgressReporter(progress)
	var b Board
	err = c.do(ctx, &client.Request{
		Method:      http.MethodPost,
		Path:        pathWithFile,
		Body:        body,
		ContentType: contentType,
		Timeout:     UploadTimeout(files...),
		Retry:       client.RetryNever,
		Progress:    report,
	}, &b)
	if err != nil {
		return nil, err
	}
	finish()
	return &b, nil
}

// buildMultipart encodes form fields and files into a multipart body.
func buildMultipart(fields map[string]string, fileField string, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(fileField, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// newProgressReporter converts byte counts into monotonic percentages.
// finish forces a final 100.
func newProgressReporter(fn ProgressFunc) (report func(sent, total int64), finish func()) {
	if fn == nil {
		return nil, func() {}
	}

	var mu sync.Mutex
	last := -1
	emit := func(pct int) {
		mu.Lock()
		defer mu.Unlock()
		if pct <= last {
			return
		}
		last = pct
		fn(pct)
	}

	report = func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(math.Round(float64(sent) / float64(total) * 100))
		if pct > 100 {
			pct = 100
		}
		emit(pct)
	}
	return report, func() { emit(100) }
}
