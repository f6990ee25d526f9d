package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the uniform wrapper the backend puts around every payload.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Envelope parses the response body. A body that is not a JSON object yields
// an envelope whose Data is the raw body.
func (r *Response) Envelope() (Envelope, error) {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 {
		return Envelope{}, nil
	}
	if trimmed[0] != '{' {
		return Envelope{Data: json.RawMessage(trimmed)}, nil
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodeData unmarshals the envelope's data into v. Bare JSON arrays, as
// served by the legacy list endpoints, are decoded directly.
func DecodeData(resp *Response, v any) error {
	env, err := resp.Envelope()
	if err != nil {
		return err
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// envelopeFailed reports whether a 2xx body carries success=false.
func envelopeFailed(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var env struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return false
	}
	return env.Success != nil && !*env.Success
}
