package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is wrapped into the terminal error when all attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Kind classifies a terminal failure.
type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindServerError        Kind = "server_error"
	KindTimeout            Kind = "timeout"
	KindNetworkUnreachable Kind = "network_unreachable"
	KindValidation         Kind = "validation"
	KindUnknown            Kind = "unknown"
)

// Failure is the raw outcome of a failed attempt, before classification.
// StatusCode is 0 when no response was received. Local marks failures raised
// before the request reached the transport; they are never retried.
type Failure struct {
	StatusCode int
	Body       []byte
	Err        error
	Local      bool
}

// ClassifiedError is the only error shape callers of Send see.
// Treat it as read-only once returned.
type ClassifiedError struct {
	Kind        Kind
	UserMessage string
	HTTPStatus  int
	FieldErrors map[string]string
	Err         error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bbs %s error (status %d): %s: %v",
			e.Kind, e.HTTPStatus, e.UserMessage, e.Err)
	}
	return fmt.Sprintf("bbs %s error (status %d): %s",
		e.Kind, e.HTTPStatus, e.UserMessage)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// AsClassified extracts a *ClassifiedError from err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKind reports whether err is a ClassifiedError of the given kind.
func IsKind(err error, kind Kind) bool {
	ce, ok := AsClassified(err)
	return ok && ce.Kind == kind
}

// MessageCatalog maps kinds to ready-to-display messages.
type MessageCatalog map[Kind]string

// DefaultMessages is the English catalog.
var DefaultMessages = MessageCatalog{
	KindUnauthorized:       "Your session has expired. Please sign in again.",
	KindForbidden:          "You do not have permission to do that.",
	KindNotFound:           "The requested item could not be found.",
	KindConflict:           "The item was changed by someone else. Reload and try again.",
	KindServerError:        "The server ran into a problem. Please try again shortly.",
	KindTimeout:            "The server took too long to respond.",
	KindNetworkUnreachable: "Unable to reach the server. Check your connection.",
	KindValidation:         "Some fields are invalid.",
	KindUnknown:            "The request could not be completed.",
}

// KoreanMessages is the catalog shipped with the original board UI.
var KoreanMessages = MessageCatalog{
	KindUnauthorized:       "로그인이 만료되었습니다. 다시 로그인해주세요.",
	KindForbidden:          "권한이 없습니다.",
	KindNotFound:           "요청한 항목을 찾을 수 없습니다.",
	KindConflict:           "다른 사용자가 먼저 수정했습니다. 새로고침 후 다시 시도해주세요.",
	KindServerError:        "서버 오류가 발생했습니다. 잠시 후 다시 시도해주세요.",
	KindTimeout:            "서버 응답 시간이 초과되었습니다.",
	KindNetworkUnreachable: "네트워크에 연결할 수 없습니다.",
	KindValidation:         "입력값을 확인해주세요.",
	KindUnknown:            "요청 처리에 실패했습니다.",
}

// Lookup returns the message for kind, falling back to DefaultMessages.
func (m MessageCatalog) Lookup(kind Kind) string {
	if msg, ok := m[kind]; ok && msg != "" {
		return msg
	}
	return DefaultMessages[kind]
}

// Classify normalizes a failure using DefaultMessages.
func Classify(f Failure) *ClassifiedError {
	return DefaultMessages.Classify(f)
}

// Classify normalizes a failure. The result depends only on f.
func (m MessageCatalog) Classify(f Failure) *ClassifiedError {
	body := parseErrorBody(f.Body)
	kind := classifyKind(f, body)

	msg := m.Lookup(kind)
	if body.Message != "" {
		msg = body.Message
	}

	ce := &ClassifiedError{
		Kind:        kind,
		UserMessage: msg,
		HTTPStatus:  f.StatusCode,
		Err:         f.Err,
	}
	if kind == KindValidation {
		ce.FieldErrors = body.Fields
	}
	return ce
}

func classifyKind(f Failure, body errorBody) Kind {
	switch {
	case f.StatusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case f.StatusCode == http.StatusForbidden:
		return KindForbidden
	case f.StatusCode == http.StatusNotFound:
		return KindNotFound
	case f.StatusCode == http.StatusConflict:
		return KindConflict
	case f.StatusCode >= 500:
		return KindServerError
	case f.StatusCode == 0 && isTimeout(f.Err):
		return KindTimeout
	case f.Local:
		return KindUnknown
	case f.StatusCode == 0 && f.Err != nil && !errors.Is(f.Err, context.Canceled):
		return KindNetworkUnreachable
	case len(body.Fields) > 0:
		return KindValidation
	default:
		return KindUnknown
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorBody is what the normalizer extracts from a failed response body.
type errorBody struct {
	Message string
	Fields  map[string]string
}

// parseErrorBody reads the envelope of a failed response. Field errors come
// from "fieldErrors", "details", or a string map in "data" that is not an
// error descriptor ({code, message}).
func parseErrorBody(raw []byte) errorBody {
	var out errorBody
	if len(raw) == 0 {
		return out
	}

	var env struct {
		Message     string          `json:"message"`
		Data        json.RawMessage `json:"data"`
		Details     json.RawMessage `json:"details"`
		FieldErrors json.RawMessage `json:"fieldErrors"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return out
	}
	out.Message = env.Message

	for _, candidate := range []json.RawMessage{env.FieldErrors, env.Details} {
		if fields := stringMap(candidate); len(fields) > 0 {
			out.Fields = fields
			return out
		}
	}

	if fields := stringMap(env.Data); len(fields) > 0 && !isErrorDescriptor(fields) {
		out.Fields = fields
	}
	return out
}

func stringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func isErrorDescriptor(m map[string]string) bool {
	if len(m) != 2 {
		return false
	}
	_, hasCode := m["code"]
	_, hasMessage := m["message"]
	return hasCode && hasMessage
}
