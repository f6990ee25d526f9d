package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassify_Kinds(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name    string
		failure Failure
		want    Kind
	}{
		{"401", Failure{StatusCode: 401}, KindUnauthorized},
		{"403", Failure{StatusCode: 403}, KindForbidden},
		{"404", Failure{StatusCode: 404}, KindNotFound},
		{"409", Failure{StatusCode: 409}, KindConflict},
		{"500", Failure{StatusCode: 500}, KindServerError},
		{"503", Failure{StatusCode: 503}, KindServerError},
		{"deadline", Failure{Err: context.DeadlineExceeded}, KindTimeout},
		{"wrapped deadline", Failure{Err: fmt.Errorf("get: %w", context.DeadlineExceeded)}, KindTimeout},
		{"net timeout", Failure{Err: timeoutError{}}, KindTimeout},
		{"connection refused", Failure{Err: refused}, KindNetworkUnreachable},
		{"local failure", Failure{Local: true, Err: errors.New("create request: invalid method")}, KindUnknown},
		{"local deadline", Failure{Local: true, Err: context.DeadlineExceeded}, KindTimeout},
		{"600", Failure{StatusCode: 600}, KindServerError},
		{"cancelled", Failure{Err: context.Canceled}, KindUnknown},
		{"no response, no error", Failure{}, KindUnknown},
		{"429", Failure{StatusCode: 429}, KindUnknown},
		{"400 without fields", Failure{StatusCode: 400, Body: []byte(`{"success":false,"message":"bad"}`)}, KindUnknown},
		{"400 with data fields", Failure{StatusCode: 400, Body: []byte(`{"success":false,"message":"Validation failed","data":{"boardTitle":"must not be blank"}}`)}, KindValidation},
		{"422 with details", Failure{StatusCode: 422, Body: []byte(`{"message":"invalid","details":{"email":"bad format"}}`)}, KindValidation},
		{"2xx envelope failure", Failure{StatusCode: 200, Body: []byte(`{"success":false,"message":"nope"}`)}, KindUnknown},
		{"error descriptor is not validation", Failure{StatusCode: 400, Body: []byte(`{"success":false,"message":"Business error","data":{"code":"DUP","message":"duplicate"}}`)}, KindUnknown},
		{"status beats validation payload", Failure{StatusCode: 404, Body: []byte(`{"data":{"id":"unknown"}}`)}, KindNotFound},
		{"non-json body", Failure{StatusCode: 502, Body: []byte("<html>Bad Gateway</html>")}, KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.failure)
			if got.Kind != tt.want {
				t.Errorf("Classify().Kind = %q, want %q", got.Kind, tt.want)
			}
			if got.UserMessage == "" {
				t.Error("UserMessage is empty")
			}
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	failures := []Failure{
		{StatusCode: 400, Body: []byte(`{"success":false,"message":"Validation failed","data":{"a":"x","b":"y"}}`)},
		{StatusCode: 500, Body: []byte(`{"message":"boom"}`)},
		{Err: context.DeadlineExceeded},
		{Err: &net.OpError{Op: "dial", Err: errors.New("refused")}},
	}

	for _, f := range failures {
		first := Classify(f)
		second := Classify(f)
		if diff := cmp.Diff(first, second, cmpopts.EquateErrors()); diff != "" {
			t.Errorf("Classify not deterministic (-first +second):\n%s", diff)
		}
	}
}

func TestClassify_Validation(t *testing.T) {
	body := []byte(`{"success":false,"message":"Validation failed","data":{"boardTitle":"must not be blank","boardPass":"size must be between 4 and 20"}}`)
	got := Classify(Failure{StatusCode: 400, Body: body})

	want := &ClassifiedError{
		Kind:        KindValidation,
		UserMessage: "Validation failed",
		HTTPStatus:  400,
		FieldErrors: map[string]string{
			"boardTitle": "must not be blank",
			"boardPass":  "size must be between 4 and 20",
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_Messages(t *testing.T) {
	t.Run("server message wins", func(t *testing.T) {
		got := Classify(Failure{StatusCode: 403, Body: []byte(`{"success":false,"message":"Only the author may edit"}`)})
		if got.UserMessage != "Only the author may edit" {
			t.Errorf("UserMessage = %q", got.UserMessage)
		}
	})

	t.Run("catalog fallback", func(t *testing.T) {
		got := Classify(Failure{StatusCode: 403})
		if got.UserMessage != DefaultMessages[KindForbidden] {
			t.Errorf("UserMessage = %q, want %q", got.UserMessage, DefaultMessages[KindForbidden])
		}
	})

	t.Run("localized catalog", func(t *testing.T) {
		got := KoreanMessages.Classify(Failure{StatusCode: 404})
		if got.UserMessage != KoreanMessages[KindNotFound] {
			t.Errorf("UserMessage = %q", got.UserMessage)
		}
	})

	t.Run("partial catalog falls back to default", func(t *testing.T) {
		partial := MessageCatalog{KindTimeout: "slow"}
		if got := partial.Classify(Failure{StatusCode: 500}).UserMessage; got != DefaultMessages[KindServerError] {
			t.Errorf("UserMessage = %q", got)
		}
		if got := partial.Classify(Failure{Err: context.DeadlineExceeded}).UserMessage; got != "slow" {
			t.Errorf("UserMessage = %q", got)
		}
	})
}

func TestClassifiedError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("%w after 3 attempts: %w", ErrRetryExhausted, context.DeadlineExceeded)
	err := error(Classify(Failure{Err: cause}))

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(err, context.DeadlineExceeded) = false")
	}

	wrapped := fmt.Errorf("list boards: %w", err)
	ce, ok := AsClassified(wrapped)
	if !ok {
		t.Fatal("AsClassified() = false")
	}
	if ce.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", ce.Kind, KindTimeout)
	}
	if !IsKind(wrapped, KindTimeout) {
		t.Error("IsKind() = false")
	}
	if IsKind(errors.New("plain"), KindTimeout) {
		t.Error("IsKind() on plain error = true")
	}
}

func TestClassifiedError_Error(t *testing.T) {
	err := &ClassifiedError{Kind: KindNotFound, HTTPStatus: 404, UserMessage: "gone"}
	if got, want := err.Error(), "bbs not_found error (status 404): gone"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
