package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestLLMErrorMessage(t *testing.T) {
	err := &LLMError{Provider: ProviderOpenAI, Code: "rate_limit", Message: "slow down"}
	if got := err.Error(); got != "openai [rate_limit]: slow down" {
		t.Errorf("Error() = %q", got)
	}
	err.Code = ""
	if got := err.Error(); got != "openai: slow down" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNewLLMErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("network timeout")
	err := NewLLMErrorWithCause(ProviderAnthropic, ErrorTypeConnectionError, "dial failed", cause)
	if !err.Retryable {
		t.Error("connection errors should be retryable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeConnectionError, true},
		{ErrorTypeInvalidRequest, false},
		{ErrorTypeAuthentication, false},
		{ErrorTypeContextLength, false},
		{ErrorTypeJSONParsingError, false},
		{ErrorTypeUnknown, false},
	}

	for _, test := range tests {
		t.Run(string(test.errorType), func(t *testing.T) {
			// a struct literal without Retryable set must still classify by type
			err := fmt.Errorf("wrapped: %w", &LLMError{Type: test.errorType})
			if got := IsRetryableError(err); got != test.retryable {
				t.Errorf("IsRetryableError(%s) = %v, want %v", test.errorType, got, test.retryable)
			}
		})
	}
}

func TestParseHTTPError(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		body         string
		expectedType ErrorType
		retryable    bool
	}{
		{"bad request", http.StatusBadRequest, "", ErrorTypeInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, "", ErrorTypeAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, "", ErrorTypeRateLimit, true},
		{"server error", http.StatusBadGateway, "", ErrorTypeServerError, true},
		{"teapot", 418, "", ErrorTypeUnknown, false},
		{"quota in body", http.StatusForbidden, "insufficient quota remaining", ErrorTypeInsufficientQuota, false},
		{"context in body", http.StatusBadRequest, "exceeds context length", ErrorTypeContextLength, false},
		{"model in body", http.StatusNotFound, "The model 'x' does not exist or is invalid", ErrorTypeInvalidModel, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ParseHTTPError(ProviderOpenAI, test.statusCode, test.body)
			if err.Type != test.expectedType {
				t.Errorf("type = %s, want %s", err.Type, test.expectedType)
			}
			if err.HTTPStatus != test.statusCode {
				t.Errorf("status = %d, want %d", err.HTTPStatus, test.statusCode)
			}
			if err.Retryable != test.retryable {
				t.Errorf("retryable = %v, want %v", err.Retryable, test.retryable)
			}
		})
	}

	long := strings.Repeat("x", 500)
	err := ParseHTTPError(ProviderOpenAI, 418, long)
	if !strings.HasSuffix(err.Message, "...") {
		t.Errorf("expected truncated body in message")
	}
}

func TestCollaboratorTaxonomy(t *testing.T) {
	timeout := NewLLMError(ProviderOpenAI, ErrorTypeTimeout, "slow")
	if !errors.Is(timeout, ErrCollaboratorTimeout) {
		t.Error("timeout should match ErrCollaboratorTimeout")
	}
	if errors.Is(timeout, ErrCollaboratorFailure) {
		t.Error("timeout should not match ErrCollaboratorFailure")
	}

	failure := fmt.Errorf("embed batch 0: %w", NewLLMError(ProviderOpenAI, ErrorTypeServerError, "boom"))
	if !errors.Is(failure, ErrCollaboratorFailure) {
		t.Error("server error should match ErrCollaboratorFailure")
	}
	if errors.Is(failure, ErrCollaboratorTimeout) {
		t.Error("server error should not match ErrCollaboratorTimeout")
	}
}

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

var _ net.Error = fakeNetError{}

func TestAsCollaboratorError(t *testing.T) {
	if AsCollaboratorError(ProviderOpenAI, nil) != nil {
		t.Fatal("nil should stay nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"deadline", fmt.Errorf("post: %w", ctx.Err()), ErrorTypeTimeout},
		{"canceled", context.Canceled, ErrorTypeUnknown},
		{"net timeout", fakeNetError{timeout: true}, ErrorTypeTimeout},
		{"net refused", fakeNetError{}, ErrorTypeConnectionError},
		{"plain", errors.New("weird"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsCollaboratorError(ProviderAnthropic, tt.err)
			llmErr, ok := IsLLMError(got)
			if !ok {
				t.Fatalf("expected *LLMError, got %T", got)
			}
			if llmErr.Type != tt.want {
				t.Errorf("type = %s, want %s", llmErr.Type, tt.want)
			}
			if llmErr.Provider != ProviderAnthropic {
				t.Errorf("provider = %s", llmErr.Provider)
			}
			if !errors.Is(got, tt.err) {
				t.Error("cause should be preserved")
			}
		})
	}

	// existing LLM errors pass through unchanged
	orig := NewLLMError(ProviderOpenAI, ErrorTypeRateLimit, "429")
	if got := AsCollaboratorError(ProviderAnthropic, orig); got != orig {
		t.Errorf("expected passthrough, got %v", got)
	}
}

func TestMultiValidationError(t *testing.T) {
	multi := &MultiValidationError{}
	if multi.ErrorOrNil() != nil {
		t.Fatal("expected nil with no errors")
	}
	multi.Add("type", "X", "unknown type")
	if !strings.Contains(multi.Error(), "field 'type'") {
		t.Errorf("single error message = %q", multi.Error())
	}
	multi.Add("message", "", "empty")
	if !strings.Contains(multi.Error(), "2 validation errors") {
		t.Errorf("multi error message = %q", multi.Error())
	}
}

func TestHasErrorType(t *testing.T) {
	err := fmt.Errorf("chat: %w", ParseHTTPError(ProviderOpenAI, http.StatusUnauthorized, ""))
	if !HasErrorType(err, ErrorTypeAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
	if HasErrorType(err, ErrorTypeRateLimit) || HasErrorType(errors.New("x"), ErrorTypeUnknown) {
		t.Error("unexpected match")
	}
}

func TestParseHTTPErrorTruncatesRunes(t *testing.T) {
	err := ParseHTTPError(ProviderAnthropic, 418, strings.Repeat("é", 300))
	if !strings.HasSuffix(err.Message, "...") || !utf8.ValidString(err.Message) {
		t.Errorf("message = %q", err.Message)
	}
}
