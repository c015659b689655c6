package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrCollaboratorFailure matches any provider error other than a timeout.
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrCollaboratorTimeout matches provider calls that exceeded their deadline.
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
)

// ErrorType classifies a provider failure. The values follow the OpenAI
// error codes where one exists.
type ErrorType string

const (
	ErrorTypeUnknown        ErrorType = "unknown"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypePermission     ErrorType = "permission_error"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit_exceeded"

	ErrorTypeInsufficientQuota ErrorType = "insufficient_quota"
	ErrorTypeInvalidModel      ErrorType = "invalid_model"
	ErrorTypeContextLength     ErrorType = "context_length_exceeded"
	ErrorTypeContentFilter     ErrorType = "content_filter"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionError   ErrorType = "connection_error"
	ErrorTypeValidationError   ErrorType = "validation_error"
	ErrorTypeJSONParsingError  ErrorType = "json_parsing_error"
)

// LLMError is the normalized error of every chat and embedding provider.
// Retryable and RetryAfter drive Retrier.
type LLMError struct {
	Type       ErrorType         `json:"type"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Provider   Provider          `json:"provider"`
	Model      string            `json:"model,omitempty"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Retryable  bool              `json:"retryable"`
	RetryAfter int               `json:"retry_after,omitempty"` // seconds
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

func (e *LLMError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// Is maps the error onto the collaborator taxonomy so callers can match
// with errors.Is(err, ErrCollaboratorTimeout) or ErrCollaboratorFailure.
func (e *LLMError) Is(target error) bool {
	switch target {
	case ErrCollaboratorTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrCollaboratorFailure:
		return e.Type != ErrorTypeTimeout
	}
	return false
}

func NewLLMError(provider Provider, errorType ErrorType, message string) *LLMError {
	return &LLMError{
		Type:      errorType,
		Message:   message,
		Provider:  provider,
		Retryable: isRetryableError(errorType),
	}
}

func NewLLMErrorWithCause(provider Provider, errorType ErrorType, message string, cause error) *LLMError {
	err := NewLLMError(provider, errorType, message)
	err.Cause = cause
	return err
}

func isRetryableError(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout, ErrorTypeConnectionError:
		return true
	}
	return false
}

var statusTypes = map[int]struct {
	typ ErrorType
	msg string
}{
	http.StatusBadRequest:          {ErrorTypeInvalidRequest, "invalid request parameters"},
	http.StatusUnauthorized:        {ErrorTypeAuthentication, "invalid API key"},
	http.StatusForbidden:           {ErrorTypePermission, "permission denied"},
	http.StatusNotFound:            {ErrorTypeNotFound, "resource not found"},
	http.StatusTooManyRequests:     {ErrorTypeRateLimit, "rate limit exceeded"},
	http.StatusInternalServerError: {ErrorTypeServerError, "server error"},
	http.StatusBadGateway:          {ErrorTypeServerError, "server error"},
	http.StatusServiceUnavailable:  {ErrorTypeServerError, "server error"},
	http.StatusGatewayTimeout:      {ErrorTypeServerError, "server error"},
}

// bodyRules refine the status classification from the provider's message.
// The first rule whose phrases all appear (any of each group) wins.
var bodyRules = []struct {
	typ     ErrorType
	msg     string
	phrases [][]string
}{
	{ErrorTypeRateLimit, "rate limit exceeded", [][]string{{"rate limit", "too many requests"}}},
	{ErrorTypeInsufficientQuota, "insufficient quota", [][]string{{"insufficient quota", "quota exceeded"}}},
	{ErrorTypeContextLength, "context length exceeded", [][]string{{"context length", "token limit"}}},
	{ErrorTypeContentFilter, "content filtered", [][]string{{"content filter", "safety"}}},
	{ErrorTypeInvalidModel, "invalid or unavailable model", [][]string{{"model"}, {"not found", "invalid", "does not exist"}}},
}

func matchesAll(body string, groups [][]string) bool {
	for _, group := range groups {
		hit := false
		for _, p := range group {
			if strings.Contains(body, p) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// ParseHTTPError classifies a failed provider response by status code and,
// when recognisable, by the text of its body.
func ParseHTTPError(provider Provider, statusCode int, body string) *LLMError {
	st, ok := statusTypes[statusCode]
	if !ok {
		st.typ, st.msg = ErrorTypeUnknown, fmt.Sprintf("HTTP %d error", statusCode)
	}
	err := NewLLMError(provider, st.typ, st.msg)
	err.HTTPStatus = statusCode
	if body == "" {
		return err
	}

	lower := strings.ToLower(body)
	for _, r := range bodyRules {
		if matchesAll(lower, r.phrases) {
			err.Type, err.Message, err.Retryable = r.typ, r.msg, isRetryableError(r.typ)
			return err
		}
	}
	err.Message += ": " + truncate(body, 200)
	return err
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// IsLLMError reports whether err is, or wraps, an *LLMError.
func IsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// AsCollaboratorError normalizes any error returned by a provider call into
// an *LLMError. Deadline and network timeouts become ErrorTypeTimeout,
// cancellation and everything else unknown stay non-retryable.
func AsCollaboratorError(provider Provider, err error) error {
	if err == nil {
		return nil
	}
	if llmErr, ok := IsLLMError(err); ok {
		if llmErr.Provider == "" {
			llmErr.Provider = provider
		}
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewLLMErrorWithCause(provider, ErrorTypeTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewLLMErrorWithCause(provider, ErrorTypeUnknown, "request canceled", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewLLMErrorWithCause(provider, ErrorTypeTimeout, err.Error(), err)
	case errors.As(err, &netErr):
		return NewLLMErrorWithCause(provider, ErrorTypeConnectionError, err.Error(), err)
	}
	return NewLLMErrorWithCause(provider, ErrorTypeUnknown, err.Error(), err)
}

// IsRetryableError derives retryability from the error type, so an
// LLMError built without NewLLMError still classifies correctly.
func IsRetryableError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return isRetryableError(llmErr.Type)
	}
	return false
}

// HasErrorType reports whether err wraps an *LLMError of type t.
func HasErrorType(err error, t ErrorType) bool {
	llmErr, ok := IsLLMError(err)
	return ok && llmErr.Type == t
}

// ValidationError represents a validation error for structured outputs
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

func (v *ValidationError) Error() string {
	if v.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", v.Field, v.Message)
	}
	return fmt.Sprintf("validation error: %s", v.Message)
}

// MultiValidationError represents multiple validation errors
type MultiValidationError struct {
	Errors []ValidationError `json:"errors"`
}

func (m *MultiValidationError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d validation errors occurred", len(m.Errors))
}

// Add adds a validation error
func (m *MultiValidationError) Add(field string, value interface{}, message string) {
	m.Errors = append(m.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (m *MultiValidationError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ErrorOrNil returns the error if there are validation errors, otherwise nil
func (m *MultiValidationError) ErrorOrNil() error {
	if m.HasErrors() {
		return m
	}
	return nil
}
