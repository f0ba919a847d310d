package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPError is the raw transport-level failure a provider's HTTP client
// returns before it's classified into a ProviderError.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // 0 if the response didn't carry a Retry-After header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, truncateBody(e.Body, 500))
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ParseRetryAfter parses an HTTP Retry-After header value, which is either
// an integer number of seconds or an HTTP-date. Returns 0 if empty or
// unparseable (callers fall back to their own backoff).
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}
	return 0
}

// ErrorKind is the closed provider-error taxonomy every provider
// implementation's errors get classified into.
type ErrorKind int

const (
	ErrOther ErrorKind = iota
	ErrRateLimited
	ErrContextLengthExceeded
	ErrAuthentication
	ErrQuotaExceeded
	ErrModelNotFound
	ErrContentFiltered
	ErrNetwork
	ErrInvalidResponse
	ErrStreamError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRateLimited:
		return "rate_limited"
	case ErrContextLengthExceeded:
		return "context_length_exceeded"
	case ErrAuthentication:
		return "authentication"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrModelNotFound:
		return "model_not_found"
	case ErrContentFiltered:
		return "content_filtered"
	case ErrNetwork:
		return "network"
	case ErrInvalidResponse:
		return "invalid_response"
	case ErrStreamError:
		return "stream_error"
	default:
		return "other"
	}
}

// ProviderError is the classified form of a provider failure, surfaced to
// the agent loop so it can decide whether to retry, hand off, or abort.
type ProviderError struct {
	Kind       ErrorKind
	HTTPStatus int           // 0 if not an HTTP failure
	RetryAfter time.Duration // set only for ErrRateLimited
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the agent loop should retry the call once
// (RateLimited, Network, StreamError) rather than surfacing it to the
// model/user immediately.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrRateLimited, ErrNetwork, ErrStreamError:
		return true
	default:
		return false
	}
}

// Classify maps a raw provider error (typically an *HTTPError, but also
// plain transport errors) into a ProviderError.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyHTTP(httpErr)
	}

	return &ProviderError{Kind: ErrNetwork, Message: "transport failure", Cause: err}
}

func classifyHTTP(e *HTTPError) *ProviderError {
	body := strings.ToLower(e.Body)

	switch e.Status {
	case http.StatusTooManyRequests:
		return &ProviderError{Kind: ErrRateLimited, HTTPStatus: e.Status, RetryAfter: e.RetryAfter, Message: "rate limited", Cause: e}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &ProviderError{Kind: ErrAuthentication, HTTPStatus: e.Status, Message: "authentication failed", Cause: e}
	case http.StatusNotFound:
		return &ProviderError{Kind: ErrModelNotFound, HTTPStatus: e.Status, Message: "model not found", Cause: e}
	case http.StatusPaymentRequired:
		return &ProviderError{Kind: ErrQuotaExceeded, HTTPStatus: e.Status, Message: "quota exceeded", Cause: e}
	}

	switch {
	case strings.Contains(body, "context_length") || strings.Contains(body, "maximum context length") || strings.Contains(body, "too many tokens"):
		return &ProviderError{Kind: ErrContextLengthExceeded, HTTPStatus: e.Status, Message: "context length exceeded", Cause: e}
	case strings.Contains(body, "content_filter") || strings.Contains(body, "content policy"):
		return &ProviderError{Kind: ErrContentFiltered, HTTPStatus: e.Status, Message: "content filtered", Cause: e}
	case strings.Contains(body, "quota"):
		return &ProviderError{Kind: ErrQuotaExceeded, HTTPStatus: e.Status, Message: "quota exceeded", Cause: e}
	case e.Status >= 500:
		return &ProviderError{Kind: ErrNetwork, HTTPStatus: e.Status, Message: "upstream server error", Cause: e}
	default:
		return &ProviderError{Kind: ErrInvalidResponse, HTTPStatus: e.Status, Message: "unexpected response", Cause: e}
	}
}
