package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a backend call failed. The retry executor
// and the HTTP API both key off it.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether another attempt can succeed for this reason.
func (r FailoverReason) IsRetryable() bool {
	return r == FailoverRateLimit || r == FailoverTimeout || r == FailoverServerError
}

// ProviderError is a classified backend failure. It reaches callers
// unchanged once retries are exhausted.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int    // HTTP status, when the backend returned one
	Code      string // backend error code or type
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Reason)
	if e.Provider != "" {
		b.WriteString(" " + e.Provider)
	}
	if e.Model != "" {
		b.WriteString(" model=" + e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != "" {
		b.WriteString(" code=" + e.Code)
	}
	switch {
	case e.Message != "":
		b.WriteString(" " + e.Message)
	case e.Cause != nil:
		b.WriteString(" " + e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the retry executor should try again.
// Unclassified failures are retried; the attempt budget bounds them.
func (e *ProviderError) Retryable() bool {
	if errors.Is(e.Cause, context.Canceled) {
		return false
	}
	return e.Reason.IsRetryable() || e.Reason == FailoverUnknown
}

// NewProviderError wraps cause, classifying it from its message.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

// WithCode records the backend error code. A known code overrides the
// status classification, since it is more specific.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// messagePatterns classifies errors that carry neither status nor code,
// typically transport failures surfaced by the SDKs. Checked in order.
var messagePatterns = []struct {
	reason   FailoverReason
	patterns []string
}{
	{FailoverTimeout, []string{"timeout", "deadline exceeded", "etimedout"}},
	{FailoverRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{FailoverAuth, []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"}},
	{FailoverBilling, []string{"billing", "quota", "402"}},
	{FailoverContentFilter, []string{"content_filter", "content policy", "safety", "blocked"}},
	{FailoverModelUnavailable, []string{"model not found", "model_not_found", "does not exist"}},
	{FailoverServerError, []string{"server error", "500", "502", "503", "504"}},
}

// ClassifyError derives a reason from the error text alone.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.reason
			}
		}
	}
	return FailoverUnknown
}

func classifyStatusCode(status int) FailoverReason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailoverAuth
	case http.StatusPaymentRequired:
		return FailoverBilling
	case http.StatusTooManyRequests:
		return FailoverRateLimit
	case http.StatusRequestTimeout:
		return FailoverTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return FailoverInvalidRequest
	case http.StatusNotFound:
		return FailoverModelUnavailable
	}
	if status >= 500 {
		return FailoverServerError
	}
	return FailoverUnknown
}

// errorCodes maps the error codes each backend reports, lowercased.
// OpenAI and Mistral send code or type, Anthropic an error type, Gemini
// a google.rpc status and Bedrock a smithy exception name.
var errorCodes = map[string]FailoverReason{
	// OpenAI-compatible
	"rate_limit_exceeded":      FailoverRateLimit,
	"invalid_api_key":          FailoverAuth,
	"insufficient_quota":       FailoverBilling,
	"model_not_found":          FailoverModelUnavailable,
	"content_filter":           FailoverContentFilter,
	"content_policy_violation": FailoverContentFilter,
	"context_length_exceeded":  FailoverInvalidRequest,
	"invalid_request_error":    FailoverInvalidRequest,
	"server_error":             FailoverServerError,

	// Anthropic
	"rate_limit_error":     FailoverRateLimit,
	"authentication_error": FailoverAuth,
	"permission_error":     FailoverAuth,
	"billing_error":        FailoverBilling,
	"not_found_error":      FailoverModelUnavailable,
	"request_too_large":    FailoverInvalidRequest,
	"overloaded_error":     FailoverServerError,
	"api_error":            FailoverServerError,

	// Gemini
	"resource_exhausted": FailoverRateLimit,
	"unauthenticated":    FailoverAuth,
	"permission_denied":  FailoverAuth,
	"not_found":          FailoverModelUnavailable,
	"invalid_argument":   FailoverInvalidRequest,
	"deadline_exceeded":  FailoverTimeout,
	"unavailable":        FailoverServerError,
	"internal":           FailoverServerError,

	// Bedrock
	"throttlingexception":           FailoverRateLimit,
	"servicequotaexceededexception": FailoverRateLimit,
	"accessdeniedexception":         FailoverAuth,
	"unrecognizedclientexception":   FailoverAuth,
	"resourcenotfoundexception":     FailoverModelUnavailable,
	"modelnotreadyexception":        FailoverModelUnavailable,
	"validationexception":           FailoverInvalidRequest,
	"modeltimeoutexception":         FailoverTimeout,
	"modelerrorexception":           FailoverServerError,
	"internalserverexception":       FailoverServerError,
	"serviceunavailableexception":   FailoverServerError,
}

func classifyErrorCode(code string) FailoverReason {
	if reason, ok := errorCodes[strings.ToLower(code)]; ok {
		return reason
	}
	return FailoverUnknown
}

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	_, ok := GetProviderError(err)
	return ok
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}
