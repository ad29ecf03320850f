package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures.
type ErrorKind string

const (
	KindUnknown         ErrorKind = ""
	KindConfiguration   ErrorKind = "configuration"
	KindContentTooShort ErrorKind = "content_too_short"
	KindAPI             ErrorKind = "api"
	KindParse           ErrorKind = "parse"
	KindTimeout         ErrorKind = "timeout"
	KindTransport       ErrorKind = "transport"
)

// User-facing messages per kind.
const (
	MsgConfiguration   = "API key not configured. Add your Cerebras API key in the extension settings."
	MsgContentTooShort = "Article content too short to analyze reliably."
	MsgParse           = "The AI returned an unreadable response. Please retry."
	MsgTimeout         = "Analysis timed out. The API might be slow or unavailable. Please try again."
	MsgTransport       = "Connection error. Please check your network and try again."
	MsgUnknown         = "Analysis failed. Please try again."
)

// AnalysisError is a classified failure with a message fit for the user.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a manual retry can help.
func (e *AnalysisError) Retryable() bool {
	return e.Kind.Retryable()
}

// Retryable reports whether failures of this kind are worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAPI, KindParse, KindTimeout, KindTransport:
		return true
	default:
		return false
	}
}

// NewConfigurationError reports a missing credential.
func NewConfigurationError() *AnalysisError {
	return &AnalysisError{Kind: KindConfiguration, Message: MsgConfiguration}
}

// NewContentTooShortError reports content below the analysis minimum.
func NewContentTooShortError() *AnalysisError {
	return &AnalysisError{Kind: KindContentTooShort, Message: MsgContentTooShort}
}

// NewAPIError reports a non-2xx response; status is the HTTP status text.
func NewAPIError(status string, err error) *AnalysisError {
	return &AnalysisError{
		Kind:    KindAPI,
		Message: fmt.Sprintf("API error: %s. Check your API key and connection.", status),
		Err:     err,
	}
}

// NewParseError reports model output that could not be understood.
func NewParseError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindParse, Message: MsgParse, Err: err}
}

// NewTimeoutError reports a remote call that outlived its bound.
func NewTimeoutError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindTimeout, Message: MsgTimeout, Err: err}
}

// ErrRateLimited marks a call refused by the local outbound rate limit. It
// travels inside a transport error and is not a remote outage.
var ErrRateLimited = errors.New("rate limited")

// NewTransportError reports a network failure.
func NewTransportError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindTransport, Message: MsgTransport, Err: err}
}

// KindOf returns the kind of the first AnalysisError in err's chain.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return MsgUnknown
}

// IsRetryable reports whether err is a retryable AnalysisError.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
