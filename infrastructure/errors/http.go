// Package errors provides HTTP error parsing shared by Veritas' outbound clients.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MinErrorStatusCode is the lowest status code treated as an error.
const MinErrorStatusCode = 400

// maxErrorBodyBytes caps how much of an error body is read and retained.
const maxErrorBodyBytes = 64 << 10

// HTTPError represents an HTTP API error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%s): %s", e.Status, e.Message)
	}
	return "HTTP error: " + e.Status
}

// StatusText returns the reason phrase without the numeric code
// ("Unauthorized" for "401 Unauthorized").
func (e *HTTPError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	_, after, found := strings.Cut(e.Status, " ")
	if found {
		return after
	}
	return e.Status
}

// ParseHTTPError reads resp.Body and builds an *HTTPError, or returns nil
// for non-error status codes. It understands three body shapes:
//
//	{"error": "msg"} / {"message": "msg"}
//	{"error": {"message": "msg", "type": "..."}}   (chat-completion providers)
//	{"errors": [{"title": "...", "detail": "..."}]} (JSON:API)
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("failed to read error response body: %v", err),
		}
	}

	bodyStr := string(bodyBytes)
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       bodyStr,
		Message:    extractMessage(bodyBytes, bodyStr),
	}
}

func extractMessage(body []byte, fallback string) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return strings.TrimSpace(fallback)
	}

	if len(envelope.Error) > 0 {
		var flat string
		if json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}

	if envelope.Message != "" {
		return envelope.Message
	}

	if len(envelope.Errors) > 0 {
		details := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			if e.Detail != "" {
				details[i] = e.Title + ": " + e.Detail
			} else {
				details[i] = e.Title
			}
		}
		return strings.Join(details, "; ")
	}

	return strings.TrimSpace(fallback)
}

// GetHTTPStatusCode returns the status code of an *HTTPError anywhere in
// err's chain.
func GetHTTPStatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
