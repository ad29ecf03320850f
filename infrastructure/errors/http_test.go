package errors_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	infraerrors "github.com/jonesrussell/north-cloud/veritas/infrastructure/errors"
)

func newResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		code        int
		body        string
		wantNil     bool
		wantMessage string
	}{
		{name: "success is not an error", code: http.StatusOK, body: "{}", wantNil: true},
		{name: "flat error", code: http.StatusBadRequest, body: `{"error":"bad model"}`, wantMessage: "bad model"},
		{name: "message field", code: http.StatusForbidden, body: `{"message":"forbidden"}`, wantMessage: "forbidden"},
		{
			name:        "nested provider error",
			code:        http.StatusUnauthorized,
			body:        `{"error":{"message":"Wrong API Key","type":"invalid_request_error"}}`,
			wantMessage: "Wrong API Key",
		},
		{
			name:        "json api errors",
			code:        http.StatusUnprocessableEntity,
			body:        `{"errors":[{"title":"Invalid","detail":"score"},{"title":"Missing"}]}`,
			wantMessage: "Invalid: score; Missing",
		},
		{name: "plain text body", code: http.StatusBadGateway, body: "upstream down\n", wantMessage: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := infraerrors.ParseHTTPError(newResponse(tt.code, tt.body))
			if tt.wantNil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}

			code, ok := infraerrors.GetHTTPStatusCode(err)
			if !ok || code != tt.code {
				t.Errorf("status code: got %d (ok=%v), want %d", code, ok, tt.code)
			}

			httpErr := err.(*infraerrors.HTTPError)
			if httpErr.Message != tt.wantMessage {
				t.Errorf("message: got %q, want %q", httpErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestHTTPError_StatusText(t *testing.T) {
	t.Parallel()

	err := &infraerrors.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	if got := err.StatusText(); got != "Unauthorized" {
		t.Errorf("StatusText: got %q, want %q", got, "Unauthorized")
	}

	custom := &infraerrors.HTTPError{StatusCode: 599, Status: "599 Network Timeout"}
	if got := custom.StatusText(); got != "Network Timeout" {
		t.Errorf("StatusText: got %q, want %q", got, "Network Timeout")
	}
}

func TestGetHTTPStatusCode_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("call provider: %w", &infraerrors.HTTPError{StatusCode: http.StatusTooManyRequests})
	code, ok := infraerrors.GetHTTPStatusCode(wrapped)
	if !ok || code != http.StatusTooManyRequests {
		t.Errorf("got %d (ok=%v), want 429", code, ok)
	}
}
