package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
)

func TestVerdictFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  domain.Verdict
	}{
		{100, domain.VerdictCredible},
		{70, domain.VerdictCredible},
		{69, domain.VerdictQuestionable},
		{40, domain.VerdictQuestionable},
		{39, domain.VerdictUnreliable},
		{0, domain.VerdictUnreliable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			if got := domain.VerdictFor(tt.score); got != tt.want {
				t.Errorf("VerdictFor(%d) = %s, want %s", tt.score, got, tt.want)
			}
		})
	}
}

func TestAnalysisResult_Normalized(t *testing.T) {
	r := domain.AnalysisResult{Score: 140, Confidence: -2, Verdict: domain.VerdictUnreliable}.Normalized()

	if r.Score != 100 || r.Confidence != 0 || r.Verdict != domain.VerdictCredible {
		t.Errorf("unexpected normalized result: %+v", r)
	}

	if got := domain.ClampConfidence(math.NaN()); got != 0 {
		t.Errorf("ClampConfidence(NaN) = %v, want 0", got)
	}
}

func TestCacheEntry_FreshFor(t *testing.T) {
	now := time.Unix(10_000, 0)
	entry := domain.CacheEntry{Timestamp: now.Add(-time.Hour + time.Millisecond)}

	if !entry.FreshFor(now, time.Hour) {
		t.Error("entry just under an hour old should be fresh")
	}

	entry.Timestamp = now.Add(-time.Hour)
	if entry.FreshFor(now, time.Hour) {
		t.Error("entry exactly an hour old should be stale")
	}
}

func TestArticle_Validate(t *testing.T) {
	if err := (domain.Article{}).Validate(); !errors.Is(err, domain.ErrInvalidArticle) {
		t.Errorf("expected ErrInvalidArticle, got %v", err)
	}
	if err := (domain.Article{URL: "https://example.com"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestArticle_ContentLengthCountsCharacters(t *testing.T) {
	a := domain.Article{Content: "héllo"}
	if got := a.ContentLength(); got != 5 {
		t.Errorf("ContentLength = %d, want 5", got)
	}
}

func TestAnalysisError_Classification(t *testing.T) {
	cause := errors.New("401 Unauthorized")
	wrapped := fmt.Errorf("remote analyze: %w", domain.NewAPIError("Unauthorized", cause))

	if kind := domain.KindOf(wrapped); kind != domain.KindAPI {
		t.Errorf("KindOf = %q, want %q", kind, domain.KindAPI)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should stay reachable through Unwrap")
	}
	if msg := domain.UserMessage(wrapped); msg != "API error: Unauthorized. Check your API key and connection." {
		t.Errorf("unexpected user message %q", msg)
	}
	if !domain.IsRetryable(wrapped) {
		t.Error("api errors are retryable")
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		err  *domain.AnalysisError
		want bool
	}{
		{domain.NewConfigurationError(), false},
		{domain.NewContentTooShortError(), false},
		{domain.NewParseError(nil), true},
		{domain.NewTimeoutError(nil), true},
		{domain.NewTransportError(nil), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMessage_Unclassified(t *testing.T) {
	if got := domain.UserMessage(errors.New("boom")); got != domain.MsgUnknown {
		t.Errorf("UserMessage = %q, want %q", got, domain.MsgUnknown)
	}
}
