package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/llm"
	infraerrors "github.com/jonesrussell/north-cloud/veritas/infrastructure/errors"
)

func testArticle() domain.Article {
	return domain.Article{
		URL:     "https://example.com/story",
		Title:   "Budget passes",
		Content: strings.Repeat("c", 2500),
	}
}

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestClient_Analyze_Success(t *testing.T) {
	t.Parallel()

	var got llm.ChatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatBody(`{"score":85,"reasons":["well sourced"]}`)))
	}))
	defer server.Close()

	client := llm.NewClient("csk-test", llm.WithEndpoint(server.URL))
	result, err := client.Analyze(context.Background(), testArticle())
	require.NoError(t, err)

	assert.Equal(t, 85, result.Score)
	assert.Equal(t, "Bearer csk-test", auth)
	assert.Equal(t, llm.DefaultModel, got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Return ONLY valid JSON.")
	assert.Contains(t, got.Messages[1].Content, "Title: Budget passes")
	assert.Contains(t, got.Messages[1].Content, "URL: https://example.com/story")
	assert.Contains(t, got.Messages[1].Content, "Content: "+strings.Repeat("c", 2000)+"\n")
	assert.NotContains(t, got.Messages[1].Content, strings.Repeat("c", 2001))
	assert.Contains(t, got.Messages[1].Content, "6. Bias indicators")
}

func TestClient_Analyze_Unauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Wrong API Key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := llm.NewClient("csk-bad", llm.WithEndpoint(server.URL)).Analyze(context.Background(), testArticle())
	require.Error(t, err)

	assert.Equal(t, domain.KindAPI, domain.KindOf(err))
	assert.Equal(t, "API error: Unauthorized. Check your API key and connection.", domain.UserMessage(err))
	status, ok := infraerrors.GetHTTPStatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestClient_Analyze_ParseFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json envelope": "<html>oops</html>",
		"no choices":        `{"choices":[]}`,
		"prose content":     chatBody("The article seems credible."),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := llm.NewClient("csk-x", llm.WithEndpoint(server.URL)).Analyze(context.Background(), testArticle())
			assert.Equal(t, domain.KindParse, domain.KindOf(err))
		})
	}
}

func TestClient_Analyze_TransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := llm.NewClient("csk-x", llm.WithEndpoint(endpoint)).Analyze(context.Background(), testArticle())
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.True(t, domain.IsRetryable(err))
}

func TestClient_Analyze_ContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := llm.NewClient("csk-x", llm.WithEndpoint(server.URL)).Analyze(ctx, testArticle())
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestClient_Analyze_NonErrorStatusOutside2xx(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
	}))
	defer server.Close()

	_, err := llm.NewClient("csk-x", llm.WithEndpoint(server.URL)).Analyze(context.Background(), testArticle())
	require.Error(t, err)

	assert.Equal(t, domain.KindAPI, domain.KindOf(err))
	assert.Equal(t, "API error: Multiple Choices. Check your API key and connection.", domain.UserMessage(err))
	status, ok := infraerrors.GetHTTPStatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusMultipleChoices, status)
}

func TestClient_Analyze_RateLimitedFailsFastAsTransport(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatBody(`{"score":70}`)))
	}))
	defer server.Close()

	limiter := rate.NewLimiter(rate.Every(time.Minute), 1)
	client := llm.NewClient("csk-x", llm.WithEndpoint(server.URL), llm.WithLimiter(limiter))

	_, err := client.Analyze(context.Background(), testArticle())
	require.NoError(t, err, "first call uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err = client.Analyze(ctx, testArticle())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.NoError(t, ctx.Err(), "the analysis bound has not elapsed")
	assert.Less(t, elapsed, time.Second)
}

func TestBuildPrompt_TruncatesByCharacter(t *testing.T) {
	t.Parallel()

	article := domain.Article{Title: "t", URL: "u", Content: strings.Repeat("é", 10)}
	prompt := llm.BuildPrompt(article, 3)

	assert.Contains(t, prompt, "Content: ééé\n")
	assert.NotContains(t, prompt, "éééé")
}
