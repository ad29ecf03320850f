// Package llm calls a chat-completion endpoint for a credibility assessment
// of one article.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	infraerrors "github.com/jonesrussell/north-cloud/veritas/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/veritas/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// Request defaults.
const (
	DefaultEndpoint        = "https://api.cerebras.ai/v1/chat/completions"
	DefaultModel           = "llama3.1-8b"
	DefaultTemperature     = 0.3
	DefaultMaxTokens       = 1000
	DefaultMaxContentChars = 2000
)

// maxResponseBytes caps a success body.
const maxResponseBytes = 1 << 20

var errNoChoices = errors.New("response has no choices")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat-completion request envelope.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client is bound to a single API key. Build a new one when the key changes.
type Client struct {
	apiKey          string
	endpoint        string
	model           string
	temperature     float64
	maxTokens       int
	maxContentChars int
	httpClient      *http.Client
	limiter         *rate.Limiter
	logger          infralogger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the chat-completion URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSampling overrides temperature and max tokens.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(c *Client) {
		if temperature >= 0 {
			c.temperature = temperature
		}
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithMaxContentChars limits how much article content goes into the prompt.
func WithMaxContentChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxContentChars = n
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter throttles outbound calls. Share one limiter across client
// rebuilds so a key change does not reset the budget.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger infralogger.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client bound to apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:          apiKey,
		endpoint:        DefaultEndpoint,
		model:           DefaultModel,
		temperature:     DefaultTemperature,
		maxTokens:       DefaultMaxTokens,
		maxContentChars: DefaultMaxContentChars,
		logger:          infralogger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		// The caller's context is the only bound on a remote call.
		c.httpClient = infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: -1})
	}
	return c
}

// Analyze issues exactly one chat-completion call for article. Failures are
// *domain.AnalysisError values of kind api, transport, timeout or parse.
func (c *Client) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait refuses up front when the next token lies past the
			// deadline; only a context that actually ended is a timeout.
			if ctx.Err() != nil {
				return domain.AnalysisResult{}, domain.NewTimeoutError(err)
			}
			return domain.AnalysisResult{}, domain.NewTransportError(fmt.Errorf("%w: %w", domain.ErrRateLimited, err))
		}
	}

	body, err := json.Marshal(c.buildRequest(article))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.AnalysisResult{}, domain.NewTimeoutError(err)
		}
		return domain.AnalysisResult{}, domain.NewTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.AnalysisResult{}, c.apiError(resp, article.URL)
	}

	var envelope chatResponse
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&envelope); decodeErr != nil {
		if ctx.Err() != nil {
			return domain.AnalysisResult{}, domain.NewTimeoutError(decodeErr)
		}
		return domain.AnalysisResult{}, domain.NewParseError(fmt.Errorf("decode envelope: %w", decodeErr))
	}
	if len(envelope.Choices) == 0 {
		return domain.AnalysisResult{}, domain.NewParseError(errNoChoices)
	}

	result, err := MapResponse(envelope.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Model returned unreadable content",
			infralogger.URL(article.URL),
			infralogger.Error(err),
		)
		return domain.AnalysisResult{}, err
	}

	return result, nil
}

func (c *Client) buildRequest(article domain.Article) ChatRequest {
	return ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(article, c.maxContentChars)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func (c *Client) apiError(resp *http.Response, articleURL string) error {
	parsed := infraerrors.ParseHTTPError(resp)

	statusCode, ok := infraerrors.GetHTTPStatusCode(parsed)
	if !ok {
		parsed = &infraerrors.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		statusCode = resp.StatusCode
	}

	var httpErr *infraerrors.HTTPError
	_ = errors.As(parsed, &httpErr)

	c.logger.Warn("Remote analysis rejected",
		infralogger.URL(articleURL),
		infralogger.Int("status_code", statusCode),
		infralogger.String("provider_message", httpErr.Message),
	)

	return domain.NewAPIError(httpErr.StatusText(), httpErr)
}
