// Package credentials owns the remote client handle and rebuilds it whenever
// the API key changes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/telemetry"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/circuitbreaker"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// DefaultKeyPrefix is the prefix every Cerebras API key carries.
const DefaultKeyPrefix = "csk-"

var (
	// ErrEmptyKey is returned for a blank API key.
	ErrEmptyKey = errors.New("API key is required")
	// ErrInvalidKeyPrefix is returned for a key without the provider prefix.
	ErrInvalidKeyPrefix = errors.New("invalid API key format")
	// errServiceUnavailable wraps an open circuit.
	errServiceUnavailable = errors.New("remote service temporarily unavailable")
)

// RemoteAnalyzer performs one remote credibility analysis.
type RemoteAnalyzer interface {
	Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error)
}

// Factory builds a RemoteAnalyzer bound to apiKey.
type Factory func(apiKey string) RemoteAnalyzer

// ValidateKey checks the boundary rule for API keys.
func ValidateKey(key, prefix string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if prefix != "" && !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("%w: key must start with %q", ErrInvalidKeyPrefix, prefix)
	}
	return nil
}

// MaskKey hides all but the prefix and last four characters of key.
func MaskKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return strings.Repeat("*", len(key))
	}
	return key[:visible] + strings.Repeat("*", len(key)-visible*2) + key[len(key)-visible:]
}

// Provider holds the latest RemoteAnalyzer. Readers always see either the
// latest fully built client or none.
type Provider struct {
	mu        sync.RWMutex
	current   RemoteAnalyzer
	apiKey    string
	factory   Factory
	breaker   *circuitbreaker.Breaker
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// Option configures a Provider.
type Option func(*Provider)

// WithBreaker guards every client the provider hands out with a circuit
// breaker built from cfg.
func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(p *Provider) {
		cfg.IsFailure = countsAsOutage
		userHook := cfg.OnStateChange
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			p.logger.Warn("Remote circuit breaker changed state",
				infralogger.String("from", from.String()),
				infralogger.String("to", to.String()),
			)
			p.telemetry.RecordBreakerState(to.String())
			if userHook != nil {
				userHook(from, to)
			}
		}
		p.breaker = circuitbreaker.New(cfg)
	}
}

// WithTelemetry records breaker transitions.
func WithTelemetry(tp *telemetry.Provider) Option {
	return func(p *Provider) {
		p.telemetry = tp
	}
}

// NewProvider creates a provider with no client configured.
func NewProvider(factory Factory, logger infralogger.Logger, opts ...Option) *Provider {
	p := &Provider{factory: factory, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Update rebuilds the client for apiKey. An empty key clears it.
func (p *Provider) Update(apiKey string) {
	apiKey = strings.TrimSpace(apiKey)

	var next RemoteAnalyzer
	if apiKey != "" {
		next = p.factory(apiKey)
		if p.breaker != nil {
			next = &guardedAnalyzer{inner: next, breaker: p.breaker}
		}
	}

	p.mu.Lock()
	changed := apiKey != p.apiKey
	p.current = next
	p.apiKey = apiKey
	p.mu.Unlock()

	// A new key deserves a fresh chance.
	if changed && p.breaker != nil {
		p.breaker.Reset()
	}

	p.logger.Info("Remote client updated",
		infralogger.Bool("configured", next != nil),
		infralogger.String("api_key", MaskKey(apiKey)),
	)
}

// Current returns the latest client, or a configuration error when no key is set.
func (p *Provider) Current() (RemoteAnalyzer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil, domain.NewConfigurationError()
	}
	return p.current, nil
}

// Configured reports whether a key is set.
func (p *Provider) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil
}

type guardedAnalyzer struct {
	inner   RemoteAnalyzer
	breaker *circuitbreaker.Breaker
}

func (g *guardedAnalyzer) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	err := g.breaker.Execute(ctx, func() error {
		var callErr error
		result, callErr = g.inner.Analyze(ctx, article)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return domain.AnalysisResult{}, domain.NewTransportError(fmt.Errorf("%w: %w", errServiceUnavailable, err))
	}
	return result, err
}

// countsAsOutage trips the breaker only for failures that point at the
// remote service. Unreadable model output and local throttling are not
// outages.
func countsAsOutage(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindAPI, domain.KindTransport, domain.KindTimeout:
		return true
	default:
		return false
	}
}
