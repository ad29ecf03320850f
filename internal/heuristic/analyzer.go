// Package heuristic implements the local credibility pre-screen: a handful of
// cheap penalty rules run before the remote model answers.
package heuristic

import (
	"math/rand/v2"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// Rule penalties and starting values.
const (
	startScore      = 100
	startConfidence = 0.8

	sensationalPenalty   = 20
	briefPenalty         = 15
	politicalPenalty     = 10
	unknownSourcePenalty = 25
)

// Reasons attached by each rule.
const (
	ReasonSensational   = "Sensational title detected"
	ReasonBrief         = "Article too brief for in-depth reporting"
	ReasonPolitical     = "Potential political bias in content"
	ReasonUnknownSource = "Unknown source credibility"
)

// RandomSource supplies the uniform draw behind the unknown-source rule.
type RandomSource interface {
	Float64() float64
}

// FixedSource always returns the same draw.
type FixedSource float64

// Float64 implements RandomSource.
func (f FixedSource) Float64() float64 { return float64(f) }

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Config holds the word lists and limits the rules use.
type Config struct {
	SensationalWords []string
	PoliticalTerms   []string
	TrustedDomains   []string
	// MinContentLength is the character count below which content is "too brief".
	MinContentLength int
	// UnknownSourceThreshold is the draw above which an untrusted source is penalised.
	UnknownSourceThreshold float64
}

// DefaultConfig returns the stock rule set.
func DefaultConfig() Config {
	return Config{
		SensationalWords:       []string{"breaking", "shocking", "urgent", "exclusive"},
		PoliticalTerms:         []string{"trump", "biden"},
		TrustedDomains:         []string{"nytimes.com", "bbc.com"},
		MinContentLength:       500,
		UnknownSourceThreshold: 0.7,
	}
}

// Analyzer scores articles with the local rules. It is safe for concurrent
// use when its RandomSource is.
type Analyzer struct {
	cfg         Config
	sensational *ahocorasick.Matcher
	political   *ahocorasick.Matcher
	trusted     *ahocorasick.Matcher
	random      RandomSource
	logger      infralogger.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRandomSource replaces the process-wide random source.
func WithRandomSource(src RandomSource) Option {
	return func(a *Analyzer) {
		if src != nil {
			a.random = src
		}
	}
}

// WithConfig replaces the default rule set. Empty lists and non-positive
// limits keep their defaults.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		if len(cfg.SensationalWords) > 0 {
			a.cfg.SensationalWords = cfg.SensationalWords
		}
		if len(cfg.PoliticalTerms) > 0 {
			a.cfg.PoliticalTerms = cfg.PoliticalTerms
		}
		if len(cfg.TrustedDomains) > 0 {
			a.cfg.TrustedDomains = cfg.TrustedDomains
		}
		if cfg.MinContentLength > 0 {
			a.cfg.MinContentLength = cfg.MinContentLength
		}
		if cfg.UnknownSourceThreshold > 0 {
			a.cfg.UnknownSourceThreshold = cfg.UnknownSourceThreshold
		}
	}
}

// NewAnalyzer builds one automaton per keyword rule.
func NewAnalyzer(logger infralogger.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:    DefaultConfig(),
		random: globalSource{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.sensational = newMatcher(a.cfg.SensationalWords)
	a.political = newMatcher(a.cfg.PoliticalTerms)
	a.trusted = newMatcher(a.cfg.TrustedDomains)

	logger.Debug("Heuristic analyzer initialized",
		infralogger.Int("sensational_words", len(a.cfg.SensationalWords)),
		infralogger.Int("political_terms", len(a.cfg.PoliticalTerms)),
		infralogger.Int("trusted_domains", len(a.cfg.TrustedDomains)),
	)

	return a
}

// Analyze scores an article. It never fails and performs no I/O.
func (a *Analyzer) Analyze(article domain.Article) domain.AnalysisResult {
	score := startScore
	reasons := make([]string, 0, 4)

	if contains(a.sensational, article.Title) {
		score -= sensationalPenalty
		reasons = append(reasons, ReasonSensational)
	}

	if article.ContentLength() < a.cfg.MinContentLength {
		score -= briefPenalty
		reasons = append(reasons, ReasonBrief)
	}

	if contains(a.political, article.Content) {
		score -= politicalPenalty
		reasons = append(reasons, ReasonPolitical)
	}

	// The draw is only taken for untrusted sources.
	if !contains(a.trusted, article.URL) && a.random.Float64() > a.cfg.UnknownSourceThreshold {
		score -= unknownSourcePenalty
		reasons = append(reasons, ReasonUnknownSource)
	}

	result := domain.AnalysisResult{
		Score:      score,
		Confidence: startConfidence,
		Reasons:    reasons,
	}.Normalized()

	a.logger.Debug("Local heuristic scored article",
		infralogger.URL(article.URL),
		infralogger.Int("score", result.Score),
		infralogger.Strings("reasons", result.Reasons),
	)

	return result
}

func newMatcher(words []string) *ahocorasick.Matcher {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		if n := normalize(w); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		return nil
	}
	return ahocorasick.NewStringMatcher(normalized)
}

// contains reports a case-insensitive substring hit for any dictionary word.
func contains(m *ahocorasick.Matcher, text string) bool {
	if m == nil || text == "" {
		return false
	}
	return len(m.Match([]byte(normalize(text)))) > 0
}

func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
