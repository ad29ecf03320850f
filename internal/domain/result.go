package domain

import (
	"math"
	"time"
)

// Verdict is the coarse label derived from a credibility score.
type Verdict string

const (
	VerdictCredible     Verdict = "credible"
	VerdictQuestionable Verdict = "questionable"
	VerdictUnreliable   Verdict = "unreliable"
)

// Score bounds and verdict thresholds.
const (
	MinScore              = 0
	MaxScore              = 100
	CredibleThreshold     = 70
	QuestionableThreshold = 40
)

// VerdictFor maps a score to its verdict. Thresholds are inclusive.
func VerdictFor(score int) Verdict {
	switch {
	case score >= CredibleThreshold:
		return VerdictCredible
	case score >= QuestionableThreshold:
		return VerdictQuestionable
	default:
		return VerdictUnreliable
	}
}

// AnalysisResult is a credibility assessment of one article.
type AnalysisResult struct {
	Score        int      `json:"score"`
	Confidence   float64  `json:"confidence"`
	Verdict      Verdict  `json:"verdict"`
	Reasons      []string `json:"reasons"`
	Sources      []string `json:"sources"`
	BiasDetected *string  `json:"biasDetected,omitempty"`
}

// Normalized returns a copy with score and confidence clamped and the
// verdict recomputed from the clamped score.
func (r AnalysisResult) Normalized() AnalysisResult {
	r.Score = ClampScore(r.Score)
	r.Confidence = ClampConfidence(r.Confidence)
	r.Verdict = VerdictFor(r.Score)
	return r
}

// IsCredible reports whether the result carries the credible verdict.
func (r AnalysisResult) IsCredible() bool {
	return r.Verdict == VerdictCredible
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score int) int {
	return min(max(score, MinScore), MaxScore)
}

// ClampConfidence bounds a confidence to [0, 1]. NaN becomes 0.
func ClampConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return 0
	}
	return math.Min(math.Max(confidence, 0), 1)
}

// CacheEntry is a stored remote result and when it was produced.
type CacheEntry struct {
	Result    AnalysisResult `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}

// FreshFor reports whether the entry is younger than ttl at now.
func (e CacheEntry) FreshFor(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}
