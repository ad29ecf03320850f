package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
)

// Defaults for fields the model leaves out.
const (
	DefaultScore      = 50
	DefaultConfidence = 0.5
	DefaultReason     = "Analysis incomplete"
)

var errNotObject = errors.New("model output is not a JSON object")

// modelOutput is the loosely-typed object the model is asked to return.
// Every field is optional on the wire.
type modelOutput struct {
	Score      any `json:"score"`
	Confidence any `json:"confidence"`
	Reasons    any `json:"reasons"`
	Sources    any `json:"sources"`
	Bias       any `json:"bias"`
}

// MapResponse turns the model's message content into a normalized result.
// Any verdict the model supplies is ignored and recomputed from the score.
// It is pure: the same content always maps to the same result.
func MapResponse(content string) (domain.AnalysisResult, error) {
	payload := stripCodeFence(content)
	if !strings.HasPrefix(payload, "{") {
		return domain.AnalysisResult{}, domain.NewParseError(errNotObject)
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return domain.AnalysisResult{}, domain.NewParseError(fmt.Errorf("decode model output: %w", err))
	}

	score := DefaultScore
	if v, ok := toNumber(out.Score); ok {
		score = int(math.Round(math.Min(math.Max(v, domain.MinScore), domain.MaxScore)))
	}

	confidence := DefaultConfidence
	if v, ok := toNumber(out.Confidence); ok {
		confidence = v
	}

	reasons, ok := toStrings(out.Reasons)
	if !ok {
		reasons = []string{DefaultReason}
	}

	sources, ok := toStrings(out.Sources)
	if !ok {
		sources = []string{}
	}

	result := domain.AnalysisResult{
		Score:      score,
		Confidence: confidence,
		Reasons:    reasons,
		Sources:    sources,
	}
	if bias, isString := out.Bias.(string); isString && strings.TrimSpace(bias) != "" {
		result.BiasDetected = &bias
	}

	return result.Normalized(), nil
}

// stripCodeFence removes a ``` or ```json fence wrapped around the payload.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// toNumber accepts JSON numbers and numeric strings.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toStrings accepts an array (keeping its string elements) or a lone string.
func toStrings(v any) ([]string, bool) {
	switch items := v.(type) {
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		return []string{items}, true
	default:
		return nil, false
	}
}
