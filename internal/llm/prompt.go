package llm

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
)

const systemPrompt = "You are a fact-checking AI that analyzes news articles for credibility, bias, and misinformation. Return ONLY valid JSON."

const userPromptTemplate = `Analyze this article for credibility and potential misinformation:

Title: %s
URL: %s
Content: %s

Provide analysis in JSON format:
{
  "score": <0-100>,
  "confidence": <0-1>,
  "reasons": ["reason1", "reason2"],
  "sources": ["source1", "source2"],
  "bias": "political lean if detected"
}

Consider:
1. Source credibility
2. Factual accuracy indicators
3. Emotional language/sensationalism
4. Citations and sources
5. Author credentials
6. Bias indicators`

// BuildPrompt renders the user prompt with at most maxChars characters of content.
func BuildPrompt(article domain.Article, maxChars int) string {
	return fmt.Sprintf(userPromptTemplate, article.Title, article.URL, truncate(article.Content, maxChars))
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
