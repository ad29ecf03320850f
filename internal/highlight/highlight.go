// Package highlight flags the sentences of an article that echo the reasons
// given for a low credibility score.
package highlight

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// Sentences splits content into sentences on runs of terminal punctuation.
// A trailing fragment after the last terminator is its own sentence.
func Sentences(content string) []string {
	return sentenceBoundary.Split(content, -1)
}

// Indices returns the indices of sentences in content that mention any of
// reasons, ignoring case. Reasons are matched literally.
func Indices(content string, reasons []string) []int {
	pattern := reasonPattern(reasons)
	if pattern == nil {
		return nil
	}

	var flagged []int
	for i, sentence := range Sentences(content) {
		if pattern.MatchString(sentence) {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

func reasonPattern(reasons []string) *regexp.Regexp {
	quoted := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r = strings.TrimSpace(r); r != "" {
			quoted = append(quoted, regexp.QuoteMeta(r))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
}
