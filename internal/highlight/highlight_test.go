package highlight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/veritas/internal/highlight"
)

func TestSentences(t *testing.T) {
	t.Parallel()

	got := highlight.Sentences("One. Two!? Three")
	assert.Equal(t, []string{"One", " Two", " Three"}, got)
}

func TestIndices(t *testing.T) {
	t.Parallel()

	content := "The mayor spoke today. Sources say it was SHOCKING! Nothing else happened. " +
		"Critics called the plan shocking?"

	tests := []struct {
		name    string
		reasons []string
		want    []int
	}{
		{name: "case insensitive", reasons: []string{"shocking"}, want: []int{1, 3}},
		{name: "any reason", reasons: []string{"mayor", "nothing"}, want: []int{0, 2}},
		{name: "no match", reasons: []string{"election"}, want: nil},
		{name: "no reasons", reasons: nil, want: nil},
		{name: "blank reasons", reasons: []string{" ", ""}, want: nil},
		{name: "metacharacters are literal", reasons: []string{"it (was)"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, highlight.Indices(content, tt.reasons))
		})
	}
}

func TestIndices_QuotedReasonMatches(t *testing.T) {
	t.Parallel()

	got := highlight.Indices("Growth of 5+ points. Flat otherwise.", []string{"5+ points"})
	assert.Equal(t, []int{0}, got)
}
