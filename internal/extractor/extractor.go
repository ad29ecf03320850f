// Package extractor turns a page's HTML into the article the analyzers see.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
)

// contentSelectors are tried in order; the first element found supplies the content.
var contentSelectors = []string{
	"article",
	`[role="article"]`,
	".post-content",
	".article-body",
	"main",
}

// nonContentSelectors lists elements stripped before reading content text.
const nonContentSelectors = "script, style, noscript"

// Extractor extracts articles from HTML using goquery.
type Extractor struct{}

// New creates a new extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses html served at pageURL.
// Content is empty when none of the content selectors match.
func (e *Extractor) Extract(pageURL, html string) (domain.Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.Article{}, fmt.Errorf("parse html: %w", err)
	}

	article := domain.Article{
		URL:         pageURL,
		Title:       extractTitle(doc),
		Content:     extractContent(doc),
		Author:      metaContent(doc, `meta[name="author"]`),
		PublishDate: metaContent(doc, `meta[property="article:published_time"]`),
	}

	if err = article.Validate(); err != nil {
		return domain.Article{}, err
	}

	return article, nil
}

// extractTitle prefers the first <h1>, then <title>.
func extractTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractContent(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		sel.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(sel.Text())
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	if v, exists := doc.Find(selector).First().Attr("content"); exists {
		return strings.TrimSpace(v)
	}
	return ""
}
