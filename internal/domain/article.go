// Package domain contains the core domain models for the Veritas service.
package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidArticle is returned when an article is missing required fields.
var ErrInvalidArticle = errors.New("invalid article")

// Article is the text extracted from one page load.
type Article struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Author      string `json:"author,omitempty"`
	PublishDate string `json:"publishDate,omitempty"`
}

// Validate checks the fields every article must carry.
func (a Article) Validate() error {
	if a.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidArticle)
	}
	return nil
}

// ContentLength returns the content length in characters.
func (a Article) ContentLength() int {
	return utf8.RuneCountInString(a.Content)
}
