// Package markup converts event descriptions to HTML.
//
// Descriptions are read as Markdown and rendered with blackfriday. Wiki
// markup (Wiky syntax) is not understood: constructs such as [link text]
// or ''italic'' pass through as plain text, while Markdown syntax in a
// description is interpreted.
package markup

import (
	"fmt"
	"strings"

	"github.com/russross/blackfriday/v2"
)

const (
	// None inserts descriptions unchanged.
	None = "none"
	// Markdown renders descriptions as Markdown.
	Markdown = "markdown"
)

// MarkdownConverter converts lightweight markup in descriptions to HTML.
type MarkdownConverter struct {
	extensions blackfriday.Extensions
}

// NewMarkdown returns a converter with the common Markdown extensions.
// Single newlines become <br>.
func NewMarkdown() *MarkdownConverter {
	return &MarkdownConverter{
		extensions: blackfriday.CommonExtensions | blackfriday.HardLineBreak | blackfriday.Autolink,
	}
}

// ToHTML renders text as HTML.
func (m *MarkdownConverter) ToHTML(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	out := blackfriday.Run([]byte(text), blackfriday.WithExtensions(m.extensions))
	return strings.TrimSpace(string(out))
}

// Converter is the interface satisfied by the converters of this package.
type Converter interface {
	ToHTML(text string) string
}

// New returns the converter named kind. None (or "") yields nil, meaning
// descriptions are used as they are.
func New(kind string) (Converter, error) {
	switch strings.ToLower(kind) {
	case "", None:
		return nil, nil
	case Markdown:
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown markup %q (expected %q or %q)", kind, None, Markdown)
	}
}
