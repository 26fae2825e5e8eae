// Package sanitize cleans text that arrives from the legacy backend or from
// form input before it is rendered into a page.
package sanitize

import (
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// DescriptionPolicy allows basic formatting in event descriptions.
	// Links are forced to open in a new tab with rel="nofollow noopener".
	DescriptionPolicy = newDescriptionPolicy()
)

func newDescriptionPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// Text strips all HTML tags and returns plain text.
func Text(input string) string {
	return strings.TrimSpace(StrictPolicy.Sanitize(input))
}

// Description sanitizes an event description for direct inclusion in a page.
// Scripts, frames, embedded objects, forms and style sheets are removed along
// with event handler and style attributes.
func Description(input string) template.HTML {
	// #nosec G203 -- output of a bluemonday allow-list policy
	return template.HTML(DescriptionPolicy.Sanitize(input))
}

// TextSlice sanitizes each string in a slice, removing all HTML.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = Text(input)
	}
	return sanitized
}
