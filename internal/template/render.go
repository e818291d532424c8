// Package template implements the placeholder-substitution contract for
// campaign subjects and bodies. It is deliberately not a template engine:
// every {field} token is replaced by the lead attribute of that name, and
// authored whitespace is preserved in the rendered HTML.
package template

import "strings"

// Render substitutes {field} tokens with values from fields. Unset fields
// render as the empty string only when the token matches a known key;
// unknown tokens are left as-is so typos are visible in previews.
// Literal newlines become <br> and double spaces become &nbsp;&nbsp; so the
// rendered HTML matches the authored spacing.
func Render(tmpl string, fields map[string]string) string {
	rendered := tmpl
	for key, value := range fields {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}

	rendered = strings.ReplaceAll(rendered, "\n", "<br>")
	rendered = strings.ReplaceAll(rendered, "  ", "&nbsp;&nbsp;")

	return rendered
}

// RenderSubject is Render without the whitespace-to-HTML conversion;
// subjects are plain text, not HTML.
func RenderSubject(tmpl string, fields map[string]string) string {
	rendered := tmpl
	for key, value := range fields {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	return rendered
}
