// Package sanitize turns calendar free text into safe single-line plain text.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// danglingRe matches an opening tag left unfinished at the end of input.
	danglingRe = regexp.MustCompile(`<[a-zA-Z/!?][^>]*$`)

	// Dangerous elements are removed together with their content. An unclosed
	// opening tag swallows the rest of the input.
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?(?:</script\s*>|$)`)
	iframeRe = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?(?:</iframe\s*>|$)`)
	objectRe = regexp.MustCompile(`(?is)<object\b[^>]*>.*?(?:</object\s*>|$)`)
	embedRe  = regexp.MustCompile(`(?is)</?embed\b[^>]*>`)

	// quotedTagRe matches an opening tag whose quoted attribute values may
	// contain '>'.
	quotedTagRe = regexp.MustCompile(`<[a-zA-Z][^>"']*(?:(?:"[^"]*"|'[^']*')[^>"']*)*>?`)
	handlerRe   = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)

	breakRe   = regexp.MustCompile(`(?i)<br\s*/?>|</?p\b[^>]*>`)
	newlineRe = regexp.MustCompile(`[ \t]*(?:\r?\n[ \t]*)+`)

	entities = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// Text strips all markup, decodes the five standard entities and trims.
// Text(Text(s)) == Text(s) for every s.
func Text(raw string) string {
	return fixpoint(raw, textStep)
}

// HTML removes script, iframe, object and embed elements and inline event
// handlers before stripping the remaining markup. Paragraphs and line breaks
// collapse into single spaces, so the result is one line of display text.
func HTML(raw string) string {
	return fixpoint(raw, htmlStep)
}

func textStep(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = danglingRe.ReplaceAllString(s, "")
	s = entities.Replace(s)
	return strings.TrimSpace(s)
}

func htmlStep(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = iframeRe.ReplaceAllString(s, "")
	s = objectRe.ReplaceAllString(s, "")
	s = embedRe.ReplaceAllString(s, "")
	s = quotedTagRe.ReplaceAllStringFunc(s, func(tag string) string {
		return handlerRe.ReplaceAllString(tag, "")
	})
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = danglingRe.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = newlineRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// fixpoint applies step until the output stops changing. A changing step
// either shortens the string or only swaps newlines for spaces, so this
// terminates. Decoding "&lt;b&gt;" into "<b>" gets stripped on the next round.
func fixpoint(s string, step func(string) string) string {
	for {
		next := step(s)
		if next == s {
			return s
		}
		s = next
	}
}

// Sanitizer is the cleaning the event pipeline depends on.
type Sanitizer interface {
	Text(raw string) string
	HTML(raw string) string
}

// Default implements Sanitizer with Text and HTML.
type Default struct{}

func (Default) Text(raw string) string { return Text(raw) }
func (Default) HTML(raw string) string { return HTML(raw) }
