package tree

import (
	"regexp"
	"strings"
)

// Pattern hides matching paths from the built tree. A text pattern is an
// exact substring match against the full path or the final segment; a
// regexp pattern is tested against both.
type Pattern struct {
	text string
	re   *regexp.Regexp
}

// Text creates a substring pattern.
func Text(text string) Pattern {
	return Pattern{text: text}
}

// Regex creates a regexp pattern.
func Regex(re *regexp.Regexp) Pattern {
	return Pattern{re: re}
}

func (p Pattern) matches(fullPath, name string) bool {
	if p.re != nil {
		return p.re.MatchString(fullPath) || p.re.MatchString(name)
	}

	return strings.Contains(fullPath, p.text) || strings.Contains(name, p.text)
}

// DefaultHiddenPatterns covers the usual dependency and build output
// directories. Caller-supplied patterns are merged on top.
var DefaultHiddenPatterns = []Pattern{
	Text("/node_modules/"),
	Text("/package-lock.json"),
	Regex(regexp.MustCompile(`/node_modules$`)),
	Regex(regexp.MustCompile(`/\.git(/|$)`)),
	Regex(regexp.MustCompile(`/\.next(/|$)`)),
	Regex(regexp.MustCompile(`/\.astro(/|$)`)),
	Regex(regexp.MustCompile(`/\.svelte-kit(/|$)`)),
	Regex(regexp.MustCompile(`/\.cache(/|$)`)),
	Regex(regexp.MustCompile(`/\.vscode(/|$)`)),
}

func isHidden(fullPath, name string, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.matches(fullPath, name) {
			return true
		}
	}

	return false
}
