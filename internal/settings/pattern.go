package settings

import "regexp"

// Pattern is the compiled form of one admin-entered rule pattern. Patterns
// are compiled lazily per evaluation, never precompiled at load: admins can
// change rules between messages, and one bad pattern must not take the
// pipeline down with it.
type Pattern struct {
	Source string
	re     *regexp.Regexp
	err    error
}

// Compile builds a case-insensitive matcher. A compile failure is carried in
// the result, not returned: callers skip broken patterns and keep going.
func Compile(source string) Pattern {
	re, err := regexp.Compile("(?i)" + source)
	return Pattern{Source: source, re: re, err: err}
}

func (p Pattern) Err() error { return p.err }

// Match reports whether text matches. Broken patterns never match.
func (p Pattern) Match(text string) bool {
	if p.err != nil || p.re == nil || text == "" {
		return false
	}
	return p.re.MatchString(text)
}
