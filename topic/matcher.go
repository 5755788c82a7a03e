package topic

import (
	"regexp"
	"strings"
)

const (
	// Separator delimits topic levels
	Separator = "/"
	// SingleLevel matches exactly one topic level
	SingleLevel = "+"
	// MultiLevel matches any remaining topic levels
	MultiLevel = "#"
)

// Matcher is a compiled topic pattern. It is immutable and safe for concurrent use.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Compile translates pattern into a Matcher.
//
// Every occurrence of "+" becomes "one or more characters other than '/'" and
// every "#" becomes "anything". A "/#" suffix also matches the parent level, so
// "a/#" accepts "a" as well as "a/b/c".
func Compile(pattern string) *Matcher {
	return &Matcher{
		pattern: pattern,
		re:      regexp.MustCompile("^" + translate(pattern) + "$"),
	}
}

// Pattern returns the source pattern
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match reports whether topic is accepted by the pattern
func (m *Matcher) Match(topic string) bool {
	return m.re.MatchString(topic)
}

// Match compiles pattern and tests topic against it in one step.
func Match(pattern, topic string) bool {
	return Compile(pattern).Match(topic)
}

// HasWildcards reports whether pattern contains "+" or "#"
func HasWildcards(pattern string) bool {
	return strings.ContainsAny(pattern, SingleLevel+MultiLevel)
}

func translate(pattern string) string {
	var b strings.Builder
	literal := 0
	flush := func(end int) {
		if end > literal {
			b.WriteString(regexp.QuoteMeta(pattern[literal:end]))
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '+':
			flush(i)
			b.WriteString(`[^/]+`)
			literal = i + 1
		case '#':
			if i > 0 && pattern[i-1] == '/' && i == len(pattern)-1 {
				// "/#" at the end: the separator becomes optional
				flush(i - 1)
				b.WriteString(`(/.*)?`)
			} else {
				flush(i)
				b.WriteString(`.*`)
			}
			literal = i + 1
		}
	}
	flush(len(pattern))

	return b.String()
}
