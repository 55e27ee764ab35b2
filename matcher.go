package dispatch

import "github.com/bjaus/dispatch/v2/internal/pattern"

// Params maps parameter names to captured values.
type Params map[string]string

// Matcher tests a raw invocation value against one route pattern.
type Matcher interface {
	Match(raw string) (Params, bool)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(raw string) (Params, bool)

// Match implements Matcher.
func (f MatcherFunc) Match(raw string) (Params, bool) { return f(raw) }

// MatcherFactory compiles a pattern into a Matcher. It is called once per
// committed route.
type MatcherFactory func(pattern string) (Matcher, error)

// HasParams reports whether a pattern contains parameter markers. Patterns
// without markers are stored for exact lookup.
func HasParams(p string) bool {
	return pattern.HasParams(p)
}

// DefaultMatcher compiles p with the built-in syntax: ":name" captures one
// segment and "*name" captures the rest. Segments are "/"-delimited when the
// pattern contains a slash and "."-delimited otherwise.
func DefaultMatcher(p string) (Matcher, error) {
	compiled, err := pattern.Compile(p)
	if err != nil {
		return nil, err
	}
	return MatcherFunc(func(raw string) (Params, bool) {
		m, ok := compiled.Match(raw)
		return Params(m), ok
	}), nil
}
