// Package pattern compiles route patterns with named parameters into anchored
// matchers.
//
// Syntax:
//
//	:name   captures one segment
//	*name   captures the remainder, delimiters included
//
// The segment delimiter is "/" when the pattern contains a slash and "."
// otherwise, so "/user/:id" and "user.:id" both capture a single segment.
// A marker only counts at the start of a segment, so "order:created" is a
// literal. Everything else in a pattern is literal.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// HasParams reports whether p contains at least one parameter marker.
func HasParams(p string) bool {
	d := delimiter(p)
	for i := range len(p) {
		if isMarker(p, i, d) {
			return true
		}
	}
	return false
}

// Pattern is a compiled route pattern.
type Pattern struct {
	src   string
	re    *regexp.Regexp
	names []string
}

// Compile parses p. It fails when a parameter name repeats.
func Compile(p string) (*Pattern, error) {
	d := delimiter(p)
	delim := string(d)

	var (
		b     strings.Builder
		names []string
		seen  = make(map[string]struct{})
	)
	b.WriteString("^")

	for i := 0; i < len(p); {
		if isMarker(p, i, d) {
			j := i + 1
			for j < len(p) && isNameByte(p[j]) {
				j++
			}
			name := p[i+1 : j]
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("pattern %q: duplicate parameter %q", p, name)
			}
			seen[name] = struct{}{}
			names = append(names, name)

			if p[i] == ':' {
				b.WriteString(`([^` + regexp.QuoteMeta(delim) + `]+)`)
			} else {
				b.WriteString(`(.+)`)
			}
			i = j
			continue
		}

		j := i + 1
		for j < len(p) && !isMarker(p, j, d) {
			j++
		}
		b.WriteString(regexp.QuoteMeta(p[i:j]))
		i = j
	}

	// slash patterns tolerate a single trailing slash
	if delim == "/" && !strings.HasSuffix(p, "/") {
		b.WriteString("/?")
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", p, err)
	}
	return &Pattern{src: p, re: re, names: names}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(p string) *Pattern {
	pt, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return pt
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.src }

// Names returns the parameter names in declaration order.
func (p *Pattern) Names() []string {
	return append([]string(nil), p.names...)
}

// Match reports whether raw matches the pattern and returns the captured
// parameters. The map is non-nil on a match.
func (p *Pattern) Match(raw string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.names {
		params[name] = m[i+1]
	}
	return params, true
}

func delimiter(p string) byte {
	if strings.Contains(p, "/") {
		return '/'
	}
	return '.'
}

func isMarker(p string, i int, delim byte) bool {
	if i > 0 && p[i-1] != delim {
		return false
	}
	return (p[i] == ':' || p[i] == '*') && i+1 < len(p) && isNameByte(p[i+1])
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
