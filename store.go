package dispatch

import "strings"

// Route is one compiled registration.
type Route struct {
	// Op restricts the route to one operation. Empty matches any op.
	Op string

	// Pattern is the canonical identity of the route, used for logs and
	// metric labels.
	Pattern string

	Matcher Matcher
	Handler Handler
}

// RouteEntry is a committed route plus the segments it was built from. The
// segments are kept for diagnostics only.
type RouteEntry struct {
	Route    Route
	Segments []string
}

// RouteInfo describes a committed route.
type RouteInfo struct {
	Op       string
	Pattern  string
	Segments []string
	Exact    bool
}

// routeStore keeps routes without parameters in a map for O(1) lookup and
// parameterized routes in registration order. Every route lives in exactly
// one of the two.
type routeStore struct {
	exact     map[string]*RouteEntry
	exactKeys []string // insertion order, for listing
	params    []*RouteEntry
}

func newRouteStore() routeStore {
	return routeStore{exact: make(map[string]*RouteEntry)}
}

// exactKey is "op:pattern", or ":pattern" for a wildcard op. Exact patterns
// have no parameters, so the raw invocation value doubles as the pattern
// at lookup time.
func exactKey(op, pattern string) string {
	return op + ":" + pattern
}

// commit stores entry and reports whether it replaced an exact route with
// the same key.
func (s *routeStore) commit(entry *RouteEntry) (replaced bool) {
	if HasParams(entry.Route.Pattern) {
		s.params = append(s.params, entry)
		return false
	}

	key := exactKey(entry.Route.Op, entry.Route.Pattern)
	if _, replaced = s.exact[key]; !replaced {
		s.exactKeys = append(s.exactKeys, key)
	}
	s.exact[key] = entry
	return replaced
}

// resolve finds the route for an invocation:
//
//  1. exact route for op, then the wildcard exact route; a slash raw with
//     one trailing slash is retried without it
//  2. parameterized routes in registration order; a route with an op is
//     skipped unless it equals the invocation op, then the pattern is tried
//
// Exact always beats parameterized. Among parameterized routes the first
// registered one that passes both checks wins; there is no specificity
// scoring.
func (s *routeStore) resolve(op, raw string) (*RouteEntry, Params, bool) {
	if entry, ok := s.lookup(op, raw); ok {
		return entry, nil, true
	}
	// slash routes tolerate one trailing slash in both tiers
	if len(raw) > 1 && raw[0] == '/' && strings.HasSuffix(raw, "/") {
		if entry, ok := s.lookup(op, strings.TrimSuffix(raw, "/")); ok {
			return entry, nil, true
		}
	}

	for _, entry := range s.params {
		if entry.Route.Op != "" && entry.Route.Op != op {
			continue
		}
		if params, ok := entry.Route.Matcher.Match(raw); ok {
			return entry, params, true
		}
	}
	return nil, nil, false
}

func (s *routeStore) lookup(op, raw string) (*RouteEntry, bool) {
	if entry, ok := s.exact[exactKey(op, raw)]; ok {
		return entry, true
	}
	if op != "" {
		entry, ok := s.exact[exactKey("", raw)]
		return entry, ok
	}
	return nil, false
}

func (s *routeStore) list() []RouteInfo {
	out := make([]RouteInfo, 0, len(s.exactKeys)+len(s.params))
	for _, key := range s.exactKeys {
		out = append(out, s.exact[key].info(true))
	}
	for _, entry := range s.params {
		out = append(out, entry.info(false))
	}
	return out
}

func (e *RouteEntry) info(exact bool) RouteInfo {
	return RouteInfo{
		Op:       e.Route.Op,
		Pattern:  e.Route.Pattern,
		Segments: append([]string(nil), e.Segments...),
		Exact:    exact,
	}
}
