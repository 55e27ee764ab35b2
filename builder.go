package dispatch

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// httpVerbs are the tokens that mark a segment chain as HTTP-flavored.
var httpVerbs = map[string]struct{}{
	"GET":     {},
	"POST":    {},
	"PUT":     {},
	"DELETE":  {},
	"PATCH":   {},
	"HEAD":    {},
	"OPTIONS": {},
}

// Builder accumulates route segments and middleware. It is an immutable
// value: Route and Via return a new Builder and never modify the receiver, so
// a partial chain can be shared as a prefix.
//
//	users := e.Route("users")
//	users.Route("created").To(onCreated)  // "users.created"
//	users.Route("deleted").To(onDeleted)  // "users.deleted"
//
// The first invalid call records an error that sticks to every Builder
// derived from it. Err reports it immediately and To returns it without
// registering anything.
type Builder struct {
	engine   *Engine
	segments []string
	mws      []Handler
	err      error
}

// Route starts a chain on the engine with one segment.
func (e *Engine) Route(segment string) Builder {
	return Builder{engine: e}.Route(segment)
}

// Route appends one segment. Empty or whitespace-only segments fail with
// InvalidSegment.
func (b Builder) Route(segment string) Builder {
	if b.err != nil {
		return b
	}
	if strings.TrimSpace(segment) == "" {
		b.err = validationError("InvalidSegment", map[string]any{"segment": segment})
		return b
	}
	b.segments = append(slices.Clip(b.segments), segment)
	return b
}

// Via appends middleware that runs before the handler, in order. A nil
// middleware fails with InvalidMiddleware.
func (b Builder) Via(mws ...Handler) Builder {
	if b.err != nil {
		return b
	}
	for i, mw := range mws {
		if mw == nil {
			b.err = validationError("InvalidMiddleware", map[string]any{"index": i})
			return b
		}
	}
	b.mws = append(slices.Clip(b.mws), mws...)
	return b
}

// Err returns the error recorded by Route or Via, if any.
func (b Builder) Err() error {
	return b.err
}

// Segments returns a copy of the accumulated segments.
func (b Builder) Segments() []string {
	return slices.Clone(b.segments)
}

// To terminates the chain: it composes the middleware and h into one
// pipeline and commits the resulting routes.
//
// Segments are split on whitespace. A token equal to an HTTP verb (any case)
// makes the chain HTTP-flavored and the first such verb becomes the op. The
// remaining tokens, leading slashes stripped, form the base path. To always
// registers the base joined with "." (op = verb, or any op when there is no
// verb); an HTTP-flavored chain additionally registers the base joined with
// "/" and prefixed with "/":
//
//	e.Route("GET /user/:id").To(h)
//	// GET user/:id   and   GET /user/:id
//
//	e.Route("job").Route(":id").Route("GET").To(h)
//	// GET job.:id    and   GET /job/:id
//
//	e.Route("user").Route("created").To(h)
//	// * user.created
//
// To fails with RoutesAlreadySealed once Exec has been called.
func (b Builder) To(h Handler) error {
	if b.err != nil {
		return b.err
	}
	if h == nil {
		return validationError("InvalidHandler", nil)
	}
	if len(b.segments) == 0 {
		return validationError("MissingSegments", nil)
	}

	op, base, isHTTP := analyze(b.segments)
	if len(base) == 0 && !isHTTP {
		return validationError("MissingSegments", map[string]any{"segments": b.segments})
	}

	pipeline := compose(append(slices.Clip(b.mws), h))

	var routes []Route
	if len(base) > 0 {
		routes = append(routes, Route{Op: op, Pattern: strings.Join(base, ".")})
	}
	if isHTTP {
		routes = append(routes, Route{Op: op, Pattern: "/" + strings.Join(base, "/")})
	}

	// compile everything before committing so a bad pattern leaves the
	// store untouched
	for i := range routes {
		m, err := b.engine.matcherFactory(routes[i].Pattern)
		if err != nil {
			return validationError("InvalidPattern", map[string]any{"pattern": routes[i].Pattern}).wrap(err)
		}
		routes[i].Matcher = m
		routes[i].Handler = pipeline
	}
	committed := b.engine.hooks.unsealed(func() {
		for _, rt := range routes {
			b.engine.commit(rt, b.segments)
		}
	})
	if !committed {
		return frameworkError(KindRoutesSealed, string(KindRoutesSealed), map[string]any{
			"route": strings.Join(b.segments, " "),
		})
	}
	return nil
}

// MustTo is like To but panics on error.
func (b Builder) MustTo(h Handler) {
	if err := b.To(h); err != nil {
		panic(err)
	}
}

// analyze detects HTTP grammar in a segment chain.
func analyze(segments []string) (op string, base []string, isHTTP bool) {
	for _, seg := range segments {
		for _, tok := range strings.Fields(seg) {
			upper := strings.ToUpper(tok)
			if _, ok := httpVerbs[upper]; ok {
				if !isHTTP {
					op, isHTTP = upper, true
				}
				continue
			}
			if tok = strings.TrimLeft(tok, "/"); tok != "" {
				base = append(base, tok)
			}
		}
	}
	return op, base, isHTTP
}

// compose chains stages into one handler. Each stage receives the call
// returned by the previous one; the first error stops the chain.
func compose(stages []Handler) Handler {
	if len(stages) == 1 {
		return stages[0]
	}
	return func(ctx context.Context, c *Call) (*Call, error) {
		for _, stage := range stages {
			next, err := stage(ctx, c)
			if err != nil {
				return nil, err
			}
			if next != nil {
				c = next
			}
		}
		return c, nil
	}
}

func (e *Engine) commit(rt Route, segments []string) {
	entry := &RouteEntry{Route: rt, Segments: slices.Clone(segments)}
	if e.store.commit(entry) {
		e.logger.Warn("route replaced",
			zap.String("op", rt.Op),
			zap.String("pattern", rt.Pattern),
			zap.Strings("segments", segments),
		)
		return
	}
	e.logger.Debug("route registered",
		zap.String("op", rt.Op),
		zap.String("pattern", rt.Pattern),
		zap.Bool("exact", !HasParams(rt.Pattern)),
	)
}

// Routes lists committed routes: exact routes first, then parameterized
// routes in match order.
func (e *Engine) Routes() []RouteInfo {
	return e.store.list()
}
