// Package dispatch is a transport-agnostic request dispatch engine.
//
// An Engine resolves a normalized invocation (an op such as "GET" plus a raw
// route value such as "/user/7" or "user.created") to a registered pipeline
// of middleware and a terminal handler, and runs it inside a fixed lifecycle
// of hooks. Transport adapters (see the httpx package) and message sources
// turn their input into a Call and hand it to Exec; the engine knows nothing
// about HTTP, queues or RPC frames.
//
// # Quick Start
//
//	e := dispatch.New()
//
//	e.Route("GET /user/:id").MustTo(func(ctx context.Context, c *dispatch.Call) (*dispatch.Call, error) {
//	    c.Res.Data = loadUser(c.Param("id"))
//	    return c, nil
//	})
//
//	c, err := e.Exec(ctx, dispatch.NewCall("GET", "/user/7"))
//
// # Registration
//
// Route and Via build an immutable chain of segments and middleware; To
// commits it. A segment containing an HTTP verb (GET, POST, PUT, DELETE,
// PATCH, HEAD, OPTIONS, any case) makes the chain HTTP-flavored and that verb
// becomes the route's op. Every chain registers its base joined with ".";
// HTTP-flavored chains also register it joined with "/" behind a leading
// slash, so one handler serves both styles:
//
//	e.Route("job").Route(":id").Route("GET").To(h)
//	// GET job.:id   and   GET /job/:id
//
// A chain without a verb has no op and matches any op:
//
//	e.Route("user").Route("created").To(h)   // user.created
//
// Patterns use ":name" for one segment and "*name" for the rest. Routes
// without parameters are stored for exact lookup and always win over
// parameterized routes. Parameterized routes are tried in registration order;
// a route with an op is skipped unless the op matches, and the first route
// that passes wins. Matched parameters are added to Req.Data when the key is
// not already set.
//
// # Lifecycle
//
// Exec seals the hooks, refreshes process stats when stale, assigns a
// sequence number and stamps Call.Meta (instance snapshot, timestamps, trace
// and span ids), then runs:
//
//	before → resolve → pipeline → after
//
// Any failure there, including HandlerNotFound and recovered panics, goes to
// the error hook. Without one the error is returned. With one, its result
// decides: nil recovers and Exec returns the call with no error. The finally
// hook always runs, and the in-flight counter always returns to where it was.
//
// Hooks can be set with options or with the Set methods until the first
// Exec; afterwards the setters fail with HooksAlreadySealed.
//
// # Errors
//
// Error is the shared shape: a Name, a client-safe Message and Data, and
// log-only Info. Errors raised by the engine itself are *FrameworkError
// values and can be tested with errors.Is against the exported sentinels:
//
//	if errors.Is(err, dispatch.ErrHandlerNotFound) { ... }
//	if errors.Is(err, dispatch.ErrValidation) { ... }
//
// A Catalog turns a nested name → message tree (in Go or YAML) into error
// constructors with {key} interpolation.
//
// # Sources
//
// For message-driven ingress, sources parse raw bytes into calls. Sources
// are matched with a cheap Discriminator over an Inspector's View before
// Parse runs, and the last successful source is tried first on the next
// message:
//
//	e.AddSource(dispatch.JSONSource("events",
//	    dispatch.HasFields("detail-type", "detail"),
//	    dispatch.JSONFields{Raw: "detail-type", Data: "detail"},
//	))
//	c, err := e.Process(ctx, raw)
//
// Use AddGroup for sources that need a different Inspector.
//
// # Observability
//
// WithLogger takes a *zap.Logger, WithMetrics records Prometheus collectors
// labeled by route pattern, and every Exec runs in an OpenTelemetry span
// named after the matched pattern.
//
// # Thread Safety
//
// Exec and Process are safe for concurrent use. Register routes, sources and
// hooks before dispatching. The first Exec seals route registration as well
// as the hooks, so a later To fails with RoutesAlreadySealed. Do not call
// AddSource or AddGroup concurrently with Process.
package dispatch
