package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine resolves calls to registered route pipelines and runs the dispatch
// lifecycle around them.
//
// Usage:
//  1. Create an engine with New
//  2. Register routes with Route(...).Via(...).To(...)
//  3. Optionally set hooks and add sources
//  4. Dispatch with Exec (or Process for raw bytes)
//
// Engine is safe for concurrent use once registration is complete. The first
// Exec seals the hooks; routes and sources must not be added while calls are
// being dispatched.
type Engine struct {
	instance *Instance
	store    routeStore
	hooks    hookSet

	defaultInspector Inspector
	defaultSources   []Source
	groups           []group
	lastMatch        atomic.Value // stores string

	matcherFactory MatcherFactory
	stats          *statsSampler
	logger         *zap.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// New creates an Engine with the given options.
//
// Example:
//
//	e := dispatch.New(
//	    dispatch.WithLogger(logger),
//	    dispatch.WithError(func(ctx context.Context, c *dispatch.Call, err error) error {
//	        c.Res.Status = 500
//	        return nil
//	    }),
//	)
func New(opts ...Option) *Engine {
	e := &Engine{
		store:            newRouteStore(),
		defaultInspector: JSONInspector(),
		matcherFactory:   DefaultMatcher,
		stats:            newStatsSampler(DefaultStatsInterval),
		logger:           zap.NewNop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.instance == nil {
		e.instance = NewInstance("")
	}
	if e.tracer == nil {
		e.tracer = defaultTracer()
	}
	return e
}

// WithInstance injects the instance counters. Use it to pin the engine id or
// to share an Instance in tests.
func WithInstance(i *Instance) Option {
	return func(e *Engine) {
		e.instance = i
	}
}

// WithInstanceID sets the engine id. An empty id keeps the generated UUIDv7.
func WithInstanceID(id string) Option {
	return func(e *Engine) {
		e.instance = NewInstance(id)
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every dispatch in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for the per-dispatch span. The default
// comes from the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithStatsInterval sets how stale process stats may get before a dispatch
// resamples them. Zero or negative disables sampling.
func WithStatsInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.stats = newStatsSampler(d)
	}
}

// WithMatcherFactory replaces the pattern compiler used by To.
func WithMatcherFactory(f MatcherFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.matcherFactory = f
		}
	}
}

// WithInspector sets the default inspector for sources added with AddSource.
func WithInspector(i Inspector) Option {
	return func(e *Engine) {
		e.defaultInspector = i
	}
}

// Instance returns the engine's identity and counters.
func (e *Engine) Instance() *Instance {
	return e.instance
}

// Stats returns the last process stats sample.
func (e *Engine) Stats() ProcessStats {
	return e.stats.get()
}

// Exec dispatches c.
//
// The lifecycle, in order:
//  1. seal the hooks
//  2. refresh process stats if stale
//  3. assign seq, bump the in-flight gauge, stamp c.Meta
//  4. before hook
//  5. resolve the route for c.Req.Route.Op and c.Req.Route.Raw; no match
//     fails with HandlerNotFound
//  6. set c.Req.Route.Pattern, add matched parameters to c.Req.Data where
//     the key is absent, run the pipeline
//  7. after hook
//  8. on failure in 4–7: the error hook recovers it if set, otherwise the
//     error is returned
//  9. always: finally hook, c.Meta.TS.Out and ExecTime, in-flight decrement
//
// The returned call is the pipeline's final call and is returned even with an
// error, so callers can read its Meta. Panics in hooks and handlers are
// recovered as *PanicError and treated as errors.
func (e *Engine) Exec(ctx context.Context, c *Call) (*Call, error) {
	if c == nil {
		c = &Call{}
	}

	e.hooks.seal()

	in := e.now()
	e.stats.refresh(in)

	seq := e.instance.NextSeq()
	e.instance.IncrementInflight()
	e.metrics.begin()
	e.begin(c, seq, in)

	ctx, span := e.tracer.Start(ctx, "dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("dispatch.op", c.Req.Route.Op),
			attribute.String("dispatch.raw", c.Req.Route.Raw),
			attribute.String("dispatch.seq", strconv.FormatUint(seq, 10)),
			attribute.String("dispatch.trace_id", c.Meta.Monitor.TraceID),
		),
	)

	c, cause := e.dispatch(ctx, c)

	var (
		err     = cause
		outcome = OutcomeOK
	)
	if cause != nil {
		outcome = OutcomeError
		if h := e.hooks.onError; h != nil {
			err = e.guard(func() error { return h(ctx, c, cause) })
			if err == nil {
				outcome = OutcomeRecovered
			}
		}
	}

	if h := e.hooks.finally; h != nil {
		if ferr := e.guard(func() error { return h(ctx, c) }); ferr != nil && err == nil {
			err, outcome = ferr, OutcomeError
		}
	}

	out := e.now()
	c.Meta.TS.Out = out
	c.Meta.TS.ExecTime = out.Sub(in)
	e.instance.DecrementInflight()

	e.observe(span, c, seq, outcome, cause, err)
	return c, err
}

// begin overwrites c.Meta for this dispatch, keeping the caller's log buffer.
func (e *Engine) begin(c *Call, seq uint64, in time.Time) {
	clientIn := c.Req.ClientTime
	if clientIn.IsZero() {
		clientIn = in
	}

	tid, sid := deriveIDs(e.instance.ID, seq)

	snap := e.instance.Snapshot()
	snap.Seq = seq
	snap.Stats = e.stats.get()

	c.Meta = Meta{
		Instance: snap,
		TS: Timestamps{
			In:       in,
			ClientIn: clientIn,
			OWD:      in.Sub(clientIn),
		},
		Monitor: Monitor{
			TraceID: tid.String(),
			SpanID:  sid.String(),
		},
		Logs: c.Meta.Logs,
	}
	if c.ID == "" {
		c.ID = c.Meta.Monitor.TraceID
	}
}

// dispatch runs the before hook, matching, the pipeline and the after hook.
func (e *Engine) dispatch(ctx context.Context, c *Call) (res *Call, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = c, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if h := e.hooks.before; h != nil {
		if err := h(ctx, c); err != nil {
			return c, err
		}
	}

	route := &c.Req.Route
	entry, params, ok := e.store.resolve(route.Op, route.Raw)
	if !ok {
		return c, notFoundError(route.Op, route.Raw, route.Pattern)
	}

	route.Pattern = entry.Route.Pattern
	mergeParams(c, params)

	next, err := entry.Route.Handler(ctx, c)
	if err != nil {
		return c, err
	}
	if next != nil {
		c = next
	}

	if h := e.hooks.after; h != nil {
		if err := h(ctx, c); err != nil {
			return c, err
		}
	}
	return c, nil
}

// guard runs fn and turns a panic into a *PanicError.
func (e *Engine) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// mergeParams adds matched parameters to the data bag. Keys the caller
// already set win.
func mergeParams(c *Call, params Params) {
	if len(params) == 0 {
		return
	}
	if c.Req.Data == nil {
		c.Req.Data = make(map[string]any, len(params))
	}
	for k, v := range params {
		if _, ok := c.Req.Data[k]; !ok {
			c.Req.Data[k] = v
		}
	}
}

// observe reports a finished dispatch to metrics, the span and the log.
func (e *Engine) observe(span trace.Span, c *Call, seq uint64, outcome string, cause, err error) {
	route := c.Req.Route
	notFound := errors.Is(cause, ErrHandlerNotFound)
	exec := c.Meta.TS.ExecTime

	e.metrics.end(route.Op, route.Pattern, outcome, exec, notFound)

	if route.Pattern != "" {
		span.SetName(route.Pattern)
		span.SetAttributes(attribute.String("dispatch.pattern", route.Pattern))
	}
	span.SetAttributes(attribute.String("dispatch.outcome", outcome))
	if cause != nil {
		span.RecordError(cause)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	fields := []zap.Field{
		zap.Uint64("seq", seq),
		zap.String("op", route.Op),
		zap.String("raw", route.Raw),
		zap.String("pattern", route.Pattern),
		zap.Duration("execTime", exec),
		zap.String("outcome", outcome),
		zap.String("traceId", c.Meta.Monitor.TraceID),
	}
	switch outcome {
	case OutcomeError:
		e.logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
	case OutcomeRecovered:
		e.logger.Info("dispatch recovered", append(fields, zap.Error(cause))...)
	default:
		e.logger.Debug("dispatch", fields...)
	}
}
