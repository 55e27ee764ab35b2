package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Handler is one stage of a route pipeline. Middleware registered with Via and
// the terminal handler passed to To share this signature.
//
// Each stage receives the call produced by the previous stage. Returning a nil
// *Call with a nil error keeps the call that was passed in.
type Handler func(ctx context.Context, c *Call) (*Call, error)

// Call is the unit of work flowing through Exec.
//
// Transport adapters populate Req before calling Exec. The engine writes
// Req.Route.Pattern after a match, adds matched parameters to Req.Data, and
// owns Meta for the duration of the dispatch.
type Call struct {
	// ID identifies the call. Exec assigns the trace id when it is empty.
	ID string

	Req  Request
	Res  Response
	Meta Meta
}

// Request is the normalized invocation.
type Request struct {
	Route RouteRef

	// Data carries caller input. Matched parameters are added only for keys
	// that are not already present.
	Data map[string]any

	Headers map[string]string

	// Source names the Source that parsed the call. Empty for direct Exec.
	Source string

	// ClientTime is the caller-supplied send time, if known. It feeds the
	// one-way-delay measurement.
	ClientTime time.Time
}

// RouteRef identifies what is being dispatched.
type RouteRef struct {
	// Op is the operation discriminator (HTTP verb, event name, RPC method).
	// Empty means none was supplied.
	Op string

	// Raw is the concrete value being dispatched, e.g. "/users/42".
	Raw string

	// Pattern is the canonical pattern of the matched route. Exec sets it.
	Pattern string
}

// Response is filled by handlers or the error hook and rendered by adapters.
type Response struct {
	Status int
	Data   any
	Err    *Error
}

// Meta is owned by the engine. Every Exec overwrites it, except Logs.
type Meta struct {
	Instance InstanceSnapshot
	TS       Timestamps
	Monitor  Monitor
	Logs     []string
}

// Timestamps records the timing of one dispatch.
type Timestamps struct {
	In       time.Time
	ClientIn time.Time
	Out      time.Time
	ExecTime time.Duration
	// OWD is the one-way delay, In - ClientIn.
	OWD time.Duration
}

// Monitor carries the correlation identifiers of one dispatch.
type Monitor struct {
	TraceID string
	SpanID  string
}

// NewCall returns a call for the given invocation with an empty data bag.
func NewCall(op, raw string) *Call {
	return &Call{
		Req: Request{
			Route: RouteRef{Op: op, Raw: raw},
			Data:  make(map[string]any),
		},
	}
}

// Log appends a formatted line to the call's log buffer.
func (c *Call) Log(format string, args ...any) {
	c.Meta.Logs = append(c.Meta.Logs, fmt.Sprintf(format, args...))
}

// Param returns the string value stored under key in the data bag.
func (c *Call) Param(key string) string {
	if c.Req.Data == nil {
		return ""
	}
	s, _ := c.Req.Data[key].(string)
	return s
}
