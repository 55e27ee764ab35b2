package dispatch

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Source parses raw message bytes into a Call.
//
// Sources are registered with Engine.AddSource and matched using their
// Discriminator before Parse is called. This allows cheap detection before
// expensive parsing.
//
// Implement Source to accept different envelopes on one ingress:
//   - EventBridge events
//   - SNS notifications
//   - SQS messages
//   - RPC frames
//   - Custom formats
//
// Example:
//
//	type mySource struct{}
//
//	func (s *mySource) Name() string { return "my-source" }
//
//	func (s *mySource) Discriminator() dispatch.Discriminator {
//	    return dispatch.HasFields("type", "payload")
//	}
//
//	func (s *mySource) Parse(raw []byte) (*dispatch.Call, error) {
//	    var env struct {
//	        Type    string         `json:"type"`
//	        Payload map[string]any `json:"payload"`
//	    }
//	    if err := json.Unmarshal(raw, &env); err != nil {
//	        return nil, err
//	    }
//	    c := dispatch.NewCall("", env.Type)
//	    c.Req.Data = env.Payload
//	    return c, nil
//	}
type Source interface {
	// Name returns the source identifier for logging and metrics.
	Name() string

	// Discriminator returns a predicate for cheap message detection.
	// The engine calls this before Parse to avoid expensive parsing
	// when the message format doesn't match.
	Discriminator() Discriminator

	// Parse builds the call for raw. The returned call must carry a
	// non-empty Req.Route.Raw.
	Parse(raw []byte) (*Call, error)
}

// SourceFunc creates a Source from a name, discriminator, and parse function.
// Use for simple sources that don't need a struct:
//
//	e.AddSource(dispatch.SourceFunc(
//	    "legacy",
//	    dispatch.HasFields("type", "payload"),
//	    func(raw []byte) (*dispatch.Call, error) {
//	        // parse logic
//	    },
//	))
func SourceFunc(name string, disc Discriminator, parse func([]byte) (*Call, error)) Source {
	return &sourceFunc{name: name, disc: disc, parse: parse}
}

type sourceFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (*Call, error)
}

func (s *sourceFunc) Name() string                     { return s.name }
func (s *sourceFunc) Discriminator() Discriminator     { return s.disc }
func (s *sourceFunc) Parse(raw []byte) (*Call, error) { return s.parse(raw) }

// ErrMissingRaw is returned by JSONSource when the raw path is absent or
// empty.
var ErrMissingRaw = errors.New("missing raw route value")

// JSONFields maps call fields to gjson paths. Raw is required; the others
// are optional.
type JSONFields struct {
	ID   string
	Op   string
	Raw  string
	Data string

	// ClientTime accepts an RFC 3339 string or Unix milliseconds.
	ClientTime string
}

// JSONSource returns a Source that reads the invocation out of a JSON
// envelope with gjson paths.
//
// Example:
//
//	e.AddSource(dispatch.JSONSource("events",
//	    dispatch.HasFields("detail-type", "detail"),
//	    dispatch.JSONFields{Raw: "detail-type", Data: "detail", ID: "id"},
//	))
func JSONSource(name string, disc Discriminator, fields JSONFields) Source {
	return SourceFunc(name, disc, func(raw []byte) (*Call, error) {
		return parseJSON(raw, fields)
	})
}

func parseJSON(raw []byte, f JSONFields) (*Call, error) {
	get := func(path string) gjson.Result {
		if path == "" {
			return gjson.Result{}
		}
		return gjson.GetBytes(raw, path)
	}

	route := strings.TrimSpace(get(f.Raw).String())
	if route == "" {
		return nil, ErrMissingRaw
	}

	c := NewCall(get(f.Op).String(), route)
	c.ID = get(f.ID).String()

	if data := get(f.Data); data.IsObject() {
		if m, ok := data.Value().(map[string]any); ok {
			c.Req.Data = m
		}
	}

	switch ts := get(f.ClientTime); ts.Type {
	case gjson.Number:
		c.Req.ClientTime = time.UnixMilli(ts.Int())
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, ts.Str); err == nil {
			c.Req.ClientTime = t
		}
	}
	return c, nil
}
