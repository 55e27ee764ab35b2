package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSource is returned by Process when no source matches the message.
var ErrNoSource = errors.New("no source matched message")

// group holds sources that share an inspector.
type group struct {
	inspector Inspector
	sources   []Source
}

// AddSource registers a source to the default inspector group. Sources are
// matched using their Discriminator, then parsed in registration order.
//
// Example:
//
//	e.AddSource(eventBridgeSource)
//	e.AddSource(snsSource)
func (e *Engine) AddSource(s Source) {
	e.defaultSources = append(e.defaultSources, s)
}

// AddGroup registers sources with a custom inspector. Use this when you have
// sources that use a different message format (e.g., protobuf).
//
// Groups are checked after the default group, in registration order.
//
// Example:
//
//	e.AddGroup(protoInspector, grpcSource, kafkaSource)
func (e *Engine) AddGroup(inspector Inspector, sources ...Source) {
	e.groups = append(e.groups, group{inspector: inspector, sources: sources})
}

// Process parses raw with the first matching source and dispatches the
// resulting call through Exec.
//
// The processing flow:
//  1. Use discriminators to find a matching source
//  2. Parse the message into a Call
//  3. Exec the call
//
// Source and parse failures happen before the lifecycle starts; they are
// returned directly and do not reach the error hook.
//
// Example:
//
//	// In an SQS consumer
//	func (s *Subscriber) ProcessMessage(ctx context.Context, msg sqs.Message) error {
//	    _, err := s.engine.Process(ctx, []byte(*msg.Body))
//	    return err
//	}
func (e *Engine) Process(ctx context.Context, raw []byte) (*Call, error) {
	source := e.match(raw)
	if source == nil {
		return nil, ErrNoSource
	}

	c, err := source.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse failed for source %s: %w", source.Name(), err)
	}
	if c == nil {
		return nil, fmt.Errorf("parse failed for source %s: nil call", source.Name())
	}
	c.Req.Source = source.Name()

	return e.Exec(ctx, c)
}

// viewCache caches parsed views per inspector to avoid re-parsing the same
// raw bytes multiple times during source matching.
type viewCache struct {
	raw   []byte
	views map[Inspector]viewResult
}

type viewResult struct {
	view View
	ok   bool
}

func newViewCache(raw []byte) *viewCache {
	return &viewCache{
		raw:   raw,
		views: make(map[Inspector]viewResult),
	}
}

// get returns a cached view or parses and caches it.
func (c *viewCache) get(insp Inspector) (View, bool) {
	if result, ok := c.views[insp]; ok {
		return result.view, result.ok
	}

	view, err := insp.Inspect(c.raw)
	if err != nil {
		c.views[insp] = viewResult{ok: false}
		return nil, false
	}

	c.views[insp] = viewResult{view: view, ok: true}
	return view, true
}

// match finds a source whose discriminator matches the raw message.
// Uses adaptive ordering to try the last successful source first.
func (e *Engine) match(raw []byte) Source {
	cache := newViewCache(raw)

	if v := e.lastMatch.Load(); v != nil {
		if lastMatch, ok := v.(string); ok && lastMatch != "" {
			if src := e.find(cache, func(s Source) bool { return s.Name() == lastMatch }); src != nil {
				return src
			}
		}
	}

	src := e.find(cache, func(Source) bool { return true })
	if src != nil {
		e.lastMatch.Store(src.Name())
	}
	return src
}

// find returns the first source accepted by keep whose discriminator
// matches, default group first.
func (e *Engine) find(cache *viewCache, keep func(Source) bool) Source {
	groups := e.groups
	if len(e.defaultSources) > 0 {
		groups = append([]group{{inspector: e.defaultInspector, sources: e.defaultSources}}, e.groups...)
	}

	for _, g := range groups {
		view, ok := cache.get(g.inspector)
		if !ok {
			continue
		}
		for _, src := range g.sources {
			if keep(src) && src.Discriminator().Match(view) {
				return src
			}
		}
	}
	return nil
}
