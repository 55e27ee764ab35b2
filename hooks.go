package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hook is a lifecycle callback for the before, after and finally stages.
//
// Hooks mutate the call in place; there is no return value to replace it. An
// error returned by the before or after hook enters the error stage, exactly
// like a handler error.
type Hook func(ctx context.Context, c *Call) error

// ErrorHook handles a failed dispatch, including HandlerNotFound.
//
// Return nil to recover: Exec returns the call and no error. Return an error
// to fail: Exec returns that error. When no error hook is set, the original
// error is returned unchanged.
type ErrorHook func(ctx context.Context, c *Call, err error) error

// hookSet holds the four lifecycle slots. Slots can change only until the
// first Exec seals the set; after that they are read without locking.
type hookSet struct {
	mu      sync.Mutex
	sealed  atomic.Bool
	before  Hook
	after   Hook
	onError ErrorHook
	finally Hook
}

// seal is idempotent.
func (h *hookSet) seal() {
	if h.sealed.Load() {
		return
	}
	h.mu.Lock()
	h.sealed.Store(true)
	h.mu.Unlock()
}

func (h *hookSet) set(name string, apply func()) error {
	if !h.unsealed(apply) {
		return frameworkError(KindHooksSealed, string(KindHooksSealed), map[string]any{"hook": name})
	}
	return nil
}

// unsealed runs apply under the lock and reports true, or reports false
// without running it once the set is sealed. Route registration goes
// through here too, so nothing writes the store after the first Exec.
func (h *hookSet) unsealed(apply func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sealed.Load() {
		return false
	}
	apply()
	return true
}

// WithBefore sets the hook called before route resolution.
//
// Example:
//
//	dispatch.WithBefore(func(ctx context.Context, c *dispatch.Call) error {
//	    c.Log("received %s %s", c.Req.Route.Op, c.Req.Route.Raw)
//	    return nil
//	})
func WithBefore(fn Hook) Option {
	return func(e *Engine) {
		e.hooks.before = fn
	}
}

// WithAfter sets the hook called after the route pipeline succeeds.
func WithAfter(fn Hook) Option {
	return func(e *Engine) {
		e.hooks.after = fn
	}
}

// WithError sets the error hook. Setting it makes failures recoverable; see
// ErrorHook.
//
// Example:
//
//	dispatch.WithError(func(ctx context.Context, c *dispatch.Call, err error) error {
//	    var de *dispatch.Error
//	    if errors.As(err, &de) {
//	        c.Res.Err = de
//	        c.Res.Status = de.Status
//	    }
//	    return nil // recovered, the adapter renders c.Res
//	})
func WithError(fn ErrorHook) Option {
	return func(e *Engine) {
		e.hooks.onError = fn
	}
}

// WithFinally sets the hook called at the end of every dispatch, whatever
// the outcome.
func WithFinally(fn Hook) Option {
	return func(e *Engine) {
		e.hooks.finally = fn
	}
}

// SetBefore replaces the before hook. It fails with HooksAlreadySealed once
// Exec has been called.
func (e *Engine) SetBefore(fn Hook) error {
	return e.hooks.set("before", func() { e.hooks.before = fn })
}

// SetAfter replaces the after hook. It fails with HooksAlreadySealed once
// Exec has been called.
func (e *Engine) SetAfter(fn Hook) error {
	return e.hooks.set("after", func() { e.hooks.after = fn })
}

// SetError replaces the error hook. It fails with HooksAlreadySealed once
// Exec has been called.
func (e *Engine) SetError(fn ErrorHook) error {
	return e.hooks.set("error", func() { e.hooks.onError = fn })
}

// SetFinally replaces the finally hook. It fails with HooksAlreadySealed once
// Exec has been called.
func (e *Engine) SetFinally(fn Hook) error {
	return e.hooks.set("finally", func() { e.hooks.finally = fn })
}

// Sealed reports whether the hooks have been sealed by a dispatch.
func (e *Engine) Sealed() bool {
	return e.hooks.sealed.Load()
}
