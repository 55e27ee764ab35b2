package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type HooksSuite struct {
	suite.Suite
	ctx context.Context
}

func TestHooksSuite(t *testing.T) {
	suite.Run(t, new(HooksSuite))
}

func (s *HooksSuite) SetupTest() {
	s.ctx = context.Background()
}

// track returns a hook that appends name to order.
func track(order *[]string, name string) Hook {
	return func(ctx context.Context, c *Call) error {
		*order = append(*order, name)
		return nil
	}
}

func (s *HooksSuite) TestOrderOnSuccess() {
	var order []string

	e := New(
		WithBefore(track(&order, "before")),
		WithAfter(track(&order, "after")),
		WithError(func(ctx context.Context, c *Call, err error) error {
			order = append(order, "error")
			return nil
		}),
		WithFinally(track(&order, "finally")),
	)
	s.Require().NoError(e.Route("ping").To(func(ctx context.Context, c *Call) (*Call, error) {
		order = append(order, "handler")
		return c, nil
	}))

	_, err := e.Exec(s.ctx, NewCall("", "ping"))

	s.Require().NoError(err)
	s.Equal([]string{"before", "handler", "after", "finally"}, order)
}

func (s *HooksSuite) TestOrderOnHandlerError() {
	var order []string
	boom := errors.New("boom")

	e := New(
		WithBefore(track(&order, "before")),
		WithAfter(track(&order, "after")),
		WithError(func(ctx context.Context, c *Call, err error) error {
			order = append(order, "error")
			s.ErrorIs(err, boom)
			return nil
		}),
		WithFinally(track(&order, "finally")),
	)
	s.Require().NoError(e.Route("ping").To(func(ctx context.Context, c *Call) (*Call, error) {
		order = append(order, "handler")
		return nil, boom
	}))

	_, err := e.Exec(s.ctx, NewCall("", "ping"))

	s.Require().NoError(err)
	s.Equal([]string{"before", "handler", "error", "finally"}, order)
}

func (s *HooksSuite) TestBeforeErrorSkipsResolution() {
	denied := errors.New("denied")
	var order []string

	e := New(
		WithBefore(func(ctx context.Context, c *Call) error { return denied }),
		WithFinally(track(&order, "finally")),
	)

	_, err := e.Exec(s.ctx, NewCall("", "nowhere"))

	s.ErrorIs(err, denied)
	s.NotErrorIs(err, ErrHandlerNotFound)
	s.Equal([]string{"finally"}, order)
}

func (s *HooksSuite) TestBeforeCanRewriteRoute() {
	e := New(WithBefore(func(ctx context.Context, c *Call) error {
		c.Req.Route.Raw = "rewritten"
		return nil
	}))
	s.Require().NoError(e.Route("rewritten").To(echo))

	c, err := e.Exec(s.ctx, NewCall("", "original"))

	s.Require().NoError(err)
	s.Equal("rewritten", c.Req.Route.Pattern)
}

func (s *HooksSuite) TestAfterErrorEntersErrorStage() {
	late := errors.New("late")
	var caught error

	e := New(
		WithAfter(func(ctx context.Context, c *Call) error { return late }),
		WithError(func(ctx context.Context, c *Call, err error) error {
			caught = err
			return err
		}),
	)
	s.Require().NoError(e.Route("ping").To(echo))

	_, err := e.Exec(s.ctx, NewCall("", "ping"))

	s.ErrorIs(err, late)
	s.ErrorIs(caught, late)
}

func (s *HooksSuite) TestErrorHookPresenceTogglesPropagation() {
	bare := New()
	_, err := bare.Exec(s.ctx, NewCall("GET", "/missing"))
	s.ErrorIs(err, ErrHandlerNotFound)
	s.True(IsFrameworkError(err))

	handled := New(WithError(func(ctx context.Context, c *Call, err error) error {
		c.Res.Status = 404
		c.Res.Err = (&Error{Name: "NotFound"}).WithStatus(404)
		return nil
	}))
	c, err := handled.Exec(s.ctx, NewCall("GET", "/missing"))
	s.Require().NoError(err)
	s.Equal(404, c.Res.Status)
	s.Equal("NotFound", c.Res.Err.Name)
}

func (s *HooksSuite) TestErrorHookCanReplaceError() {
	replaced := errors.New("replaced")
	e := New(WithError(func(ctx context.Context, c *Call, err error) error {
		return replaced
	}))

	_, err := e.Exec(s.ctx, NewCall("", "missing"))

	s.ErrorIs(err, replaced)
}

func (s *HooksSuite) TestPanicsAreRecovered() {
	var caught error
	e := New(WithError(func(ctx context.Context, c *Call, err error) error {
		caught = err
		return nil
	}))
	s.Require().NoError(e.Route("explode").To(func(ctx context.Context, c *Call) (*Call, error) {
		panic("kaboom")
	}))

	_, err := e.Exec(s.ctx, NewCall("", "explode"))

	s.Require().NoError(err)
	var pe *PanicError
	s.Require().ErrorAs(caught, &pe)
	s.Equal("kaboom", pe.Value)
	s.NotEmpty(pe.Stack)
	s.Equal(int64(0), e.Instance().Inflight())
}

func (s *HooksSuite) TestPanickingErrorHookPropagates() {
	e := New(WithError(func(ctx context.Context, c *Call, err error) error {
		panic(errors.New("hook broke"))
	}))

	_, err := e.Exec(s.ctx, NewCall("", "missing"))

	var pe *PanicError
	s.Require().ErrorAs(err, &pe)
	s.EqualError(errors.Unwrap(err), "hook broke")
	s.Equal(int64(0), e.Instance().Inflight())
}

func (s *HooksSuite) TestFinallyErrorOnlyWhenOtherwiseClean() {
	final := errors.New("final")
	boom := errors.New("boom")

	e := New(WithFinally(func(ctx context.Context, c *Call) error { return final }))
	s.Require().NoError(e.Route("ok").To(echo))
	s.Require().NoError(e.Route("fail").To(func(ctx context.Context, c *Call) (*Call, error) {
		return nil, boom
	}))

	_, err := e.Exec(s.ctx, NewCall("", "ok"))
	s.ErrorIs(err, final)

	_, err = e.Exec(s.ctx, NewCall("", "fail"))
	s.ErrorIs(err, boom)
	s.NotErrorIs(err, final)
}

func (s *HooksSuite) TestSettersBeforeFirstExec() {
	var order []string
	e := New()

	s.Require().NoError(e.SetBefore(track(&order, "before")))
	s.Require().NoError(e.SetAfter(track(&order, "after")))
	s.Require().NoError(e.SetFinally(track(&order, "finally")))
	s.Require().NoError(e.SetError(func(ctx context.Context, c *Call, err error) error { return nil }))
	s.False(e.Sealed())

	s.Require().NoError(e.Route("ping").To(echo))
	_, err := e.Exec(s.ctx, NewCall("", "ping"))

	s.Require().NoError(err)
	s.Equal([]string{"before", "after", "finally"}, order)
}

func (s *HooksSuite) TestSealedAfterFirstExec() {
	e := New()
	_, _ = e.Exec(s.ctx, NewCall("", "anything"))
	s.True(e.Sealed())

	noop := func(ctx context.Context, c *Call) error { return nil }
	setters := map[string]func() error{
		"before":  func() error { return e.SetBefore(noop) },
		"after":   func() error { return e.SetAfter(noop) },
		"finally": func() error { return e.SetFinally(noop) },
		"error": func() error {
			return e.SetError(func(ctx context.Context, c *Call, err error) error { return nil })
		},
	}
	for name, set := range setters {
		s.Run(name, func() {
			err := set()
			s.ErrorIs(err, ErrHooksAlreadySealed)

			var fe *FrameworkError
			s.Require().ErrorAs(err, &fe)
			s.Equal(KindHooksSealed, fe.Kind)
			s.Equal(name, fe.Base().Data["hook"])
		})
	}
}

func (s *HooksSuite) TestRoutesSealedAfterFirstExec() {
	e := New()
	s.Require().NoError(e.Route("GET /health").To(echo))
	before := e.Routes()

	_, err := e.Exec(s.ctx, NewCall("GET", "/health"))
	s.Require().NoError(err)

	err = e.Route("GET /late").To(echo)
	s.ErrorIs(err, ErrRoutesAlreadySealed)

	var fe *FrameworkError
	s.Require().ErrorAs(err, &fe)
	s.Equal(KindRoutesSealed, fe.Kind)
	s.Equal("GET /late", fe.Base().Data["route"])
	s.Equal(before, e.Routes())

	_, err = e.Exec(s.ctx, NewCall("GET", "/late"))
	s.ErrorIs(err, ErrHandlerNotFound)
}

func (s *HooksSuite) TestRouteRegistrationRacesFirstExec() {
	e := New()
	s.Require().NoError(e.Route("GET /health").To(echo))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.Exec(s.ctx, NewCall("GET", "/health"))
		}()
		go func() {
			defer wg.Done()
			err := e.Route("GET").Route("r" + strconv.Itoa(i)).To(echo)
			if err != nil {
				s.ErrorIs(err, ErrRoutesAlreadySealed)
			}
		}()
	}
	wg.Wait()

	s.True(e.Sealed())
	s.ErrorIs(e.Route("GET /after").To(echo), ErrRoutesAlreadySealed)
}

func (s *HooksSuite) TestSealedEvenWhenExecFails() {
	e := New()
	_, err := e.Exec(s.ctx, NewCall("", "missing"))
	s.Require().Error(err)

	s.ErrorIs(e.SetBefore(func(ctx context.Context, c *Call) error { return nil }), ErrHooksAlreadySealed)
}
