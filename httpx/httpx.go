// Package httpx serves an Engine over HTTP with chi.
//
// Every request under the mount path becomes one Call: the method is the op,
// the path below the mount is the raw value, and the query string plus a JSON
// object body fill Req.Data. The response is Res.Data rendered as JSON with
// Res.Status.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bjaus/dispatch/v2"
)

// HeaderClientTime carries the client's send time, RFC 3339 or Unix
// milliseconds.
const HeaderClientTime = "X-Client-Time"

// HeaderTraceID is set on every dispatched response.
const HeaderTraceID = "X-Trace-Id"

const defaultMaxBody = 1 << 20

type options struct {
	mount       string
	health      string
	metricsPath string
	metrics     http.Handler
	maxBody     int64
	logger      *zap.Logger
}

// Option configures Handler.
type Option func(*options)

// WithMount serves dispatch calls below path. The default is "/".
func WithMount(path string) Option {
	return func(o *options) { o.mount = path }
}

// WithHealth answers GET path with 200 "." outside the engine.
func WithHealth(path string) Option {
	return func(o *options) { o.health = path }
}

// WithMetrics serves h on GET path outside the engine.
func WithMetrics(path string, h http.Handler) Option {
	return func(o *options) { o.metricsPath, o.metrics = path, h }
}

// WithMaxBody caps the request body size.
func WithMaxBody(n int64) Option {
	return func(o *options) { o.maxBody = n }
}

// WithLogger logs requests the engine never saw, like unreadable bodies.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Handler returns an http.Handler that dispatches requests through e.
func Handler(e *dispatch.Engine, opts ...Option) http.Handler {
	o := options{mount: "/", maxBody: defaultMaxBody, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	mount := "/" + strings.Trim(o.mount, "/")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if o.health != "" {
		r.Use(middleware.Heartbeat(o.health))
	}
	if o.metrics != nil && o.metricsPath != "" {
		r.Method(http.MethodGet, o.metricsPath, o.metrics)
	}

	d := &dispatcher{engine: e, mount: mount, maxBody: o.maxBody, logger: o.logger}
	if mount == "/" {
		r.Handle("/*", d)
	} else {
		r.Handle(mount, d)
		r.Handle(mount+"/*", d)
	}
	return r
}

type dispatcher struct {
	engine  *dispatch.Engine
	mount   string
	maxBody int64
	logger  *zap.Logger
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := d.call(r)
	if err != nil {
		d.logger.Debug("bad request", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, &dispatch.Error{Name: "InvalidBody", Message: err.Error()})
		return
	}

	c, err = d.engine.Exec(r.Context(), c)
	if c != nil && c.Meta.Monitor.TraceID != "" {
		w.Header().Set(HeaderTraceID, c.Meta.Monitor.TraceID)
	}
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	if c.Res.Err != nil {
		status := c.Res.Status
		if status == 0 {
			status = StatusFor(c.Res.Err)
		}
		writeError(w, status, c.Res.Err)
		return
	}

	status := c.Res.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, c.Res.Data)
}

// call turns r into a Call.
func (d *dispatcher) call(r *http.Request) (*dispatch.Call, error) {
	raw := r.URL.Path
	if d.mount != "/" {
		raw = strings.TrimPrefix(raw, d.mount)
	}
	if raw == "" || raw[0] != '/' {
		raw = "/" + raw
	}

	c := dispatch.NewCall(r.Method, raw)
	c.ID = middleware.GetReqID(r.Context())

	data := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			data[k] = v[0]
		} else {
			data[k] = v
		}
	}
	body, err := d.body(r)
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		data[k] = v
	}
	c.Req.Data = data

	c.Req.Headers = make(map[string]string, len(r.Header))
	for k := range r.Header {
		c.Req.Headers[k] = r.Header.Get(k)
	}
	c.Req.ClientTime = parseClientTime(r.Header.Get(HeaderClientTime))
	return c, nil
}

// body decodes a JSON object body. Other content types are ignored.
func (d *dispatcher) body(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return nil, nil
		}
	}

	var out map[string]any
	err := json.NewDecoder(io.LimitReader(r.Body, d.maxBody)).Decode(&out)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return out, err
}

func parseClientTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	return time.Time{}
}

// StatusFor maps an error to an HTTP status: the error's own Status when
// set, 404 for HandlerNotFound, 400 for validation errors, 500 otherwise.
func StatusFor(err error) int {
	var de *dispatch.Error
	if errors.As(err, &de) && de.Status != 0 {
		return de.Status
	}
	switch {
	case errors.Is(err, dispatch.ErrHandlerNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// writeError renders the client-safe part of err. Info and causes never
// leave the process; errors outside the taxonomy become InternalError.
func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Name: "InternalError", Message: http.StatusText(http.StatusInternalServerError)}
	var de *dispatch.Error
	if errors.As(err, &de) {
		body = errorBody{Name: de.Name, Message: de.Message, Data: de.Data}
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
