// Package dispatchfx wires an Engine and its HTTP adapter into an fx app.
//
//	fx.New(
//	    dispatchfx.Module(dispatchfx.Options{ConfigPath: "dispatch.toml"}),
//	    fx.Invoke(func(e *dispatch.Engine) {
//	        e.Route("GET /user/:id").MustTo(getUser)
//	    }),
//	).Run()
//
// Routes registered from fx.Invoke are committed before the server starts.
package dispatchfx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bjaus/dispatch/v2"
	"github.com/bjaus/dispatch/v2/config"
	"github.com/bjaus/dispatch/v2/httpx"
	"github.com/bjaus/dispatch/v2/logging"
)

// Options customizes the module.
type Options struct {
	// ConfigPath is the TOML file. Empty uses defaults plus DISPATCH_* env.
	ConfigPath string

	// Logger replaces the logger built from config.
	Logger *zap.Logger

	// EngineOptions are applied after the options derived from config.
	EngineOptions []dispatch.Option
}

// Module provides *config.Config, *zap.Logger, *prometheus.Registry,
// *dispatch.Metrics (nil when disabled), *dispatch.Catalog, *dispatch.Engine
// and the http.Handler, and runs the HTTP server on the app lifecycle.
func Module(o Options) fx.Option {
	return fx.Module("dispatch",
		fx.Supply(o),
		fx.Provide(
			provideConfig,
			provideLogger,
			prometheus.NewRegistry,
			provideMetrics,
			provideCatalog,
			provideEngine,
			provideHandler,
		),
		fx.Invoke(registerServer),
	)
}

func provideConfig(o Options) (*config.Config, error) {
	return config.Load(o.ConfigPath)
}

func provideLogger(lc fx.Lifecycle, o Options, cfg *config.Config) (*zap.Logger, error) {
	if o.Logger != nil {
		return o.Logger, nil
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func provideMetrics(cfg *config.Config, reg *prometheus.Registry) (*dispatch.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	return dispatch.NewMetrics(
		dispatch.WithNamespace(cfg.Metrics.Namespace),
		dispatch.WithSubsystem(cfg.Metrics.Subsystem),
		dispatch.WithRegistry(reg),
	)
}

func provideCatalog(cfg *config.Config) (*dispatch.Catalog, error) {
	if cfg.Catalog.File == "" {
		return dispatch.NewCatalog(nil)
	}
	return dispatch.LoadCatalogFile(cfg.Catalog.File)
}

type engineDeps struct {
	fx.In

	Opts    Options
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *dispatch.Metrics
}

func provideEngine(d engineDeps) *dispatch.Engine {
	opts := []dispatch.Option{
		dispatch.WithInstanceID(d.Config.Instance.ID),
		dispatch.WithLogger(d.Logger),
		dispatch.WithStatsInterval(d.Config.Stats.Interval()),
	}
	if d.Metrics != nil {
		opts = append(opts, dispatch.WithMetrics(d.Metrics))
	}
	if !d.Config.Tracing.Enabled {
		opts = append(opts, dispatch.WithTracer(noop.NewTracerProvider().Tracer("")))
	}
	return dispatch.New(append(opts, d.Opts.EngineOptions...)...)
}

type handlerDeps struct {
	fx.In

	Config   *config.Config
	Engine   *dispatch.Engine
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

func provideHandler(d handlerDeps) http.Handler {
	opts := []httpx.Option{
		httpx.WithMount(d.Config.HTTP.Mount),
		httpx.WithHealth(d.Config.HTTP.Health),
		httpx.WithLogger(d.Logger),
	}
	if d.Config.Metrics.Enabled && d.Config.Metrics.Path != "" {
		opts = append(opts, httpx.WithMetrics(d.Config.Metrics.Path,
			promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
	return httpx.Handler(d.Engine, opts...)
}

type serverDeps struct {
	fx.In

	Config  *config.Config
	Handler http.Handler
	Logger  *zap.Logger
	Engine  *dispatch.Engine

	// Catalog is requested so a bad catalog file fails startup.
	Catalog *dispatch.Catalog
}

func registerServer(lc fx.Lifecycle, d serverDeps) {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	srv := &http.Server{
		Addr:         d.Config.HTTP.Listen,
		Handler:      d.Handler,
		ReadTimeout:  ms(d.Config.HTTP.ReadTimeoutMs),
		WriteTimeout: ms(d.Config.HTTP.WriteTimeoutMs),
		IdleTimeout:  ms(d.Config.HTTP.IdleTimeoutMs),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			d.Logger.Info("server starting",
				zap.String("addr", ln.Addr().String()),
				zap.String("instance", d.Engine.Instance().ID),
				zap.Int("routes", len(d.Engine.Routes())),
				zap.Int("errors", len(d.Catalog.Names())),
			)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.Logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping")
			return srv.Shutdown(ctx)
		},
	})
}
