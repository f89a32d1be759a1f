// Package engine wires all subsystems together: store, scheduler,
// middleware chain, task registry, and optionally the dialog manager.
//
// This package exists to break the import cycle: the root worker
// package defines errors and configuration (imported by every
// subsystem) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/dialog"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/host/local"
	"github.com/toyota-m2k/android-worker/host/memory"
	mw "github.com/toyota-m2k/android-worker/middleware"
	"github.com/toyota-m2k/android-worker/notify"
	"github.com/toyota-m2k/android-worker/params"
	"github.com/toyota-m2k/android-worker/task"
)

// Engine owns the wired subsystems.
type Engine struct {
	cfg       worker.Config
	logger    *slog.Logger
	store     host.Store
	scheduler *local.Scheduler
	registry  *task.Registry
	dialogs   *dialog.Manager
	sink      notify.Sink
	ui        dialog.UISession
	mws       []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration. Defaults to
// worker.DefaultConfig().
func WithConfig(cfg worker.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStore sets the task store. Defaults to an in-memory store.
func WithStore(s host.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithSink sets the notification sink foreground tasks post to.
// Defaults to notify.Discard.
func WithSink(s notify.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithUISession enables the dialog manager on the given UI session.
func WithUISession(ui dialog.UISession) Option {
	return func(e *Engine) { e.ui = ui }
}

// WithMiddleware appends middleware to the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. If not set, the
// global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New wires an engine. Call Start to begin processing tasks.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    worker.DefaultConfig(),
		logger: slog.Default(),
		sink:   notify.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = memory.New()
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/toyota-m2k/android-worker"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/toyota-m2k/android-worker"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: recover → tracing → metrics → logging.
	chain := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}
	chain = append(chain, e.mws...)

	e.scheduler = local.New(e.store,
		local.WithConcurrency(e.cfg.Concurrency),
		local.WithPollInterval(e.cfg.PollInterval),
		local.WithLogger(e.logger),
		local.WithMiddleware(mw.Chain(chain...)),
	)

	e.registry = task.NewRegistry(e.scheduler,
		task.WithCodec(params.Get(e.cfg.Codec)),
		task.WithSink(e.sink),
		task.WithLogger(e.logger),
	)
	e.scheduler.SetHandler(e.registry.Handler())

	if e.ui != nil {
		e.dialogs = dialog.NewManager(e.ui, dialog.WithLogger(e.logger))
	}
	return e, nil
}

// Start begins task processing.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	return e.scheduler.Start(ctx)
}

// Stop gracefully shuts down the engine. Without a deadline on ctx the
// configured shutdown timeout applies.
func (e *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && e.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}
	err := e.scheduler.Stop(ctx)
	e.scheduler.Hub().Close()
	return err
}

// Registry returns the task registry.
func (e *Engine) Registry() *task.Registry { return e.registry }

// Scheduler returns the local scheduler.
func (e *Engine) Scheduler() *local.Scheduler { return e.scheduler }

// Store returns the task store.
func (e *Engine) Store() host.Store { return e.store }

// Dialogs returns the dialog manager, or nil when no UI session was
// configured.
func (e *Engine) Dialogs() *dialog.Manager { return e.dialogs }

// Config returns the engine configuration.
func (e *Engine) Config() worker.Config { return e.cfg }

// ForegroundSession builds a session on the configured notification
// channel.
func (e *Engine) ForegroundSession(title, text string, icon notify.Icon, dir notify.Direction) task.ForegroundSession {
	return task.ForegroundSession{
		Channel: notify.Channel{
			ID:         e.cfg.Notification.ChannelID,
			Name:       e.cfg.Notification.ChannelName,
			Importance: notify.Importance(e.cfg.Notification.Importance),
		},
		NotificationID: e.cfg.Notification.ID,
		Title:          title,
		Text:           text,
		Icon:           icon,
		Direction:      dir,
	}
}

// Submit parks a typed closure and enqueues it for background
// execution.
func Submit[T any](ctx context.Context, e *Engine, fn func(ctx context.Context, p *notify.Progress) (T, error), opts ...task.SubmitOption) (*task.Handle[T], error) {
	return task.Submit(ctx, e.registry, fn, opts...)
}

// SubmitForeground parks a typed closure and enqueues it with a
// user-visible notification session.
func SubmitForeground[T any](ctx context.Context, e *Engine, session task.ForegroundSession, fn func(ctx context.Context, p *notify.Progress) (T, error), opts ...task.SubmitOption) (*task.Handle[T], error) {
	return task.SubmitForeground(ctx, e.registry, session, fn, opts...)
}
