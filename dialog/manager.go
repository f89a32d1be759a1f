// Package dialog supervises modeless progress dialogs tied to named
// logical tasks.
//
// A modeless surface can be dismissed by events unrelated to the task
// it represents, most commonly the hosting UI session being torn down
// and recreated. The Manager runs a revival loop per session: while the
// session's keep-alive flag is set, a dismissed surface is simply shown
// again, bound to the same view-model. A named guard ensures at most
// one session per task name; a duplicate Show is a quiet no-op, not an
// error.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	worker "github.com/toyota-m2k/android-worker"
)

// Surface is one shown dialog instance. Complete dismisses it with an
// outcome polarity.
type Surface interface {
	Complete(positive bool)
}

// SurfaceFactory builds a surface bound to the session's view-model.
// It is called once per show, including every revival.
type SurfaceFactory func(vm *ViewModel) (Surface, error)

// UISession is the hosting UI boundary the manager drives.
type UISession interface {
	// ShowSurface builds a surface via build and blocks until it is
	// dismissed by any means. The build closure already carries the
	// session's view-model.
	ShowSurface(ctx context.Context, name string, build func() (Surface, error)) error

	// RequestPermission prompts for the named permission and reports
	// whether it was granted.
	RequestPermission(ctx context.Context, permission string) (bool, error)
}

// Manager supervises dialog sessions. It is safe for concurrent use.
type Manager struct {
	ui     UISession
	logger *slog.Logger

	mu     sync.Mutex
	guards map[string]*semaphore.Weighted
	perms  map[string]bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager driving the given UI session.
func NewManager(ui UISession, opts ...ManagerOption) *Manager {
	m := &Manager{
		ui:     ui,
		logger: slog.Default(),
		guards: make(map[string]*semaphore.Weighted),
		perms:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShowOption adjusts one Show call.
type ShowOption func(*showConfig)

type showConfig struct {
	permission string
	onCancel   func()
}

// WithPermission requests the named permission before showing. Each
// permission is prompted for at most once per manager; the result is
// cached. A denied permission fails Show with ErrPermissionDenied.
func WithPermission(name string) ShowOption {
	return func(c *showConfig) { c.permission = name }
}

// WithCancelAction installs the view-model's cancel callback before the
// surface is first shown.
func WithCancelAction(fn func()) ShowOption {
	return func(c *showConfig) { c.onCancel = fn }
}

// Show starts a supervised dialog session under the given task name and
// blocks until its view-model is ready, so the returned session never
// has an uninitialized view-model. If a session with the same name is
// already active, Show returns (nil, nil).
//
// The context bounds both the wait for readiness and the lifetime of
// shown surfaces; pass a long-lived context for a dialog that should
// survive the calling scope.
func (m *Manager) Show(ctx context.Context, name string, factory SurfaceFactory, opts ...ShowOption) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := showConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	guard := m.guard(name)
	if !guard.TryAcquire(1) {
		m.logger.Debug("dialog already active", slog.String("task", name))
		return nil, nil
	}

	if cfg.permission != "" {
		granted, err := m.ensurePermission(ctx, cfg.permission)
		if err != nil {
			guard.Release(1)
			return nil, err
		}
		if !granted {
			guard.Release(1)
			return nil, fmt.Errorf("%w: %s", worker.ErrPermissionDenied, cfg.permission)
		}
	}

	s := newSession(name)
	if cfg.onCancel != nil {
		s.vm.OnCancel(cfg.onCancel)
	}

	go func() {
		defer func() {
			guard.Release(1)
			s.finish()
		}()
		m.supervise(ctx, s, factory)
	}()

	select {
	case <-s.ready:
		return s, nil
	case <-ctx.Done():
		s.Close(false)
		return nil, ctx.Err()
	}
}

// supervise runs the revival loop: show the surface, wait for it to be
// dismissed, and show it again while the session is still wanted.
// Surface-creation failure ends the session and is reported through
// Session.Err.
func (m *Manager) supervise(ctx context.Context, s *Session, factory SurfaceFactory) {
	s.setState(StateAwaitingCreate)
	s.signalReady()

	for s.KeepAlive() {
		s.setState(StateShowing)
		err := m.ui.ShowSurface(ctx, s.name, func() (Surface, error) {
			surface, createErr := factory(s.vm)
			if createErr != nil {
				return nil, createErr
			}
			s.setSurface(surface)
			return surface, nil
		})
		s.setSurface(nil)

		if err != nil {
			s.fail(err)
			m.logger.Error("dialog surface failed",
				slog.String("task", s.name),
				slog.String("error", err.Error()),
			)
			return
		}
		if s.KeepAlive() {
			s.setState(StateReviving)
			m.logger.Debug("dialog surface dismissed, reviving", slog.String("task", s.name))
		}
	}
}

// guard returns the per-name permit, creating it on first use.
func (m *Manager) guard(name string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guards[name]
	if !ok {
		g = semaphore.NewWeighted(1)
		m.guards[name] = g
	}
	return g
}

// ensurePermission prompts for a permission at most once and caches the
// result.
func (m *Manager) ensurePermission(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	granted, asked := m.perms[name]
	m.mu.Unlock()
	if asked {
		return granted, nil
	}

	granted, err := m.ui.RequestPermission(ctx, name)
	if err != nil {
		return false, fmt.Errorf("dialog: request permission %q: %w", name, err)
	}

	m.mu.Lock()
	m.perms[name] = granted
	m.mu.Unlock()
	return granted, nil
}
