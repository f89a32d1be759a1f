package dialog

import (
	"sync"
	"sync/atomic"
)

// State is the supervisor's view of a session's surface.
type State int32

const (
	// StateAwaitingCreate means no surface has been shown yet.
	StateAwaitingCreate State = iota
	// StateShowing means a surface is currently on screen.
	StateShowing
	// StateReviving means the surface was dismissed while the session
	// is still alive and is about to be re-shown.
	StateReviving
	// StateClosed means the supervisor has exited.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingCreate:
		return "awaiting-create"
	case StateShowing:
		return "showing"
	case StateReviving:
		return "reviving"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the caller's handle on one supervised modeless dialog.
// While the keep-alive flag is set the supervisor guarantees a surface
// is either showing or about to be re-shown; clearing it via Close is a
// one-way terminal transition.
type Session struct {
	name string
	vm   *ViewModel

	keepAlive atomic.Bool
	state     atomic.Int32

	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	mu      sync.Mutex
	surface Surface
	err     error
}

func newSession(name string) *Session {
	s := &Session{
		name:  name,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.keepAlive.Store(true)
	s.vm = newViewModel(s.Close)
	return s
}

// Name returns the logical task name the session was shown under.
func (s *Session) Name() string { return s.name }

// ViewModel returns the session's view-model. It is created exactly
// once, before Show returns.
func (s *Session) ViewModel() *ViewModel { return s.vm }

// KeepAlive reports whether the revival loop is still wanted.
func (s *Session) KeepAlive() bool { return s.keepAlive.Load() }

// State returns the current supervisor state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the supervisor has exited and the task name is
// free again.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the supervisor exited, or nil for a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close clears the keep-alive flag and asks the currently-shown
// surface, if any, to complete with the given outcome polarity. Safe to
// call from any goroutine and more than once.
func (s *Session) Close(positive bool) {
	s.keepAlive.Store(false)

	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	if surface != nil {
		surface.Complete(positive)
	}
}

func (s *Session) signalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) setSurface(surface Surface) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// finish marks the session closed. The ready signal fires here too so a
// Show blocked on a supervisor that died before showing ever returns.
func (s *Session) finish() {
	s.keepAlive.Store(false)
	s.setState(StateClosed)
	s.signalReady()
	close(s.done)
}
