// Package local implements host.Scheduler as an in-process worker pool.
// Worker goroutines poll the configured host.Store for enqueued tasks,
// execute them through the registered handler, and publish state
// transitions to a stream.Hub so awaiters observe terminal outcomes.
package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/middleware"
	"github.com/toyota-m2k/android-worker/stream"
)

var _ host.Scheduler = (*Scheduler)(nil)

// Scheduler polls a host.Store and executes claimed tasks on a fixed
// set of worker goroutines.
type Scheduler struct {
	store        host.Store
	hub          *stream.Hub
	logger       *slog.Logger
	concurrency  int
	pollInterval time.Duration
	startLimiter *rate.Limiter
	chain        middleware.Middleware

	mu      sync.Mutex
	handler host.Handler
	running bool
	stopCh  chan struct{}
	group   *errgroup.Group

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
	// cancelRequested holds ids whose cancellation arrived before the
	// claiming worker registered its cancel func. Workers consume it
	// after registering, so a request is never lost in the claim window.
	cancelRequested map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = n }
}

// WithPollInterval sets how often idle workers poll the store.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithStartRate caps how many tasks may start per second across the
// whole pool. Zero means unlimited.
func WithStartRate(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond > 0 {
			s.startLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMiddleware wraps every task execution in the given middleware
// chain.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(s *Scheduler) { s.chain = mw }
}

// WithHub sets the stream hub updates are published to. By default the
// scheduler creates its own.
func WithHub(h *stream.Hub) Option {
	return func(s *Scheduler) { s.hub = h }
}

// New creates a scheduler backed by the given store. Call SetHandler
// before Start.
func New(store host.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		logger:       slog.Default(),
		concurrency:  4,
		pollInterval: 100 * time.Millisecond,
		stopCh:          make(chan struct{}),
		active:          make(map[string]context.CancelFunc),
		cancelRequested: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = stream.NewHub()
	}
	return s
}

// Hub returns the stream hub the scheduler publishes to.
func (s *Scheduler) Hub() *stream.Hub { return s.hub }

// SetHandler installs the handler invoked for every claimed task.
func (s *Scheduler) SetHandler(h host.Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Start launches the worker goroutines. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.handler == nil {
		return worker.ErrNoHandler
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.group = &errgroup.Group{}

	s.logger.Info("scheduler starting",
		slog.Int("concurrency", s.concurrency),
		slog.Duration("poll_interval", s.pollInterval),
	)

	for range s.concurrency {
		s.group.Go(func() error {
			s.dequeueLoop()
			return nil
		})
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish. If the
// context has a deadline, active tasks are cancelled when time runs out.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	group := s.group
	s.mu.Unlock()

	s.logger.Info("scheduler stopping")
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling active tasks")
		s.cancelActive()
		_ = group.Wait()
	}
	return nil
}

// Enqueue accepts a task for asynchronous execution.
func (s *Scheduler) Enqueue(ctx context.Context, t *host.Task) error {
	if err := s.store.Enqueue(ctx, t); err != nil {
		return err
	}
	s.publish(t.ID, host.StateEnqueued, "")
	return nil
}

// Subscribe returns a subscriber on the task's state stream.
func (s *Scheduler) Subscribe(taskID id.TaskID) *stream.Subscriber {
	return s.hub.Subscribe(taskID)
}

// Unsubscribe removes and closes a subscriber.
func (s *Scheduler) Unsubscribe(sub *stream.Subscriber) {
	s.hub.Unsubscribe(sub)
}

// MarkForeground flags a task as foreground-visible.
func (s *Scheduler) MarkForeground(ctx context.Context, taskID id.TaskID) error {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	t.Foreground = true
	return s.store.Update(ctx, t)
}

// Cancel cancels a pending or running task. A running task's context is
// cancelled; the handler is expected to observe it. Cancelling a task
// already in a terminal state is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, taskID id.TaskID) error {
	key := taskID.String()

	// Record the request before looking anywhere else. A worker that
	// claims the task concurrently checks the set after registering its
	// cancel func, so exactly one side observes the request.
	s.activeMu.Lock()
	s.cancelRequested[key] = struct{}{}
	cancel, active := s.active[key]
	s.activeMu.Unlock()
	if active {
		cancel()
		return nil
	}

	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		s.clearCancelRequest(key)
		return err
	}
	if t.State.Terminal() {
		s.clearCancelRequest(key)
		return nil
	}
	if t.State == host.StateRunning {
		// Claimed between the set check and the Get. Either the worker
		// has registered its cancel func by now, or it will consume the
		// recorded request before running the handler; the worker loop
		// records the single terminal state in both cases.
		s.activeMu.Lock()
		cancel, active = s.active[key]
		s.activeMu.Unlock()
		if active {
			cancel()
		}
		return nil
	}

	now := time.Now().UTC()
	t.State = host.StateCancelled
	t.LastError = context.Canceled.Error()
	t.CompletedAt = &now
	if err := s.store.Update(ctx, t); err != nil {
		return err
	}
	// The request entry stays: a worker may have claimed the task
	// between the Get and the Update and must still see it. Ids are
	// never reused, so a leftover entry cannot affect another task.
	s.publish(t.ID, host.StateCancelled, t.LastError)
	return nil
}

// dequeueLoop is run by each worker goroutine.
func (s *Scheduler) dequeueLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		tasks, err := s.store.Dequeue(context.Background(), 1)
		if err != nil {
			s.logger.Error("dequeue error", slog.String("error", err.Error()))
			s.sleep()
			continue
		}
		if len(tasks) == 0 {
			s.sleep()
			continue
		}

		if s.startLimiter != nil {
			if waitErr := s.startLimiter.Wait(context.Background()); waitErr != nil {
				continue
			}
		}
		s.execute(tasks[0])
	}
}

// execute runs one claimed task through the handler and records the
// terminal state.
func (s *Scheduler) execute(t *host.Task) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	var (
		execCtx context.Context
		cancel  context.CancelFunc
	)
	if t.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(context.Background(), t.Timeout)
	} else {
		execCtx, cancel = context.WithCancel(context.Background())
	}
	s.track(t.ID.String(), cancel)

	// A cancel request that raced the claim is honored before the
	// handler runs; this worker records the only terminal state.
	if s.takeCancelRequest(t.ID.String()) {
		s.untrack(t.ID.String())
		cancel()
		now := time.Now().UTC()
		t.State = host.StateCancelled
		t.LastError = context.Canceled.Error()
		t.CompletedAt = &now
		if err := s.store.Update(context.Background(), t); err != nil {
			s.logger.Error("failed to record terminal state",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		s.publish(t.ID, host.StateCancelled, t.LastError)
		return
	}

	s.publish(t.ID, host.StateRunning, "")
	run := func(c context.Context) error { return handler(c, t.Payload) }
	var execErr error
	if s.chain != nil {
		execErr = s.chain(execCtx, t, run)
	} else {
		execErr = run(execCtx)
	}

	// A cancelled context wins over the handler's return value: a
	// handler may swallow cancellation and return nil.
	ctxErr := execCtx.Err()
	s.untrack(t.ID.String())
	cancel()

	now := time.Now().UTC()
	t.CompletedAt = &now
	switch {
	case errors.Is(ctxErr, context.Canceled):
		t.State = host.StateCancelled
		t.LastError = context.Canceled.Error()
	case errors.Is(ctxErr, context.DeadlineExceeded):
		t.State = host.StateFailed
		t.LastError = context.DeadlineExceeded.Error()
	case execErr != nil:
		t.State = host.StateFailed
		t.LastError = execErr.Error()
	default:
		t.State = host.StateSucceeded
		t.LastError = ""
	}

	if err := s.store.Update(context.Background(), t); err != nil {
		s.logger.Error("failed to record terminal state",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if t.State != host.StateSucceeded {
		s.logger.Debug("task did not succeed",
			slog.String("task_id", t.ID.String()),
			slog.String("state", string(t.State)),
			slog.String("error", t.LastError),
		)
	}
	s.publish(t.ID, t.State, t.LastError)
}

// publish emits a state update to the hub.
func (s *Scheduler) publish(taskID id.TaskID, state host.State, errText string) {
	s.hub.Publish(&stream.Update{
		TaskID:    taskID,
		State:     string(state),
		Err:       errText,
		Terminal:  state.Terminal(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Scheduler) sleep() {
	select {
	case <-time.After(s.pollInterval):
	case <-s.stopCh:
	}
}

func (s *Scheduler) track(taskID string, cancel context.CancelFunc) {
	s.activeMu.Lock()
	s.active[taskID] = cancel
	s.activeMu.Unlock()
}

func (s *Scheduler) untrack(taskID string) {
	s.activeMu.Lock()
	delete(s.active, taskID)
	delete(s.cancelRequested, taskID)
	s.activeMu.Unlock()
}

// takeCancelRequest consumes a pending cancel request for the task.
func (s *Scheduler) takeCancelRequest(taskID string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if _, ok := s.cancelRequested[taskID]; !ok {
		return false
	}
	delete(s.cancelRequested, taskID)
	return true
}

func (s *Scheduler) clearCancelRequest(taskID string) {
	s.activeMu.Lock()
	delete(s.cancelRequested, taskID)
	s.activeMu.Unlock()
}

func (s *Scheduler) cancelActive() {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	for taskID, cancel := range s.active {
		s.logger.Warn("cancelling active task", slog.String("task_id", taskID))
		cancel()
	}
}
