// Package task submits typed closures to the host scheduler and awaits
// their outcomes.
//
// The host only persists parameter descriptors, so the closure for each
// submitted task is parked in an in-process Registry keyed by the
// generated task ID. The descriptor enqueued with the host carries that
// ID; when the scheduler later executes the task, the registry handler
// resolves the ID back to the closure and runs it. Descriptors that
// outlive the process (a durable store across a restart) resolve to
// nothing and fail with worker.ErrRegistryDesync.
//
// Registry entries are never evicted: a completed entry keeps its
// result so any number of awaiters, including ones that show up after
// completion, observe the same outcome.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/notify"
	"github.com/toyota-m2k/android-worker/params"
)

// Fn is the closure signature for submitted work. The Progress argument
// is always non-nil; for tasks submitted without a foreground session
// it publishes to a discarding notifier.
type Fn func(ctx context.Context, p *notify.Progress) (any, error)

// entry parks one submitted closure and, once run, its outcome.
type entry struct {
	run Fn

	done   bool
	result any
	err    error
}

// Registry maps generated task IDs to parked closures and their
// outcomes. It is safe for concurrent use.
type Registry struct {
	scheduler host.Scheduler
	codec     params.Codec
	sink      notify.Sink
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodec sets the descriptor codec. Defaults to msgpack.
func WithCodec(c params.Codec) Option {
	return func(r *Registry) { r.codec = c }
}

// WithSink sets the notification sink foreground tasks post to.
// Defaults to notify.Discard.
func WithSink(s notify.Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry submitting to the given scheduler.
// Install Handler() on the scheduler before submitting.
func NewRegistry(scheduler host.Scheduler, opts ...Option) *Registry {
	r := &Registry{
		scheduler: scheduler,
		codec:     params.Get(params.CodecNameMsgpack),
		sink:      notify.Discard,
		logger:    slog.Default(),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// silentChannel backs the notifier handed to tasks without a foreground
// session. It only ever posts to notify.Discard.
var silentChannel = notify.Channel{
	ID:         "worker.silent",
	Name:       "Background",
	Importance: notify.ImportanceLow,
}

// Handler returns the host.Handler that resolves descriptors back to
// parked closures. Install it on the scheduler exactly once.
func (r *Registry) Handler() host.Handler {
	return func(ctx context.Context, payload []byte) error {
		d, err := params.Parse(payload, r.codec)
		if err != nil {
			return fmt.Errorf("task: parse descriptor: %w", err)
		}

		key := d.String(keyTaskID, "")
		e := r.lookup(key)
		if e == nil {
			// The descriptor survived but the closure did not, which
			// happens when a durable store replays tasks from before a
			// restart.
			r.logger.Error("descriptor refers to an unregistered closure",
				slog.String("task_id", key),
			)
			return fmt.Errorf("%w: task %s", worker.ErrRegistryDesync, key)
		}

		foreground := d.Bool(keyForeground, false)
		prog, setupErr := r.progressFor(ctx, d, key, foreground)
		if setupErr != nil {
			r.complete(e, nil, setupErr)
			return setupErr
		}

		result, runErr := r.invoke(ctx, e, prog)
		r.complete(e, result, runErr)

		if foreground {
			if finErr := prog.Finish(ctx, runErr == nil); finErr != nil {
				r.logger.Warn("failed to post final notification",
					slog.String("task_id", key),
					slog.String("error", finErr.Error()),
				)
			}
			return runErr
		}

		// Without a foreground session the host records the execution
		// as succeeded even when the closure failed; the captured error
		// is re-raised to awaiters instead.
		return nil
	}
}

// progressFor builds the Progress handed to the closure. Foreground
// tasks get a real notifier configured from the descriptor and are
// flagged on the scheduler; everything else publishes into the void.
func (r *Registry) progressFor(ctx context.Context, d *params.Descriptor, key string, foreground bool) (*notify.Progress, error) {
	if !foreground {
		n, err := notify.NewNotifier(ctx, notify.Discard, silentChannel, 1)
		if err != nil {
			return nil, err
		}
		return notify.NewProgress(n, "", "", notify.IconNone), nil
	}

	session := decodeSession(d)
	n, err := notify.NewNotifier(ctx, r.sink, session.Channel, session.NotificationID,
		notify.WithDirection(session.Direction),
	)
	if err != nil {
		return nil, err
	}

	if taskID, parseErr := id.ParseTaskID(key); parseErr == nil {
		if mfErr := r.scheduler.MarkForeground(ctx, taskID); mfErr != nil {
			r.logger.Warn("failed to mark task foreground",
				slog.String("task_id", key),
				slog.String("error", mfErr.Error()),
			)
		}
	}
	return notify.NewProgress(n, session.Title, session.Text, session.Icon), nil
}

// invoke runs the closure, converting panics into errors so one bad
// task cannot take down a worker goroutine.
func (r *Registry) invoke(ctx context.Context, e *entry, prog *notify.Progress) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("task: closure panicked: %v", rec)
		}
	}()
	return e.run(ctx, prog)
}

// add parks a closure under the given task ID.
func (r *Registry) add(taskID id.TaskID, fn Fn) {
	r.mu.Lock()
	r.entries[taskID.String()] = &entry{run: fn}
	r.mu.Unlock()
}

// remove discards an entry. Only used to roll back a failed enqueue;
// completed entries stay forever.
func (r *Registry) remove(taskID id.TaskID) {
	r.mu.Lock()
	delete(r.entries, taskID.String())
	r.mu.Unlock()
}

func (r *Registry) lookup(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

func (r *Registry) complete(e *entry, result any, err error) {
	r.mu.Lock()
	e.done = true
	e.result = result
	e.err = err
	r.mu.Unlock()
}

// outcome reports the captured result of a completed task.
func (r *Registry) outcome(taskID id.TaskID) (result any, err error, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[taskID.String()]
	if !ok || !e.done {
		return nil, nil, false
	}
	return e.result, e.err, true
}

// Len reports the number of parked entries, completed ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
