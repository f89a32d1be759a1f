package task

import (
	"context"
	"fmt"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/stream"
)

// Handle awaits the outcome of one submitted task. Any number of
// goroutines may Await the same handle, or independent handles for the
// same task; each observes the identical terminal outcome, even when it
// starts waiting after the task already finished.
type Handle[T any] struct {
	id  id.TaskID
	reg *Registry
}

// ID returns the generated task identifier.
func (h *Handle[T]) ID() id.TaskID { return h.id }

// Await blocks until the task reaches a terminal state and returns its
// outcome. A closure failure is re-raised as the original error value,
// so errors.Is and errors.As see exactly what the closure returned.
// Cancelling ctx abandons the wait without affecting the task.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	var zero T

	sub := h.reg.scheduler.Subscribe(h.id)
	defer h.reg.scheduler.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case u, ok := <-sub.C():
			if !ok {
				return zero, fmt.Errorf("%w: update stream closed for task %s", worker.ErrTaskNotFound, h.id)
			}
			if !u.Terminal {
				continue
			}
			return h.resolve(u)
		}
	}
}

// Cancel requests cancellation of the task. Pending tasks are dropped;
// running ones have their context cancelled.
func (h *Handle[T]) Cancel(ctx context.Context) error {
	return h.reg.scheduler.Cancel(ctx, h.id)
}

// resolve translates a terminal update into the typed outcome.
func (h *Handle[T]) resolve(u *stream.Update) (T, error) {
	var zero T
	result, capturedErr, done := h.reg.outcome(h.id)

	// The closure's own error always wins over the host's view: a
	// captured failure on a host-succeeded task, or the real error
	// behind a cancellation the closure observed.
	if done && capturedErr != nil {
		return zero, capturedErr
	}

	switch host.State(u.State) {
	case host.StateSucceeded:
		if !done {
			return zero, fmt.Errorf("%w: no outcome recorded for task %s", worker.ErrRegistryDesync, h.id)
		}
		if result == nil {
			return zero, nil
		}
		v, ok := result.(T)
		if !ok {
			return zero, fmt.Errorf("%w: task %s produced %T", worker.ErrTaskFailed, h.id, result)
		}
		return v, nil

	case host.StateCancelled:
		return zero, fmt.Errorf("%w: %w", worker.ErrTaskCancelled, context.Canceled)

	default:
		if u.Err != "" {
			return zero, fmt.Errorf("%w: %s", worker.ErrTaskFailed, u.Err)
		}
		return zero, worker.ErrTaskFailed
	}
}
