// Package host defines the boundary to the durable job scheduler: the
// persisted Task entity, its state machine, and the Scheduler and Store
// interfaces the rest of the module programs against.
//
// The host retains descriptors, never closures. After a process restart
// a durable Store still lists the pending tasks, but the closures they
// referred to are gone; re-running them fails with registry desync at
// the task layer.
package host

import (
	"context"
	"time"

	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/stream"
)

// State represents the host-observed lifecycle state of a task.
type State string

const (
	// StateEnqueued means the task is waiting to be picked up.
	StateEnqueued State = "enqueued"
	// StateRunning means the task is currently executing.
	StateRunning State = "running"
	// StateSucceeded means the task finished successfully.
	StateSucceeded State = "succeeded"
	// StateFailed means the task failed. Failures are never retried.
	StateFailed State = "failed"
	// StateCancelled means the task was cancelled.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final. A terminal state
// delivers exactly one outcome; transitions out of it never happen.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Task is the persisted unit of work: an opaque serialized descriptor
// plus scheduling metadata. The payload is the only part that survives
// a process restart.
type Task struct {
	ID          id.TaskID     `json:"id"`
	Payload     []byte        `json:"payload"`
	Expedited   bool          `json:"expedited"`
	Foreground  bool          `json:"foreground"`
	State       State         `json:"state"`
	LastError   string        `json:"last_error,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Handler executes the work a task descriptor refers to. The payload is
// the sealed descriptor handed to Enqueue.
type Handler func(ctx context.Context, payload []byte) error

// Scheduler is the host scheduler boundary consumed by the task layer.
type Scheduler interface {
	// Enqueue accepts a task for asynchronous execution. The expedited
	// hint is best-effort.
	Enqueue(ctx context.Context, t *Task) error

	// Subscribe returns a subscriber on the task's state stream. The
	// latest terminal update is replayed to late subscribers.
	Subscribe(taskID id.TaskID) *stream.Subscriber

	// Unsubscribe removes and closes a subscriber.
	Unsubscribe(sub *stream.Subscriber)

	// MarkForeground flags a task as running in foreground-visible
	// mode, keeping a persistent notification active for its duration.
	MarkForeground(ctx context.Context, taskID id.TaskID) error

	// Cancel cancels a pending or running task. Cancellation of a
	// running task is cooperative: its context is cancelled and the
	// handler is expected to observe it.
	Cancel(ctx context.Context, taskID id.TaskID) error
}
