package host

import (
	"context"

	"github.com/toyota-m2k/android-worker/id"
)

// Store persists task descriptors. Implementations must be safe for
// concurrent use. Only descriptors are durable; see the package doc for
// the restart failure mode this implies.
type Store interface {
	// Enqueue persists a new task in enqueued state.
	// Returns worker.ErrTaskExists on duplicate IDs.
	Enqueue(ctx context.Context, t *Task) error

	// Dequeue atomically claims up to limit enqueued tasks, marks them
	// running, and returns them. Expedited tasks are claimed first.
	Dequeue(ctx context.Context, limit int) ([]*Task, error)

	// Get retrieves a task by ID. Returns worker.ErrTaskNotFound when
	// absent.
	Get(ctx context.Context, taskID id.TaskID) (*Task, error)

	// Update persists changes to an existing task.
	Update(ctx context.Context, t *Task) error

	// Delete removes a task by ID.
	Delete(ctx context.Context, taskID id.TaskID) error

	// Pending lists tasks that are not yet terminal, oldest first.
	Pending(ctx context.Context) ([]*Task, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
