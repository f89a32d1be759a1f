package worker

import "errors"

var (
	// Descriptor errors.
	ErrDescriptorSealed = errors.New("worker: descriptor is read-only")
	ErrUnsupportedType  = errors.New("worker: unsupported parameter type")

	// Notification errors.
	ErrInvalidNotification = errors.New("worker: invalid notification configuration")

	// Registry errors.
	ErrRegistryDesync = errors.New("worker: no registry entry for task")
	ErrTaskFailed     = errors.New("worker: task failed")
	ErrTaskCancelled  = errors.New("worker: task cancelled")

	// Dialog errors.
	ErrPermissionDenied = errors.New("worker: permission denied")

	// Host errors.
	ErrTaskNotFound     = errors.New("worker: task not found")
	ErrTaskExists       = errors.New("worker: task already exists")
	ErrNoHandler        = errors.New("worker: no handler installed")
	ErrSchedulerStopped = errors.New("worker: scheduler stopped")
)
