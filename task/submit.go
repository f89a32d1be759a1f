package task

import (
	"context"
	"time"

	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/notify"
	"github.com/toyota-m2k/android-worker/params"
)

// SubmitOption adjusts scheduling for one submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	timeout   time.Duration
	expedited bool
	extra     func(*params.Descriptor) error
}

// WithTimeout sets a per-task execution deadline. A task exceeding it
// fails with context.DeadlineExceeded.
func WithTimeout(d time.Duration) SubmitOption {
	return func(c *submitConfig) { c.timeout = d }
}

// WithoutExpedited drops the expedited hint for work that can wait
// behind regular tasks. Submissions carry the hint by default; it is
// best-effort either way.
func WithoutExpedited() SubmitOption {
	return func(c *submitConfig) { c.expedited = false }
}

// WithParams lets the caller add extra descriptor parameters before the
// descriptor is sealed.
func WithParams(fn func(*params.Descriptor) error) SubmitOption {
	return func(c *submitConfig) { c.extra = fn }
}

// Submit parks the closure in the registry and enqueues a descriptor
// for it with the host. The closure's Progress publishes nowhere; use
// SubmitForeground for user-visible work.
func Submit[T any](ctx context.Context, r *Registry, fn func(ctx context.Context, p *notify.Progress) (T, error), opts ...SubmitOption) (*Handle[T], error) {
	return submit(ctx, r, nil, fn, opts)
}

// SubmitForeground parks the closure and enqueues it with a foreground
// session: while the task runs a persistent notification stays visible,
// and progress published by the closure updates it. The session is
// validated when the task starts, not at submission.
func SubmitForeground[T any](ctx context.Context, r *Registry, session ForegroundSession, fn func(ctx context.Context, p *notify.Progress) (T, error), opts ...SubmitOption) (*Handle[T], error) {
	return submit(ctx, r, &session, fn, opts)
}

func submit[T any](ctx context.Context, r *Registry, session *ForegroundSession, fn func(ctx context.Context, p *notify.Progress) (T, error), opts []SubmitOption) (*Handle[T], error) {
	cfg := submitConfig{expedited: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	taskID := id.NewTaskID()

	d := params.New(r.codec)
	if err := d.PutString(keyTaskID, taskID.String()); err != nil {
		return nil, err
	}
	if err := d.PutBool(keyForeground, session != nil); err != nil {
		return nil, err
	}
	if session != nil {
		if err := session.encode(d); err != nil {
			return nil, err
		}
	}
	if cfg.extra != nil {
		if err := cfg.extra(d); err != nil {
			return nil, err
		}
	}

	payload, err := d.Seal()
	if err != nil {
		return nil, err
	}

	// Park the closure before enqueueing: the scheduler may pick the
	// task up immediately.
	r.add(taskID, func(ctx context.Context, p *notify.Progress) (any, error) {
		return fn(ctx, p)
	})

	t := &host.Task{
		ID:         taskID,
		Payload:    payload,
		Expedited:  cfg.expedited,
		Foreground: session != nil,
		Timeout:    cfg.timeout,
	}
	if err := r.scheduler.Enqueue(ctx, t); err != nil {
		r.remove(taskID)
		return nil, err
	}
	return &Handle[T]{id: taskID, reg: r}, nil
}
