package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	worker "github.com/toyota-m2k/android-worker"
)

// DefaultRefreshInterval is the minimum spacing between notifications
// that repeat an unchanged percentage.
const DefaultRefreshInterval = time.Second

// Notifier posts progress notices for one task with rate limiting and
// deduplication. Background work pushes progress far more often than a
// notification surface should be redrawn; the Notifier suppresses
// updates that repeat the last emitted percentage too quickly while
// guaranteeing the final state is always shown.
type Notifier struct {
	sink    Sink
	channel Channel
	id      int32
	dir     Direction
	logger  *slog.Logger

	mu sync.Mutex
	// lastPercent is the last emitted percentage, -1 before the first
	// emission.
	lastPercent int
	// limiter gates same-percentage refreshes; a token is consumed on
	// every emission so a refresh waits out the full interval.
	limiter *rate.Limiter
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithDirection sets the transfer direction used to resolve the default
// icon for unresolved notices.
func WithDirection(d Direction) Option {
	return func(n *Notifier) { n.dir = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithRefreshInterval sets the minimum spacing between same-percentage
// refreshes. Mostly useful in tests.
func WithRefreshInterval(d time.Duration) Option {
	return func(n *Notifier) { n.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewNotifier creates a Notifier posting to the given channel under the
// given notification id. The channel id and name must be non-empty and
// the notification id positive; violations fail with
// worker.ErrInvalidNotification. The channel is created with the sink
// if it does not exist yet.
func NewNotifier(ctx context.Context, sink Sink, ch Channel, notificationID int32, opts ...Option) (*Notifier, error) {
	if ch.ID == "" || ch.Name == "" {
		return nil, fmt.Errorf("%w: channel id and name must be non-empty", worker.ErrInvalidNotification)
	}
	if notificationID <= 0 {
		return nil, fmt.Errorf("%w: notification id must be positive, got %d", worker.ErrInvalidNotification, notificationID)
	}

	n := &Notifier{
		sink:        sink,
		channel:     ch,
		id:          notificationID,
		logger:      slog.Default(),
		lastPercent: -1,
		limiter:     rate.NewLimiter(rate.Every(DefaultRefreshInterval), 1),
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := sink.EnsureChannel(ctx, ch); err != nil {
		return nil, fmt.Errorf("notify: ensure channel %q: %w", ch.ID, err)
	}
	return n, nil
}

// Message posts a status notice unconditionally.
func (n *Notifier) Message(ctx context.Context, title, text string, icon Icon, ongoing bool) error {
	return n.post(ctx, Notice{
		ID:      n.id,
		Title:   title,
		Text:    text,
		Icon:    ResolveIcon(icon, n.dir),
		Ongoing: ongoing,
	})
}

// Progress posts a progress notice, subject to throttling: a change in
// percentage always emits, an unchanged percentage only emits when the
// refresh interval has elapsed, and a final update (ongoing=false)
// always emits.
func (n *Notifier) Progress(ctx context.Context, percent int, title, text string, icon Icon, ongoing bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	refresh := false
	if ongoing && percent == n.lastPercent {
		if !n.limiter.Allow() {
			return nil
		}
		refresh = true
	}

	p := percent
	err := n.post(ctx, Notice{
		ID:      n.id,
		Title:   title,
		Text:    text,
		Icon:    ResolveIcon(icon, n.dir),
		Ongoing: ongoing,
		Percent: &p,
	})
	if err != nil {
		return err
	}

	if !refresh {
		// Drain the bucket so the next same-value refresh waits a full
		// interval from this emission.
		n.limiter.Allow()
	}
	n.lastPercent = percent
	return nil
}

func (n *Notifier) post(ctx context.Context, notice Notice) error {
	if err := n.sink.Post(ctx, notice); err != nil {
		n.logger.Warn("notification post failed",
			slog.Int("notification_id", int(notice.ID)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("notify: post: %w", err)
	}
	return nil
}
