// Package notify posts user-visible progress and status notifications
// for background tasks, throttling updates so a notification surface is
// not redrawn on every progress tick.
package notify

import "context"

// Importance mirrors the notification channel importance levels of the
// underlying sink.
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceDefault
	ImportanceHigh
)

// Channel identifies the notification channel notices are posted to.
type Channel struct {
	ID         string
	Name       string
	Importance Importance
}

// Icon names the symbol shown on a notice. IconNone defers resolution
// to the transfer-direction default at post time.
type Icon string

const (
	IconNone     Icon = ""
	IconUpload   Icon = "upload"
	IconDownload Icon = "download"
)

// Direction selects the default icon for unresolved notices.
type Direction int

const (
	DirectionDownload Direction = iota
	DirectionUpload
)

// ResolveIcon returns the icon to show: the explicit icon when set,
// otherwise the direction default. The resolved value is computed per
// post and never stored.
func ResolveIcon(icon Icon, dir Direction) Icon {
	if icon != IconNone {
		return icon
	}
	if dir == DirectionUpload {
		return IconUpload
	}
	return IconDownload
}

// Notice is one posted notification.
type Notice struct {
	ID      int32
	Title   string
	Text    string
	Icon    Icon
	Ongoing bool
	// Percent is nil for plain messages and set for progress updates.
	Percent *int
}

// Sink is the system notification surface. Implementations must be
// safe for concurrent use.
type Sink interface {
	// EnsureChannel creates the channel if it does not already exist.
	EnsureChannel(ctx context.Context, ch Channel) error

	// Post publishes or updates the notice identified by Notice.ID.
	Post(ctx context.Context, n Notice) error
}

// Discard is a Sink that drops every notice. It backs foreground
// sessions when no real sink is configured.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) EnsureChannel(context.Context, Channel) error { return nil }
func (discardSink) Post(context.Context, Notice) error           { return nil }
