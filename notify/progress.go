package notify

import (
	"context"
	"sync"

	worker "github.com/toyota-m2k/android-worker"
)

// Progress is the live progress sink handed to foreground closures. It
// forwards title/text/icon/percentage updates to the session's Notifier
// and to any registered observers (e.g. a dialog view-model), bypassing
// the host scheduler's generic progress channel.
type Progress struct {
	notifier *Notifier

	mu        sync.Mutex
	title     string
	text      string
	icon      Icon
	percent   int
	observers []func(current, total int64)
}

// NewProgress creates a progress sink posting through the given
// Notifier with the given initial label.
func NewProgress(n *Notifier, title, text string, icon Icon) *Progress {
	return &Progress{notifier: n, title: title, text: text, icon: icon}
}

// SetLabel updates the title and text used for subsequent updates.
func (p *Progress) SetLabel(title, text string) {
	p.mu.Lock()
	p.title = title
	p.text = text
	p.mu.Unlock()
}

// SetIcon updates the icon used for subsequent updates.
func (p *Progress) SetIcon(icon Icon) {
	p.mu.Lock()
	p.icon = icon
	p.mu.Unlock()
}

// Observe registers a callback invoked with every (current, total)
// update, before throttling. Used to mirror progress into a dialog
// view-model.
func (p *Progress) Observe(fn func(current, total int64)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Publish pushes a progress update. The percentage is derived from
// (current, total); emission is subject to the Notifier's throttling.
func (p *Progress) Publish(ctx context.Context, current, total int64) error {
	p.mu.Lock()
	percent := worker.Percent(current, total)
	p.percent = percent
	title, text, icon := p.title, p.text, p.icon
	observers := p.observers
	p.mu.Unlock()

	for _, fn := range observers {
		fn(current, total)
	}
	return p.notifier.Progress(ctx, percent, title, text, icon, true)
}

// Message posts an unthrottled status notice under the session's
// notification id.
func (p *Progress) Message(ctx context.Context, title, text string) error {
	p.mu.Lock()
	icon := p.icon
	p.mu.Unlock()
	return p.notifier.Message(ctx, title, text, icon, true)
}

// Finish posts the final, non-ongoing update. A positive outcome forces
// 100%; a negative one repeats the last seen percentage. The throttler
// always flushes final updates.
func (p *Progress) Finish(ctx context.Context, positive bool) error {
	p.mu.Lock()
	percent := p.percent
	if positive {
		percent = 100
	}
	title, text, icon := p.title, p.text, p.icon
	p.mu.Unlock()

	return p.notifier.Progress(ctx, percent, title, text, icon, false)
}
