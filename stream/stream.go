// Package stream fans task state updates out to awaiters via per-task
// topics. Each topic retains its latest terminal update and replays it
// to late subscribers, so an awaiter that subscribes after a task
// finished still observes the terminal state exactly once.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/toyota-m2k/android-worker/id"
)

// DefaultBufferSize is the default per-subscriber update buffer.
const DefaultBufferSize = 16

// Update is one task state notification.
type Update struct {
	TaskID    id.TaskID `json:"task_id"`
	State     string    `json:"state"`
	Current   int64     `json:"current,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Err       string    `json:"error,omitempty"`
	Terminal  bool      `json:"terminal"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber receives updates for one task.
type Subscriber struct {
	id     id.SubscriberID
	taskID id.TaskID
	ch     chan *Update
	closed atomic.Bool
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() id.SubscriberID { return s.id }

// TaskID returns the task this subscriber observes.
func (s *Subscriber) TaskID() id.TaskID { return s.taskID }

// C returns the read-only update channel. The channel is closed when
// the subscriber is removed or the hub shuts down.
func (s *Subscriber) C() <-chan *Update { return s.ch }

// send attempts a non-blocking delivery. Returns false if the update
// was dropped (closed subscriber or full buffer).
func (s *Subscriber) send(u *Update) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- u:
		return true
	default:
		return false
	}
}

// close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// topic tracks the subscriber set and retained terminal update for one
// task.
type topic struct {
	subs map[string]*Subscriber
	last *Update
}

// Hub manages per-task topics. It is safe for concurrent use.
type Hub struct {
	mu         sync.Mutex
	topics     map[string]*topic
	bufferSize int
	dropped    atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber update buffer size.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) { h.bufferSize = size }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:     make(map[string]*topic),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe creates a subscriber on the given task's topic. If the
// topic retains a terminal update it is delivered to the new subscriber
// immediately.
func (h *Hub) Subscribe(taskID id.TaskID) *Subscriber {
	sub := &Subscriber{
		id:     id.NewSubscriberID(),
		taskID: taskID,
		ch:     make(chan *Update, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topics[taskID.String()]
	if t == nil {
		t = &topic{subs: make(map[string]*Subscriber)}
		h.topics[taskID.String()] = t
	}
	t.subs[sub.id.String()] = sub

	if t.last != nil {
		// Buffered replay of the retained terminal update.
		sub.send(t.last)
	}
	return sub
}

// Unsubscribe removes a subscriber from its topic and closes it.
// Topics with no subscribers and no retained update are cleaned up.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	key := sub.taskID.String()
	if t := h.topics[key]; t != nil {
		delete(t.subs, sub.id.String())
		if len(t.subs) == 0 && t.last == nil {
			delete(h.topics, key)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an update to all subscribers on the task's topic and
// retains it when terminal. Returns the number of subscribers reached.
func (h *Hub) Publish(u *Update) int {
	h.mu.Lock()
	t := h.topics[u.TaskID.String()]
	if t == nil && u.Terminal {
		// Retain terminal updates even with no subscribers yet; an
		// awaiter may subscribe after the fact.
		t = &topic{subs: make(map[string]*Subscriber)}
		h.topics[u.TaskID.String()] = t
	}
	var targets []*Subscriber
	if t != nil {
		if u.Terminal {
			t.last = u
		}
		targets = make([]*Subscriber, 0, len(t.subs))
		for _, s := range t.subs {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if s.send(u) {
			delivered++
		} else {
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped returns the number of updates dropped due to closed
// subscribers or full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close closes every subscriber and clears all topics.
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]*topic)
	h.mu.Unlock()

	for _, t := range topics {
		for _, s := range t.subs {
			s.close()
		}
	}
}
