package stream_test

import (
	"testing"
	"time"

	"github.com/toyota-m2k/android-worker/id"
	"github.com/toyota-m2k/android-worker/stream"
)

func terminal(taskID id.TaskID, state string) *stream.Update {
	return &stream.Update{TaskID: taskID, State: state, Terminal: true, Timestamp: time.Now().UTC()}
}

func recv(t *testing.T, sub *stream.Subscriber) *stream.Update {
	t.Helper()
	select {
	case u, ok := <-sub.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return nil
}

func TestPublish_Fanout(t *testing.T) {
	h := stream.NewHub()
	taskID := id.NewTaskID()

	a := h.Subscribe(taskID)
	b := h.Subscribe(taskID)
	other := h.Subscribe(id.NewTaskID())

	n := h.Publish(&stream.Update{TaskID: taskID, State: "running"})
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}

	if got := recv(t, a); got.State != "running" {
		t.Errorf("a got state %q, want running", got.State)
	}
	if got := recv(t, b); got.State != "running" {
		t.Errorf("b got state %q, want running", got.State)
	}

	select {
	case u := <-other.C():
		t.Fatalf("unrelated subscriber received %+v", u)
	default:
	}
}

func TestSubscribe_ReplaysTerminal(t *testing.T) {
	h := stream.NewHub()
	taskID := id.NewTaskID()

	// Terminal published before anyone subscribed.
	h.Publish(terminal(taskID, "succeeded"))

	late := h.Subscribe(taskID)
	got := recv(t, late)
	if got.State != "succeeded" || !got.Terminal {
		t.Fatalf("late subscriber got %+v, want terminal succeeded", got)
	}

	// Every additional late subscriber replays the same update.
	later := h.Subscribe(taskID)
	if got := recv(t, later); got.State != "succeeded" {
		t.Errorf("second late subscriber got %q", got.State)
	}
}

func TestPublish_NonTerminalNotRetained(t *testing.T) {
	h := stream.NewHub()
	taskID := id.NewTaskID()

	h.Publish(&stream.Update{TaskID: taskID, State: "running"})

	sub := h.Subscribe(taskID)
	select {
	case u := <-sub.C():
		t.Fatalf("non-terminal update replayed: %+v", u)
	default:
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	h := stream.NewHub()
	sub := h.Subscribe(id.NewTaskID())

	h.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel after Unsubscribe")
	}
	// Idempotent.
	h.Unsubscribe(sub)
}

func TestPublish_FullBufferDrops(t *testing.T) {
	h := stream.NewHub(stream.WithBufferSize(1))
	taskID := id.NewTaskID()
	_ = h.Subscribe(taskID)

	h.Publish(&stream.Update{TaskID: taskID, State: "running"})
	n := h.Publish(&stream.Update{TaskID: taskID, State: "running"})
	if n != 0 {
		t.Fatalf("delivered = %d, want 0 on full buffer", n)
	}
	if h.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", h.Dropped())
	}
}

func TestClose_ClosesAllSubscribers(t *testing.T) {
	h := stream.NewHub()
	a := h.Subscribe(id.NewTaskID())
	b := h.Subscribe(id.NewTaskID())

	h.Close()

	for _, sub := range []*stream.Subscriber{a, b} {
		if _, ok := <-sub.C(); ok {
			t.Fatal("expected closed channel after hub Close")
		}
	}
}
