package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	redisstore "github.com/toyota-m2k/android-worker/host/redis"
	"github.com/toyota-m2k/android-worker/id"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client), mr
}

func newTask(expedited bool, enqueuedAt time.Time) *host.Task {
	return &host.Task{
		ID:         id.NewTaskID(),
		Payload:    []byte(`{"n":"task.id"}`),
		Expedited:  expedited,
		State:      host.StateEnqueued,
		EnqueuedAt: enqueuedAt,
	}
}

func TestEnqueueGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	task := newTask(false, time.Now().UTC())
	task.Timeout = 30 * time.Second
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != host.StateEnqueued {
		t.Errorf("State = %q, want enqueued", got.State)
	}
	if string(got.Payload) != string(task.Payload) {
		t.Errorf("Payload = %q", got.Payload)
	}
	if got.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", got.Timeout)
	}
	if !got.EnqueuedAt.Equal(task.EnqueuedAt) {
		t.Errorf("EnqueuedAt = %v, want %v", got.EnqueuedAt, task.EnqueuedAt)
	}
}

func TestEnqueue_Duplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	task := newTask(false, time.Now().UTC())
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, task); !errors.Is(err, worker.ErrTaskExists) {
		t.Fatalf("second Enqueue error = %v, want ErrTaskExists", err)
	}
}

func TestDequeue_ExpeditedFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	base := time.Now().UTC()

	regular := newTask(false, base)
	expedited := newTask(true, base.Add(time.Second)) // newer but expedited
	for _, task := range []*host.Task{regular, expedited} {
		if err := s.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d tasks, want 2", len(claimed))
	}
	if claimed[0].ID != expedited.ID {
		t.Errorf("first claimed = %s, want expedited task", claimed[0].ID)
	}
	for _, c := range claimed {
		if c.State != host.StateRunning {
			t.Errorf("claimed state = %q, want running", c.State)
		}
		if c.StartedAt == nil {
			t.Error("claimed StartedAt is nil")
		}
	}

	// Nothing left to claim.
	again, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("second Dequeue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second Dequeue claimed %d, want 0", len(again))
	}
}

func TestUpdate_RemovesFromPendingQueue(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	task := newTask(false, time.Now().UTC())
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	task.State = host.StateRunning
	if err := s.Update(ctx, task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	claimed, err := s.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d tasks after leaving enqueued, want 0", len(claimed))
	}
}

func TestUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	task := newTask(false, time.Now().UTC())
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	now := time.Now().UTC()
	task.State = host.StateFailed
	task.LastError = "boom"
	task.CompletedAt = &now
	if err := s.Update(ctx, task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != host.StateFailed || got.LastError != "boom" {
		t.Errorf("got state=%q lastError=%q", got.State, got.LastError)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}

	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, task.ID); !errors.Is(err, worker.ErrTaskNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrTaskNotFound", err)
	}
	if err := s.Delete(ctx, task.ID); !errors.Is(err, worker.ErrTaskNotFound) {
		t.Fatalf("second Delete = %v, want ErrTaskNotFound", err)
	}

	other := newTask(false, time.Now().UTC())
	if err := s.Update(ctx, other); !errors.Is(err, worker.ErrTaskNotFound) {
		t.Fatalf("Update missing = %v, want ErrTaskNotFound", err)
	}
}

func TestPending_ExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	base := time.Now().UTC()

	first := newTask(false, base)
	second := newTask(false, base.Add(time.Second))
	done := newTask(false, base.Add(2*time.Second))
	for _, task := range []*host.Task{first, second, done} {
		if err := s.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	done.State = host.StateSucceeded
	if err := s.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("pending order = [%s %s], want oldest first", pending[0].ID, pending[1].ID)
	}
}

func TestDescriptorsSurviveReconnect(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	task := newTask(true, time.Now().UTC())
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// A new process connects to the same Redis: the descriptor is still
	// pending, the closure it referred to is not.
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	fresh := redisstore.New(client)

	pending, err := fresh.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != task.ID {
		t.Fatalf("pending after reconnect = %v, want the enqueued task", pending)
	}
	if string(pending[0].Payload) != string(task.Payload) {
		t.Errorf("Payload = %q, want original descriptor", pending[0].Payload)
	}

	claimed, err := fresh.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != task.ID {
		t.Fatalf("Dequeue after reconnect claimed %v, want the enqueued task", claimed)
	}
}

func TestPing(t *testing.T) {
	s, mr := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("Ping after server shutdown = nil, want error")
	}
}
