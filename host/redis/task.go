package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
)

// Enqueue stores the task as a Hash and adds it to the pending Sorted
// Set.
func (s *Store) Enqueue(ctx context.Context, t *host.Task) error {
	tID := t.ID.String()
	key := s.taskKey(tID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("worker/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return worker.ErrTaskExists
	}

	cp := *t
	cp.State = host.StateEnqueued
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now().UTC()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, taskToMap(&cp))
	pipe.SAdd(ctx, s.taskIDsKey(), tID)
	pipe.ZAdd(ctx, s.pendingKey(), goredis.Z{Score: taskScore(cp.Expedited, cp.EnqueuedAt), Member: tID})

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("worker/redis: enqueue task: %w", err)
	}
	return nil
}

// Dequeue atomically pops up to limit tasks from the pending set and
// marks them running.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*host.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	members, err := s.client.ZPopMin(ctx, s.pendingKey(), int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("worker/redis: dequeue zpopmin: %w", err)
	}

	now := time.Now().UTC()
	tasks := make([]*host.Task, 0, len(members))
	for _, z := range members {
		tID, ok := z.Member.(string)
		if !ok {
			continue
		}

		key := s.taskKey(tID)
		_, err = s.client.HSet(ctx, key,
			"state", string(host.StateRunning),
			"started_at", now.Format(time.RFC3339Nano),
		).Result()
		if err != nil {
			return nil, fmt.Errorf("worker/redis: dequeue update: %w", err)
		}

		t, getErr := s.getByKey(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, taskID id.TaskID) (*host.Task, error) {
	return s.getByKey(ctx, s.taskKey(taskID.String()))
}

// Update persists changes to an existing task. A task leaving the
// enqueued state is removed from the pending set.
func (s *Store) Update(ctx context.Context, t *host.Task) error {
	tID := t.ID.String()
	key := s.taskKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("worker/redis: update check exists: %w", err)
	}
	if exists == 0 {
		return worker.ErrTaskNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, taskToMap(t))
	if t.State != host.StateEnqueued {
		pipe.ZRem(ctx, s.pendingKey(), tID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("worker/redis: update task: %w", err)
	}
	return nil
}

// Delete removes a task by ID.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()
	key := s.taskKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("worker/redis: delete check exists: %w", err)
	}
	if exists == 0 {
		return worker.ErrTaskNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.taskIDsKey(), tID)
	pipe.ZRem(ctx, s.pendingKey(), tID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("worker/redis: delete task: %w", err)
	}
	return nil
}

// Pending lists non-terminal tasks, oldest first.
func (s *Store) Pending(ctx context.Context) ([]*host.Task, error) {
	ids, err := s.client.SMembers(ctx, s.taskIDsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("worker/redis: pending smembers: %w", err)
	}

	tasks := make([]*host.Task, 0, len(ids))
	for _, tID := range ids {
		t, getErr := s.getByKey(ctx, s.taskKey(tID))
		if getErr != nil {
			continue // skip missing
		}
		if t.State.Terminal() {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, k int) bool {
		return tasks[i].EnqueuedAt.Before(tasks[k].EnqueuedAt)
	})
	return tasks, nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ── helpers ──

// taskScore computes a pending-set score. Lower score = dequeued first.
// Expedited tasks get a negative bias so they always sort ahead of
// regular ones; within a class order is FIFO by enqueue time.
func taskScore(expedited bool, enqueuedAt time.Time) float64 {
	score := float64(enqueuedAt.UnixMilli()) / 1e15
	if expedited {
		score -= 1
	}
	return score
}

func taskToMap(t *host.Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":          t.ID.String(),
		"payload":     string(t.Payload),
		"expedited":   strconv.FormatBool(t.Expedited),
		"foreground":  strconv.FormatBool(t.Foreground),
		"state":       string(t.State),
		"last_error":  t.LastError,
		"timeout":     strconv.FormatInt(int64(t.Timeout), 10),
		"enqueued_at": t.EnqueuedAt.Format(time.RFC3339Nano),
	}
	if t.StartedAt != nil {
		m["started_at"] = t.StartedAt.Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		m["completed_at"] = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getByKey(ctx context.Context, key string) (*host.Task, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("worker/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, worker.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func mapToTask(m map[string]string) (*host.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("worker/redis: parse task id: %w", err)
	}

	expedited, _ := strconv.ParseBool(m["expedited"])              //nolint:errcheck // best-effort parse from trusted Redis data
	foreground, _ := strconv.ParseBool(m["foreground"])            //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)           //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &host.Task{
		ID:         tID,
		Payload:    []byte(m["payload"]),
		Expedited:  expedited,
		Foreground: foreground,
		State:      host.State(m["state"]),
		LastError:  m["last_error"],
		Timeout:    time.Duration(timeout),
		EnqueuedAt: enqueuedAt,
	}
	if v := m["started_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.StartedAt = &ts
	}
	if v := m["completed_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.CompletedAt = &ts
	}
	return t, nil
}
