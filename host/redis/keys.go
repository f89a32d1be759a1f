package redis

// Key layout:
//
//	<prefix>:task:<id>  Hash    one task
//	<prefix>:tasks      Set     all known task IDs
//	<prefix>:pending    ZSet    enqueued task IDs, scored for dequeue order

func (s *Store) taskKey(taskID string) string { return s.prefix + ":task:" + taskID }

func (s *Store) taskIDsKey() string { return s.prefix + ":tasks" }

func (s *Store) pendingKey() string { return s.prefix + ":pending" }
