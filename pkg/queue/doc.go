/*
Package queue provides BoundedQueue, a fixed-capacity FIFO ring shared by one
producer and one consumer goroutine.

# Contract

  - Push blocks while the queue is full. It returns false, without inserting,
    once Shutdown has been called.
  - Pop blocks while the queue is empty. After Shutdown it keeps returning the
    items that were already accepted, in order, and only then reports
    "no more work" by returning false.
  - Shutdown is idempotent and wakes every goroutine blocked in Push or Pop.

The emptiness/fullness test, the shutdown test and the decision to block are
made under the queue's own mutex, and waiting goroutines re-check their
predicate on every wake-up, so a wake-up issued by Push, Pop or Shutdown can
never be lost between the check and the wait.

Each queue owns its synchronization state. Two queues in the same process
never share a lock or condition.

# Usage

	q, err := queue.New[string](10)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		for _, name := range names {
			if !q.Push(name) {
				return // shutting down
			}
		}
	}()

	for {
		name, ok := q.Pop()
		if !ok {
			break // drained and shut down
		}
		process(name)
	}

# Invariant violations

The ring accounting is checked after every mutation. A violation means the
queue is corrupted and panics with *types.InvariantError instead of trying to
recover.
*/
package queue
