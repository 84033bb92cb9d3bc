package queue

import (
	"fmt"
	"sync"

	"github.com/jzx17/fifocopy/pkg/types"
)

// BoundedQueue is a fixed-capacity FIFO ring with blocking Push and Pop and a
// one-way shutdown transition.
//
// All control state (count, head, tail, shuttingDown) is guarded by a single
// mutex owned by the instance. notFull and notEmpty are bound to that mutex,
// so a goroutine tests its predicate and starts waiting in one atomic step.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	notFull  sync.Cond
	notEmpty sync.Cond

	items        []T
	capacity     int
	count        int
	head         int // next read slot
	tail         int // next write slot
	shuttingDown bool
	released     bool

	// waiters counts goroutines parked in Push or Pop
	waiters int

	highWater int
	accepted  int64
	rejected  int64
	delivered int64
}

// New creates a queue with the given capacity.
func New[T any](capacity int) (*BoundedQueue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", types.ErrInvalidCapacity, capacity)
	}

	q := &BoundedQueue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	q.notFull.L = &q.mu
	q.notEmpty.L = &q.mu
	return q, nil
}

// Push appends item, blocking while the queue is full. It returns false
// without inserting once the queue is shutting down; the item then still
// belongs to the caller.
func (q *BoundedQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == q.capacity && !q.shuttingDown {
		q.waiters++
		q.notFull.Wait()
		q.waiters--
	}

	if q.shuttingDown {
		q.rejected++
		return false
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.accepted++
	if q.count > q.highWater {
		q.highWater = q.count
	}
	q.checkLocked()

	q.notEmpty.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is empty. Items
// accepted before Shutdown are still returned; once the queue is both empty
// and shutting down Pop returns the zero value and false.
func (q *BoundedQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.shuttingDown {
		q.waiters++
		q.notEmpty.Wait()
		q.waiters--
	}

	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.delivered++
	q.checkLocked()

	q.notFull.Signal()
	return item, true
}

// Shutdown stops further pushes and wakes every blocked Push and Pop.
// Calling it more than once has no additional effect.
func (q *BoundedQueue[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}
	q.shuttingDown = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Release drops the backing store. It must only be called after Shutdown,
// once no goroutine can still be blocked in Push or Pop.
func (q *BoundedQueue[T]) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return
	}
	if !q.shuttingDown {
		panic(&types.InvariantError{Component: "queue", Detail: "release before shutdown"})
	}
	if q.waiters != 0 {
		panic(&types.InvariantError{
			Component: "queue",
			Detail:    fmt.Sprintf("release with %d blocked waiters", q.waiters),
		})
	}

	q.released = true
	q.items = nil
	q.count = 0
	q.head = 0
	q.tail = 0
}

// Len returns the number of queued items.
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *BoundedQueue[T]) Cap() int {
	return q.capacity
}

// IsShuttingDown reports whether Shutdown has been called.
func (q *BoundedQueue[T]) IsShuttingDown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuttingDown
}

// Stats returns a consistent snapshot of the queue counters.
func (q *BoundedQueue[T]) Stats() types.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return types.QueueStats{
		Capacity:     q.capacity,
		Len:          q.count,
		HighWater:    q.highWater,
		Accepted:     q.accepted,
		Rejected:     q.rejected,
		Delivered:    q.delivered,
		ShuttingDown: q.shuttingDown,
	}
}

// checkLocked panics if the ring accounting is inconsistent. Callers hold mu.
func (q *BoundedQueue[T]) checkLocked() {
	if q.count < 0 || q.count > q.capacity {
		panic(&types.InvariantError{
			Component: "queue",
			Detail:    fmt.Sprintf("count=%d capacity=%d", q.count, q.capacity),
		})
	}
	if (q.head+q.count)%q.capacity != q.tail {
		panic(&types.InvariantError{
			Component: "queue",
			Detail:    fmt.Sprintf("head=%d count=%d tail=%d capacity=%d", q.head, q.count, q.tail, q.capacity),
		})
	}
}
