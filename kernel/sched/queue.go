package sched

// readyQueueCapacity bounds the number of tasks that can wait in the ready
// queue. It matches the task table size, so a successfully spawned task can
// always be enqueued.
const readyQueueCapacity = 64

// readyQueue is a fixed-capacity FIFO of task IDs implemented as an
// index-based ring buffer; it holds no pointers. The scheduler guarantees
// that an ID is enqueued at most once: a task enters the queue only on the
// Running -> Ready transition or at spawn time.
type readyQueue struct {
	ids   [readyQueueCapacity]TaskID
	head  int
	tail  int
	count int
}

// push appends id to the queue tail, returning false if the queue is full.
func (q *readyQueue) push(id TaskID) bool {
	if q.count == readyQueueCapacity {
		return false
	}

	q.ids[q.tail] = id
	q.tail = (q.tail + 1) % readyQueueCapacity
	q.count++
	return true
}

// pop removes and returns the ID at the queue head, returning false if the
// queue is empty.
func (q *readyQueue) pop() (TaskID, bool) {
	if q.count == 0 {
		return 0, false
	}

	id := q.ids[q.head]
	q.head = (q.head + 1) % readyQueueCapacity
	q.count--
	return id, true
}

// len returns the number of queued IDs.
func (q *readyQueue) len() int {
	return q.count
}
