package apiclient

// refreshResult is what a queued request receives once the refresh settles.
type refreshResult struct {
	token string
	err   error
}

type waiter struct {
	ch chan refreshResult
}

func newWaiter() *waiter {
	// Buffered so the refresher never blocks on a caller that gave up.
	return &waiter{ch: make(chan refreshResult, 1)}
}

// waitQueue is a fixed-capacity FIFO ring buffer of waiters.
type waitQueue struct {
	buf  []*waiter
	head int
	size int
}

func newWaitQueue(capacity int) *waitQueue {
	return &waitQueue{buf: make([]*waiter, capacity)}
}

// push appends w, or reports false when the queue is full.
func (q *waitQueue) push(w *waiter) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = w
	q.size++
	return true
}

// drain removes and returns every waiter in enqueue order.
func (q *waitQueue) drain() []*waiter {
	out := make([]*waiter, 0, q.size)
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.buf)
		out = append(out, q.buf[idx])
		q.buf[idx] = nil
	}
	q.head = 0
	q.size = 0
	return out
}

// remove takes w out of the queue, keeping the order of the rest. It
// reports false when w is no longer queued.
func (q *waitQueue) remove(w *waiter) bool {
	for i := 0; i < q.size; i++ {
		if q.buf[(q.head+i)%len(q.buf)] != w {
			continue
		}
		for j := i; j < q.size-1; j++ {
			q.buf[(q.head+j)%len(q.buf)] = q.buf[(q.head+j+1)%len(q.buf)]
		}
		q.buf[(q.head+q.size-1)%len(q.buf)] = nil
		q.size--
		return true
	}
	return false
}

func (q *waitQueue) len() int {
	return q.size
}
