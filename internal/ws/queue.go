// ABOUTME: Unbounded FIFO queue for one connection's outbound frames
// ABOUTME: Drained by the writer goroutine, closed on connection teardown
package ws

import "sync"

const (
	frameKindText = iota
	frameKindPing
)

type outFrame struct {
	kind int
	data []byte
}

// outQueue is an unbounded outbound frame queue. Each connection gets
// a fresh one; closing it unblocks the writer.
type outQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []outFrame
	closed bool
}

func newOutQueue() *outQueue {
	q := &outQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a frame; returns false when the queue is closed
func (q *outQueue) push(f outFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.frames = append(q.frames, f)
	q.cond.Signal()
	return true
}

// pop blocks until a frame is available or the queue is closed
func (q *outQueue) pop() (outFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return outFrame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// close drains nothing; queued frames are discarded with the connection
func (q *outQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
