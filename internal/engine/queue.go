package engine

import (
	"sync"
	"time"
)

// chunkQueue is the unbounded FIFO of upmixed PCM chunks between Output (the
// producer, called from the remote service's receive loop) and the playback
// writer (the consumer). Chunks keep their identity — they are never merged
// or reordered; only the consumer slices them along device frame boundaries.
//
// The notify channel carries at most one pending wakeup, the same shape the
// dispatch loop of a priority mixer uses: the producer's send never blocks
// and the consumer re-checks the queue after every wakeup.
type chunkQueue struct {
	mu     sync.Mutex
	chunks [][]int16
	closed bool

	notify chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{
		notify: make(chan struct{}, 1),
	}
}

// push appends a chunk to the tail. Pushes after close are dropped.
func (q *chunkQueue) push(chunk []int16) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// tryPop removes and returns the head chunk without blocking.
func (q *chunkQueue) tryPop() ([]int16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	head := q.chunks[0]
	q.chunks = q.chunks[1:]
	return head, true
}

// pop removes and returns the head chunk, blocking up to timeout when the
// queue is empty. The second return distinguishes a delivered chunk from a
// timeout; the third reports that the queue has been closed and the consumer
// should shut down.
func (q *chunkQueue) pop(timeout time.Duration) (chunk []int16, ok bool, closed bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			head := q.chunks[0]
			q.chunks = q.chunks[1:]
			q.mu.Unlock()
			return head, true, false
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			// Re-check; the chunk may already have been taken.
		case <-deadline.C:
			return nil, false, false
		}
	}
}

// clear discards all queued chunks and returns how many were dropped.
func (q *chunkQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.chunks)
	q.chunks = nil
	return n
}

// len returns the current queue depth.
func (q *chunkQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// close marks the queue closed and wakes any blocked consumer. Queued chunks
// are discarded; subsequent pushes are dropped.
func (q *chunkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.chunks = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
