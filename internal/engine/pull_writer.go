package engine

import (
	"context"
	"sync"

	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/pkg/audio/device"
)

// pullWriter implements the accumulation-buffer strategy: the device's own
// pull callback drains the chunk queue until it can satisfy the requested
// frame, retains any remainder for the next callback, and zero-pads when the
// queue runs dry. Everything happens inside the callback in bounded time —
// tryPop never blocks and the lock is held only for the copy.
type pullWriter struct {
	ep      device.Endpoint
	queue   *chunkQueue
	metrics *observe.Metrics
	ctx     context.Context

	mu      sync.Mutex
	pending []int16
}

func newPullWriter(ep device.Endpoint, metrics *observe.Metrics) *pullWriter {
	return &pullWriter{
		ep:      ep,
		queue:   newChunkQueue(),
		metrics: metrics,
		ctx:     context.Background(),
	}
}

func (w *pullWriter) start() error {
	return w.ep.StartPlayback(w.fill)
}

func (w *pullWriter) enqueue(chunk []int16) {
	w.queue.push(chunk)
	w.metrics.QueueDepth.Add(w.ctx, 1)
}

func (w *pullWriter) clear() {
	dropped := w.queue.clear()
	w.mu.Lock()
	w.pending = w.pending[:0]
	w.mu.Unlock()
	if dropped > 0 {
		w.metrics.QueueDepth.Add(w.ctx, -int64(dropped))
	}
}

func (w *pullWriter) stop() {
	// Nothing to join: the callback belongs to the endpoint and stops when
	// the session closes it.
}

// fill is the device pull callback. Backend underflow statuses are expected
// during silence and deliberately not logged here.
func (w *pullWriter) fill(out []int16, _ device.Status) {
	popped := 0

	w.mu.Lock()
	for len(w.pending) < len(out) {
		chunk, ok := w.queue.tryPop()
		if !ok {
			break
		}
		w.pending = append(w.pending, chunk...)
		popped++
	}

	n := copy(out, w.pending)
	w.pending = append(w.pending[:0], w.pending[n:]...)
	w.mu.Unlock()

	// Zero-fill the remainder; a partial frame must never carry stale data.
	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	if popped > 0 {
		w.metrics.QueueDepth.Add(w.ctx, -int64(popped))
	}
	if n > 0 && n < len(out) {
		w.metrics.Underruns.Add(w.ctx, 1)
	}
}
