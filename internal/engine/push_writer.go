package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/pkg/audio/device"
)

const (
	// popTimeout bounds how long the writer goroutine blocks on an empty
	// queue before re-checking for shutdown and flushing partial frames.
	popTimeout = 100 * time.Millisecond

	// joinTimeout bounds how long stop waits for the writer goroutine. A
	// goroutine stuck in a device write past this is abandoned; the endpoint
	// close that follows will unblock it.
	joinTimeout = 2 * time.Second
)

// pushWriter drains the chunk queue on a dedicated goroutine and writes
// fixed-size frames to a blocking playback endpoint. Full frames are written
// as soon as enough samples have accumulated; a partial remainder is flushed
// zero-padded once the queue has stayed empty for a pop timeout, so trailing
// audio is never held back indefinitely.
type pushWriter struct {
	ep       device.Endpoint
	queue    *chunkQueue
	frameLen int // samples per device write (FrameSize * Channels)
	metrics  *observe.Metrics
	ctx      context.Context

	// pending accumulates popped samples between writes. Guarded by the
	// queue's consumer goroutine except for clear, hence the mutex in
	// chunkQueue does not cover it — interruptMu does. gen advances on every
	// clear; a chunk popped under an older generation is discarded instead of
	// appended, closing the window between pop and append.
	interruptMu sync.Mutex
	pending     []int16
	gen         uint64

	frame []int16 // reusable device write buffer

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newPushWriter(ep device.Endpoint, frameLen int, metrics *observe.Metrics) *pushWriter {
	return &pushWriter{
		ep:       ep,
		queue:    newChunkQueue(),
		frameLen: frameLen,
		metrics:  metrics,
		ctx:      context.Background(),
		frame:    make([]int16, frameLen),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (w *pushWriter) start() error {
	go w.run()
	return nil
}

func (w *pushWriter) enqueue(chunk []int16) {
	w.queue.push(chunk)
	w.metrics.QueueDepth.Add(w.ctx, 1)
}

func (w *pushWriter) clear() {
	dropped := w.queue.clear()
	w.interruptMu.Lock()
	w.pending = w.pending[:0]
	w.gen++
	w.interruptMu.Unlock()
	if dropped > 0 {
		w.metrics.QueueDepth.Add(w.ctx, -int64(dropped))
	}
}

func (w *pushWriter) generation() uint64 {
	w.interruptMu.Lock()
	defer w.interruptMu.Unlock()
	return w.gen
}

// appendPending adds chunk to the pending buffer and reports whether it was
// kept. A chunk popped under gen is dropped if a clear has run since: it was
// enqueued before the interrupt and must not be played after it.
func (w *pushWriter) appendPending(gen uint64, chunk []int16) bool {
	w.interruptMu.Lock()
	defer w.interruptMu.Unlock()
	if w.gen != gen {
		return false
	}
	w.pending = append(w.pending, chunk...)
	return true
}

func (w *pushWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.queue.close()
		select {
		case <-w.stopped:
		case <-time.After(joinTimeout):
			slog.Warn("playback writer did not stop within timeout")
		}
	})
}

// run is the writer goroutine. It exits when the queue is closed or done is
// signalled, whichever it observes first.
func (w *pushWriter) run() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return
		default:
		}

		gen := w.generation()
		chunk, ok, closed := w.queue.pop(popTimeout)
		if closed {
			return
		}
		if ok {
			w.metrics.QueueDepth.Add(w.ctx, -1)
			if w.appendPending(gen, chunk) {
				w.writeFullFrames()
			}
			continue
		}

		// Queue stayed empty for a full pop timeout: flush whatever partial
		// frame is pending so trailing audio becomes audible.
		w.flushPartial()
	}
}

// writeFullFrames writes as many complete frames as pending holds. The lock
// is released before each device write; only the copy is done under it.
func (w *pushWriter) writeFullFrames() {
	for {
		w.interruptMu.Lock()
		if len(w.pending) < w.frameLen {
			w.interruptMu.Unlock()
			return
		}
		copy(w.frame, w.pending[:w.frameLen])
		w.pending = append(w.pending[:0], w.pending[w.frameLen:]...)
		w.interruptMu.Unlock()

		w.write()
	}
}

// flushPartial writes the pending remainder padded with exact zeros. No-op
// when nothing is pending.
func (w *pushWriter) flushPartial() {
	w.interruptMu.Lock()
	n := len(w.pending)
	if n == 0 {
		w.interruptMu.Unlock()
		return
	}
	copy(w.frame, w.pending)
	for i := n; i < w.frameLen; i++ {
		w.frame[i] = 0
	}
	w.pending = w.pending[:0]
	w.interruptMu.Unlock()

	w.metrics.Underruns.Add(w.ctx, 1)
	w.write()
}

// write hands the current frame buffer to the device. A failed write is
// logged and counted; the writer keeps draining on subsequent chunks.
func (w *pushWriter) write() {
	start := time.Now()
	if err := w.ep.Write(w.frame); err != nil {
		w.metrics.WriteErrors.Add(w.ctx, 1)
		slog.Warn("playback write failed", "err", err)
		return
	}
	w.metrics.WriteDuration.Record(w.ctx, time.Since(start).Seconds())
}
