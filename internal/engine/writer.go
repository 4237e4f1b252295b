package engine

// playbackWriter is the pluggable output-path strategy. Both implementations
// drain the same chunk queue and obey the same contract: chunks are written
// in enqueue order, sliced only along device frame boundaries, and any
// partially filled frame is zero-padded — never left with stale data.
//
//   - pushWriter (the default) runs a dedicated goroutine that blocks with a
//     bounded timeout popping chunks and performs synchronous device writes.
//     Portable across backends whose output model is a blocking write.
//   - pullWriter rides the device's own pull callback, draining the queue
//     into an accumulation buffer on demand. No extra goroutine, but requires
//     a callback-capable backend.
type playbackWriter interface {
	// start begins draining. For the push strategy this launches the writer
	// goroutine; for the pull strategy it registers the device callback.
	start() error

	// enqueue appends an upmixed chunk to the playback queue.
	enqueue(chunk []int16)

	// clear synchronously discards all queued chunks and the accumulation
	// buffer. Audio already handed to the device keeps playing until the
	// device buffer drains.
	clear()

	// stop shuts the writer down. It does not close the endpoint; the
	// session owns endpoint lifecycle.
	stop()
}
