// Package mock provides in-memory implementations of [device.Host] and
// [device.Endpoint] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// The harness side of an endpoint lets the test play the role of the audio
// backend: [Endpoint.EmitCapture] fires the registered capture callback,
// [Endpoint.EmitDuplex] drives a duplex round-trip, and [Endpoint.Written]
// returns everything the code under test wrote to a playback endpoint.
//
// Typical usage:
//
//	host := &mock.Host{}
//	ep, _ := host.Open(device.Params{DeviceID: "1", Direction: device.Capture, ...})
//	// ... start the code under test, then drive it:
//	host.Endpoints[0].EmitCapture([]int16{1, 2, 3}, device.Status{})
package mock

import (
	"sync"

	"github.com/mlaggner/vcable/pkg/audio/device"
)

// Host is a mock [device.Host]. Every successful Open appends the new
// endpoint to Endpoints so the test can drive it.
type Host struct {
	mu sync.Mutex

	// DevicesResult is returned by [Host.Devices].
	DevicesResult []device.Info

	// DevicesError is returned by [Host.Devices].
	DevicesError error

	// OpenError, when non-nil, is returned by every [Host.Open] call.
	OpenError error

	// Endpoints holds every endpoint created by Open, in creation order.
	Endpoints []*Endpoint

	// OpenCalls records the Params of each Open invocation.
	OpenCalls []device.Params

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Devices implements [device.Host].
func (h *Host) Devices() ([]device.Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.DevicesResult, h.DevicesError
}

// Open implements [device.Host]. When OpenError is set it is wrapped in a
// [device.OpenError] exactly like a real backend failure.
func (h *Host) Open(p device.Params) (device.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenCalls = append(h.OpenCalls, p)
	if h.OpenError != nil {
		return nil, &device.OpenError{ID: p.DeviceID, Direction: p.Direction, Err: h.OpenError}
	}
	ep := &Endpoint{ParamsResult: p}
	h.Endpoints = append(h.Endpoints, ep)
	return ep, nil
}

// Close implements [device.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountClose++
	return nil
}

// Endpoint is a mock [device.Endpoint] driven by the test harness.
type Endpoint struct {
	mu sync.Mutex

	// ParamsResult is returned by [Endpoint.Params].
	ParamsResult device.Params

	// StartError is returned by StartCapture and StartDuplex.
	StartError error

	// WriteError, when non-nil, is returned by every [Endpoint.Write] call.
	WriteError error

	// CallCountStart records StartCapture + StartDuplex invocations.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// CallCountWrite records every Write invocation, failed or not. Read it
	// through [Endpoint.WriteCalls] when a writer goroutine is still running.
	CallCountWrite int

	captureF device.CaptureFunc
	duplexF  device.DuplexFunc
	playF    device.PlayFunc
	written  [][]int16
	closed   bool
}

// Params implements [device.Endpoint].
func (e *Endpoint) Params() device.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ParamsResult
}

// StartCapture implements [device.Endpoint].
func (e *Endpoint) StartCapture(fn device.CaptureFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountStart++
	if e.StartError != nil {
		return e.StartError
	}
	e.captureF = fn
	return nil
}

// StartDuplex implements [device.Endpoint].
func (e *Endpoint) StartDuplex(fn device.DuplexFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountStart++
	if e.StartError != nil {
		return e.StartError
	}
	e.duplexF = fn
	return nil
}

// StartPlayback implements [device.Endpoint].
func (e *Endpoint) StartPlayback(fn device.PlayFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountStart++
	if e.StartError != nil {
		return e.StartError
	}
	e.playF = fn
	return nil
}

// Write implements [device.Endpoint]. The written samples are copied and
// retained for inspection via [Endpoint.Written].
func (e *Endpoint) Write(pcm []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountWrite++
	if e.closed {
		return device.ErrClosed
	}
	if e.WriteError != nil {
		return e.WriteError
	}
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	e.written = append(e.written, cp)
	return nil
}

// Close implements [device.Endpoint]. Idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountClose++
	e.closed = true
	return nil
}

// Closed reports whether Close has been called at least once.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Started reports whether any stream callback is registered.
func (e *Endpoint) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.captureF != nil || e.duplexF != nil || e.playF != nil
}

// Pull invokes the registered playback callback with a fresh output buffer of
// samples length, simulating the backend requesting one hardware buffer, and
// returns what the callback produced. Returns nil when no callback is
// registered.
func (e *Endpoint) Pull(samples int, status device.Status) []int16 {
	e.mu.Lock()
	fn := e.playF
	e.mu.Unlock()
	if fn == nil {
		return nil
	}
	out := make([]int16, samples)
	fn(out, status)
	return out
}

// EmitCapture invokes the registered capture callback with pcm, simulating
// one hardware buffer arriving from the backend. It is a no-op when no
// callback is registered.
func (e *Endpoint) EmitCapture(pcm []int16, status device.Status) {
	e.mu.Lock()
	fn := e.captureF
	e.mu.Unlock()
	if fn != nil {
		fn(pcm, status)
	}
}

// EmitDuplex invokes the registered duplex callback with in and a fresh
// output buffer of equal length, returning whatever the callback produced.
// Returns nil when no callback is registered.
func (e *Endpoint) EmitDuplex(in []int16, status device.Status) []int16 {
	e.mu.Lock()
	fn := e.duplexF
	e.mu.Unlock()
	if fn == nil {
		return nil
	}
	out := make([]int16, len(in))
	fn(in, out, status)
	return out
}

// WriteCalls reports how many times Write has been invoked, successful or
// not.
func (e *Endpoint) WriteCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CallCountWrite
}

// SetWriteError updates WriteError under the endpoint lock, so a test can
// flip a failing endpoint back to healthy while a writer goroutine is
// running.
func (e *Endpoint) SetWriteError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.WriteError = err
}

// Written returns a snapshot of every buffer passed to Write, in order.
func (e *Endpoint) Written() [][]int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([][]int16, len(e.written))
	copy(cp, e.written)
	return cp
}

// WrittenSamples returns all written buffers concatenated into one slice,
// which is usually what a FIFO-order assertion wants.
func (e *Endpoint) WrittenSamples() []int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var all []int16
	for _, w := range e.written {
		all = append(all, w...)
	}
	return all
}
