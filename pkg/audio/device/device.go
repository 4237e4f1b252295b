// Package device defines the stream-endpoint abstraction over physical and
// virtual audio devices.
//
// The two primary abstractions are:
//
//   - [Host] — enumerates devices and opens endpoints.
//   - [Endpoint] — an open device stream with a fixed direction, sample rate,
//     channel count, and frame size.
//
// The audio backend drives endpoints by inversion of control: capture and
// duplex endpoints invoke an application callback once per hardware buffer on
// the backend's own real-time thread. Callbacks must perform bounded,
// constant-time work — no I/O, no unbounded queue operations, no long-held
// locks. Playback endpoints expose a blocking Write instead, so that the
// queueing strategy above them stays backend-independent.
//
// Implementations are provided by backend-specific adapter packages
// (device/portaudio for real hardware, device/mock for tests). The interfaces
// are intentionally narrow to keep the routing engine decoupled from backend
// details.
package device

import (
	"errors"
	"fmt"
)

// Direction states which way audio flows through an endpoint.
type Direction int

const (
	// Capture endpoints record from the device and deliver frames to a callback.
	Capture Direction = iota

	// Playback endpoints accept frames via Write and play them on the device.
	Playback

	// Duplex endpoints capture and play simultaneously through one callback.
	Duplex
)

// String returns the human-readable name of the direction.
func (d Direction) String() string {
	switch d {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	case Duplex:
		return "duplex"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by endpoint operations after Close.
var ErrClosed = errors.New("device: endpoint closed")

// OpenError reports a failure to open a device at session start. It is fatal
// to the session and surfaced synchronously to the caller; the engine performs
// no retry.
type OpenError struct {
	// ID is the opaque device identifier that failed to open.
	ID string

	// Direction is the requested stream direction.
	Direction Direction

	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("device: open %q for %s: %v", e.ID, e.Direction, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *OpenError) Unwrap() error { return e.Err }

// Status reports a transient device condition observed during steady-state
// operation. Statuses are delivered alongside frames in stream callbacks;
// they are informational and never fatal.
type Status struct {
	// InputOverflow indicates captured data was lost because the callback
	// did not keep up.
	InputOverflow bool

	// OutputUnderflow indicates the application failed to supply output data
	// in time. Expected during silence; filtered from noisy reporting.
	OutputUnderflow bool
}

// Any reports whether the status carries any condition worth noting.
func (s Status) Any() bool {
	return s.InputOverflow || s.OutputUnderflow
}

// String returns a compact description of the set conditions.
func (s Status) String() string {
	switch {
	case s.InputOverflow && s.OutputUnderflow:
		return "overflow+underflow"
	case s.InputOverflow:
		return "overflow"
	case s.OutputUnderflow:
		return "underflow"
	default:
		return "ok"
	}
}

// CaptureFunc receives one hardware buffer of interleaved int16 PCM from a
// capture endpoint. The slice is only valid for the duration of the call;
// implementations that retain the data must copy it.
type CaptureFunc func(pcm []int16, status Status)

// DuplexFunc receives one input buffer and must fill the equally sized output
// buffer before returning. Both slices are only valid for the duration of the
// call and hold interleaved int16 PCM with identical channel counts.
type DuplexFunc func(in, out []int16, status Status)

// PlayFunc must fill out with interleaved int16 PCM before returning. It is
// invoked once per hardware buffer on the backend's callback thread for
// pull-mode playback endpoints.
type PlayFunc func(out []int16, status Status)

// Params fixes the properties of an endpoint for its entire lifetime.
// Sample rate, channel count, and frame size are immutable once opened.
type Params struct {
	// DeviceID is the opaque backend identifier of the device to open.
	// The engine does not validate existence beyond propagating open failures.
	DeviceID string

	// Direction selects capture, playback, or duplex operation.
	Direction Direction

	// OutputDeviceID names the playback half of a duplex pair. Ignored for
	// other directions.
	OutputDeviceID string

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count. For duplex endpoints both
	// sides use the same count.
	Channels int

	// FrameSize is the number of frames delivered per callback or consumed
	// per Write.
	FrameSize int

	// Pull selects the callback-driven output model for Playback endpoints:
	// the backend pulls frames through a [PlayFunc] instead of the caller
	// pushing them through Write. The mode is fixed at open time because
	// backends open pull and push streams differently.
	Pull bool
}

// Validate checks that p describes an openable endpoint.
func (p Params) Validate() error {
	var errs []error
	if p.DeviceID == "" {
		errs = append(errs, errors.New("device id is empty"))
	}
	if p.Direction == Duplex && p.OutputDeviceID == "" {
		errs = append(errs, errors.New("duplex endpoint needs an output device id"))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", p.SampleRate))
	}
	if p.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channel count %d must be positive", p.Channels))
	}
	if p.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size %d must be positive", p.FrameSize))
	}
	return errors.Join(errs...)
}

// Endpoint is an open device stream. Exactly one of the start methods applies
// depending on the Direction the endpoint was opened with; calling the wrong
// one returns an error.
//
// Implementations must be safe for concurrent use.
type Endpoint interface {
	// Params returns the immutable properties the endpoint was opened with.
	Params() Params

	// StartCapture begins delivering buffers to fn on the backend's callback
	// thread. Valid only for Capture endpoints.
	StartCapture(fn CaptureFunc) error

	// StartDuplex begins the in-to-out callback loop. Valid only for Duplex
	// endpoints.
	StartDuplex(fn DuplexFunc) error

	// StartPlayback begins pulling frames through fn on the backend's
	// callback thread. Valid only for Playback endpoints opened with Pull.
	StartPlayback(fn PlayFunc) error

	// Write blocks until the given interleaved samples have been handed to
	// the device. len(pcm) must equal FrameSize*Channels. Valid only for
	// push-mode Playback endpoints. Returns ErrClosed after Close.
	Write(pcm []int16) error

	// Close stops the stream and releases the device. Idempotent; subsequent
	// calls return nil.
	Close() error
}

// Info describes one enumerable device as reported by the backend.
type Info struct {
	// ID is the opaque identifier accepted by [Host.Open].
	ID string

	// Name is the backend-reported human-readable device name.
	Name string

	// MaxInputChannels is the device's capture channel capability (0 = no input).
	MaxInputChannels int

	// MaxOutputChannels is the device's playback channel capability (0 = no output).
	MaxOutputChannels int

	// DefaultSampleRate is the backend's preferred rate for this device.
	DefaultSampleRate float64
}

// Host is the entry point for an audio backend. It enumerates devices and
// opens endpoints. Implementations must be safe for concurrent use.
type Host interface {
	// Devices returns the backend's current device list.
	Devices() ([]Info, error)

	// Open opens an endpoint with the given fixed parameters. A failure is
	// returned as an [OpenError].
	Open(p Params) (Endpoint, error)

	// Close releases the backend. No endpoints may be used afterwards.
	Close() error
}
