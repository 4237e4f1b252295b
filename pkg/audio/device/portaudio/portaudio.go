// Package portaudio implements [device.Host] on top of PortAudio via
// github.com/gordonklaus/portaudio. It is the only package that touches the
// real audio backend; everything above it is backend-independent and testable
// against device/mock.
package portaudio

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/mlaggner/vcable/pkg/audio/device"
)

// Option configures a [Host] during construction.
type Option func(*Host)

// WithSettleDelay makes the host sleep for d after each successful Open.
// Some drivers report spurious errors when two physical streams are opened
// back-to-back; this is the documented accommodation for them. Zero (the
// default) disables the delay.
func WithSettleDelay(d time.Duration) Option {
	return func(h *Host) {
		h.settleDelay = d
	}
}

// Host is a [device.Host] backed by PortAudio. Create one per process with
// [New] and release it with Close; PortAudio itself is initialised and
// terminated exactly once per Host.
type Host struct {
	settleDelay time.Duration

	mu     sync.Mutex
	closed bool
}

// New initialises PortAudio and returns a ready Host.
func New(opts ...Option) (*Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	h := &Host{}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Devices implements [device.Host]. Device IDs are the PortAudio device
// indices rendered as decimal strings.
func (h *Host) Devices() ([]device.Info, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	infos := make([]device.Info, len(devs))
	for i, d := range devs {
		infos[i] = device.Info{
			ID:                strconv.Itoa(i),
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
	}
	return infos, nil
}

// resolve maps an opaque ID to a PortAudio device via [device.FindByID]:
// decimal device index first, then exact name, then case-insensitive name
// substring. kind restricts the match to devices usable in the requested
// direction, so "cable" picks the cable's output half even when its input
// half enumerates first.
func (h *Host) resolve(id string, kind device.Kind) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	infos := make([]device.Info, len(devs))
	for i, d := range devs {
		infos[i] = device.Info{
			ID:                strconv.Itoa(i),
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
	}
	info, ok := device.FindByID(infos, id, kind)
	if !ok {
		return nil, fmt.Errorf("no device matching %q among %d devices", id, len(devs))
	}
	idx, err := strconv.Atoi(info.ID)
	if err != nil {
		return nil, fmt.Errorf("device ID %q: %w", info.ID, err)
	}
	return devs[idx], nil
}

// Open implements [device.Host].
func (h *Host) Open(p device.Params) (device.Endpoint, error) {
	if err := p.Validate(); err != nil {
		return nil, &device.OpenError{ID: p.DeviceID, Direction: p.Direction, Err: err}
	}

	ep, err := h.open(p)
	if err != nil {
		return nil, &device.OpenError{ID: p.DeviceID, Direction: p.Direction, Err: err}
	}

	if h.settleDelay > 0 {
		time.Sleep(h.settleDelay)
	}
	return ep, nil
}

func (h *Host) open(p device.Params) (device.Endpoint, error) {
	kind := device.InputKind
	if p.Direction == device.Playback {
		kind = device.OutputKind
	}
	dev, err := h.resolve(p.DeviceID, kind)
	if err != nil {
		return nil, err
	}

	ep := &endpoint{params: p}

	switch p.Direction {
	case device.Capture:
		sp := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: p.Channels,
				Latency:  dev.DefaultLowInputLatency,
			},
			SampleRate:      float64(p.SampleRate),
			FramesPerBuffer: p.FrameSize,
		}
		cb := func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			ep.onCapture(in, statusFromFlags(flags))
		}
		ep.stream, err = portaudio.OpenStream(sp, cb)

	case device.Playback:
		sp := portaudio.StreamParameters{
			Output: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: p.Channels,
				Latency:  dev.DefaultLowOutputLatency,
			},
			SampleRate:      float64(p.SampleRate),
			FramesPerBuffer: p.FrameSize,
		}
		if p.Pull {
			cb := func(out []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
				ep.onPlay(out, statusFromFlags(flags))
			}
			ep.stream, err = portaudio.OpenStream(sp, cb)
			break
		}
		ep.writeBuf = make([]int16, p.FrameSize*p.Channels)
		ep.stream, err = portaudio.OpenStream(sp, &ep.writeBuf)
		if err == nil {
			// Blocking-write streams start immediately; there is no
			// callback registration step to defer to.
			err = ep.stream.Start()
		}

	case device.Duplex:
		outDev, rerr := h.resolve(p.OutputDeviceID, device.OutputKind)
		if rerr != nil {
			return nil, rerr
		}
		sp := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: p.Channels,
				Latency:  dev.DefaultLowInputLatency,
			},
			Output: portaudio.StreamDeviceParameters{
				Device:   outDev,
				Channels: p.Channels,
				Latency:  outDev.DefaultLowOutputLatency,
			},
			SampleRate:      float64(p.SampleRate),
			FramesPerBuffer: p.FrameSize,
		}
		cb := func(in, out []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			ep.onDuplex(in, out, statusFromFlags(flags))
		}
		ep.stream, err = portaudio.OpenStream(sp, cb)

	default:
		return nil, fmt.Errorf("unknown direction %d", p.Direction)
	}

	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return ep, nil
}

// Close implements [device.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

func statusFromFlags(flags portaudio.StreamCallbackFlags) device.Status {
	return device.Status{
		InputOverflow:   flags&portaudio.InputOverflow != 0,
		OutputUnderflow: flags&portaudio.OutputUnderflow != 0,
	}
}

// endpoint wraps one PortAudio stream. The callback closures are registered
// at open time and dispatch to the function set by StartCapture/StartDuplex;
// until that happens, callbacks are dropped (the stream is not yet started,
// so in practice none arrive).
type endpoint struct {
	params device.Params
	stream *portaudio.Stream

	mu       sync.Mutex
	captureF device.CaptureFunc
	duplexF  device.DuplexFunc
	playF    device.PlayFunc
	writeBuf []int16
	closed   bool
}

// Params implements [device.Endpoint].
func (e *endpoint) Params() device.Params { return e.params }

// StartCapture implements [device.Endpoint].
func (e *endpoint) StartCapture(fn device.CaptureFunc) error {
	if e.params.Direction != device.Capture {
		return fmt.Errorf("portaudio: StartCapture on %s endpoint", e.params.Direction)
	}
	e.mu.Lock()
	e.captureF = fn
	e.mu.Unlock()
	if err := e.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start capture: %w", err)
	}
	slog.Debug("capture stream started",
		"device", e.params.DeviceID,
		"rate", e.params.SampleRate,
		"frame_size", e.params.FrameSize,
	)
	return nil
}

// StartDuplex implements [device.Endpoint].
func (e *endpoint) StartDuplex(fn device.DuplexFunc) error {
	if e.params.Direction != device.Duplex {
		return fmt.Errorf("portaudio: StartDuplex on %s endpoint", e.params.Direction)
	}
	e.mu.Lock()
	e.duplexF = fn
	e.mu.Unlock()
	if err := e.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start duplex: %w", err)
	}
	slog.Debug("duplex stream started",
		"input", e.params.DeviceID,
		"output", e.params.OutputDeviceID,
		"rate", e.params.SampleRate,
	)
	return nil
}

// StartPlayback implements [device.Endpoint].
func (e *endpoint) StartPlayback(fn device.PlayFunc) error {
	if e.params.Direction != device.Playback || !e.params.Pull {
		return fmt.Errorf("portaudio: StartPlayback on %s endpoint (pull=%t)",
			e.params.Direction, e.params.Pull)
	}
	e.mu.Lock()
	e.playF = fn
	e.mu.Unlock()
	if err := e.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start playback: %w", err)
	}
	slog.Debug("pull playback stream started",
		"device", e.params.DeviceID,
		"rate", e.params.SampleRate,
		"frame_size", e.params.FrameSize,
	)
	return nil
}

// Write implements [device.Endpoint]. It blocks until PortAudio has consumed
// the frame.
func (e *endpoint) Write(pcm []int16) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return device.ErrClosed
	}
	if e.params.Direction != device.Playback || e.params.Pull {
		e.mu.Unlock()
		return fmt.Errorf("portaudio: Write on %s endpoint (pull=%t)", e.params.Direction, e.params.Pull)
	}
	if len(pcm) != len(e.writeBuf) {
		e.mu.Unlock()
		return fmt.Errorf("portaudio: write length %d, want %d", len(pcm), len(e.writeBuf))
	}
	copy(e.writeBuf, pcm)
	e.mu.Unlock()

	if err := e.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write: %w", err)
	}
	return nil
}

// Close implements [device.Endpoint].
func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.stream.Stop()
	if err := e.stream.Close(); err != nil {
		return fmt.Errorf("portaudio: close stream: %w", err)
	}
	return nil
}

func (e *endpoint) onCapture(in []int16, status device.Status) {
	e.mu.Lock()
	fn := e.captureF
	e.mu.Unlock()
	if fn != nil {
		fn(in, status)
	}
}

func (e *endpoint) onDuplex(in, out []int16, status device.Status) {
	e.mu.Lock()
	fn := e.duplexF
	e.mu.Unlock()
	if fn != nil {
		fn(in, out, status)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
}

func (e *endpoint) onPlay(out []int16, status device.Status) {
	e.mu.Lock()
	fn := e.playF
	e.mu.Unlock()
	if fn != nil {
		fn(out, status)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
}
