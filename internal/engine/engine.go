// Package engine implements the core audio routing session: microphone
// capture with mute-aware silence substitution, the FIFO playback path with
// channel upmixing, and immediate interrupt semantics.
//
// A [Session] sits between three parties. The remote speech service consumes
// captured microphone bytes through the sink passed to [Session.Start] and
// produces synthesised speech through [Session.Output]. The device backend
// drives the capture callback and consumes playback frames. The control
// surface flips the mute gate and fires interrupts.
//
// The output path is a pluggable strategy (see [Strategy]): a dedicated
// bounded-blocking writer goroutine by default, or the device's own pull
// callback with an accumulation buffer. Both preserve FIFO order, the upmix
// law, and the zero-pad-on-underrun policy, and both are covered by the same
// conformance tests.
//
// This package lives under internal/ because it encapsulates
// application-private processing logic and is not intended to be imported by
// external code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/pkg/audio"
	"github.com/mlaggner/vcable/pkg/audio/device"
)

// Sink receives one capture callback's worth of raw PCM bytes (16-bit signed
// little-endian, session sample rate, capture channel count). It is invoked
// on the backend's callback thread and must not block.
type Sink func(pcm []byte)

// Strategy selects the output-path buffering model.
type Strategy string

const (
	// StrategyPush runs a dedicated writer goroutine performing blocking
	// device writes. The default; portable across backends whose write
	// semantics differ between blocking and pull-callback models.
	StrategyPush Strategy = "push"

	// StrategyPull rides the output device's pull callback with an internal
	// accumulation buffer.
	StrategyPull Strategy = "pull"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyPush || s == StrategyPull
}

// ErrAlreadyStarted is returned by Start when the session is running.
var ErrAlreadyStarted = errors.New("engine: session already started")

// Config fixes the properties of a [Session]. Sample rate, channel counts,
// and frame size are immutable for the session's lifetime.
type Config struct {
	// Host opens the capture and playback endpoints.
	Host device.Host

	// InputDeviceID is the microphone device.
	InputDeviceID string

	// OutputDeviceID is the virtual cable (or speaker) the synthesised
	// speech is written to.
	OutputDeviceID string

	// SampleRate in Hz for both sides; the engine performs no resampling.
	SampleRate int

	// Channels is the capture channel count, 1 for a mono remote link.
	Channels int

	// OutputChannels is the playback device channel count. Mono service
	// chunks are upmixed to this by duplication.
	OutputChannels int

	// FrameSize is frames per device callback / write.
	FrameSize int

	// Strategy selects the output-path model. Empty means StrategyPush.
	Strategy Strategy

	// Metrics receives engine instrumentation. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

func (c Config) validate() error {
	var errs []error
	if c.Host == nil {
		errs = append(errs, errors.New("host is nil"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channel count %d must be positive", c.Channels))
	}
	if c.OutputChannels < c.Channels {
		errs = append(errs, fmt.Errorf("output channel count %d below capture channel count %d", c.OutputChannels, c.Channels))
	}
	if c.Channels > 1 && c.OutputChannels > c.Channels {
		errs = append(errs, fmt.Errorf("upmixing to %d output channels is only defined from mono, got %d channels", c.OutputChannels, c.Channels))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size %d must be positive", c.FrameSize))
	}
	if c.Strategy != "" && !c.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("strategy %q is invalid; valid values: push, pull", c.Strategy))
	}
	return errors.Join(errs...)
}

// Session is one capture+playback routing session. Create it with [New],
// start it with [Session.Start], and tear it down with [Session.Stop].
// Exactly one session is expected to be active at a time; endpoints and
// queues are never shared across sessions.
//
// All exported methods are safe for concurrent use.
type Session struct {
	cfg     Config
	gate    MuteGate
	metrics *observe.Metrics
	ctx     context.Context

	mu        sync.Mutex
	running   bool
	captureEP device.Endpoint
	outputEP  device.Endpoint
	writer    playbackWriter
	upmix     *audio.Upmixer
}

// New validates cfg and returns an idle session. No devices are opened until
// Start.
func New(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine: config: %w", err)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPush
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Session{
		cfg:     cfg,
		metrics: m,
		ctx:     context.Background(),
	}, nil
}

// Start opens the capture and playback endpoints and begins routing: every
// capture callback forwards raw PCM bytes (or silence while muted) to sink,
// and the playback writer starts draining [Session.Output] chunks.
//
// A device open failure is fatal to the start and surfaced as a
// [device.OpenError]; any endpoint opened before the failure is closed.
func (s *Session) Start(sink Sink) error {
	if sink == nil {
		return errors.New("engine: sink is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	capEP, err := s.cfg.Host.Open(device.Params{
		DeviceID:   s.cfg.InputDeviceID,
		Direction:  device.Capture,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		FrameSize:  s.cfg.FrameSize,
	})
	if err != nil {
		return err
	}

	outEP, err := s.cfg.Host.Open(device.Params{
		DeviceID:   s.cfg.OutputDeviceID,
		Direction:  device.Playback,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.OutputChannels,
		FrameSize:  s.cfg.FrameSize,
		Pull:       s.cfg.Strategy == StrategyPull,
	})
	if err != nil {
		_ = capEP.Close()
		return err
	}

	var w playbackWriter
	switch s.cfg.Strategy {
	case StrategyPull:
		w = newPullWriter(outEP, s.metrics)
	default:
		w = newPushWriter(outEP, s.cfg.FrameSize*s.cfg.OutputChannels, s.metrics)
	}
	if err := w.start(); err != nil {
		_ = capEP.Close()
		_ = outEP.Close()
		return fmt.Errorf("engine: start playback writer: %w", err)
	}

	src := newCaptureSource(&s.gate, sink, s.metrics)
	if err := capEP.StartCapture(src.onFrame); err != nil {
		w.stop()
		_ = capEP.Close()
		_ = outEP.Close()
		return fmt.Errorf("engine: start capture: %w", err)
	}

	s.captureEP = capEP
	s.outputEP = outEP
	s.writer = w
	s.upmix = &audio.Upmixer{Channels: s.cfg.OutputChannels, Source: s.cfg.Channels}
	s.running = true
	s.metrics.ActiveSessions.Add(s.ctx, 1)

	slog.Info("session started",
		"input", s.cfg.InputDeviceID,
		"output", s.cfg.OutputDeviceID,
		"rate", s.cfg.SampleRate,
		"output_channels", s.cfg.OutputChannels,
		"strategy", s.cfg.Strategy,
	)
	return nil
}

// Stop tears down the writer and both endpoints. Idempotent; calling Stop on
// an idle session returns nil. The mute state survives Stop — it belongs to
// the gate, not to the stream lifecycle.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.writer.stop()

	var errs []error
	if err := s.captureEP.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture endpoint: %w", err))
	}
	if err := s.outputEP.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output endpoint: %w", err))
	}

	s.captureEP = nil
	s.outputEP = nil
	s.writer = nil
	s.upmix = nil
	s.running = false
	s.metrics.ActiveSessions.Add(s.ctx, -1)

	slog.Info("session stopped")
	if len(errs) > 0 {
		return fmt.Errorf("engine: stop: %w", errors.Join(errs...))
	}
	return nil
}

// Running reports whether the session is currently routing audio.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Output enqueues a chunk of synthesised speech for playback. pcm is 16-bit
// signed little-endian at the session channel count and sample rate: mono
// chunks are upmixed by duplication, multi-channel chunks pass through
// unchanged. Chunk boundaries are caller-defined and need not align with
// device frames. Chunks are dropped
// silently while muted so no stale audio accumulates, and ignored entirely
// when the session is not running.
func (s *Session) Output(pcm []byte) {
	if s.gate.Muted() {
		s.metrics.ChunksDropped.Add(s.ctx, 1)
		return
	}

	s.mu.Lock()
	w := s.writer
	up := s.upmix
	s.mu.Unlock()
	if w == nil {
		return
	}

	upmixed := up.Upmix(pcm)
	if len(upmixed) == 0 {
		return
	}
	w.enqueue(audio.BytesToSamples(upmixed))
	s.metrics.ChunksEnqueued.Add(s.ctx, 1)
}

// Interrupt synchronously discards all queued chunks and the writer's
// accumulation buffer, regardless of mute state. The stream stays open;
// subsequent Output calls resume normally. Audio already handed to the
// device remains audible only until its buffer drains.
func (s *Session) Interrupt() {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()
	if w == nil {
		return
	}
	w.clear()
	s.metrics.Interrupts.Add(s.ctx, 1)
	slog.Debug("playback interrupted, pending audio discarded")
}

// SetMuted sets the mute state explicitly.
func (s *Session) SetMuted(muted bool) {
	s.gate.Set(muted)
	slog.Info("mute state set", "muted", muted)
}

// ToggleMuted atomically flips the mute state and returns the new value.
func (s *Session) ToggleMuted() bool {
	muted := s.gate.Toggle()
	slog.Info("mute state toggled", "muted", muted)
	return muted
}

// Muted reports the current mute state.
func (s *Session) Muted() bool {
	return s.gate.Muted()
}
