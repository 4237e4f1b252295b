// Package monitor implements the full-duplex pass-through monitor: an
// independent endpoint pair that copies one device's captured audio verbatim
// to another device, used to verify end to end what is being written to the
// virtual cable.
//
// The monitor is the second hop of the double-hop layout: the session routes
// microphone → remote service → virtual cable, and the monitor routes virtual
// cable → speakers. In a deployment where nothing should be audible locally,
// the monitor simply stays stopped.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/pkg/audio/device"
)

// Config fixes the monitor's endpoint pair. Input and output must share the
// channel count — the pass-through performs no conversion of any kind.
type Config struct {
	// Host opens the duplex endpoint pair.
	Host device.Host

	// InputDeviceID is the device to listen on (typically the virtual cable).
	InputDeviceID string

	// OutputDeviceID is the device to play through (typically the speakers).
	OutputDeviceID string

	// SampleRate in Hz. Must match whatever feeds the input device.
	SampleRate int

	// Channels is the shared channel count of both sides.
	Channels int

	// FrameSize is frames per duplex callback.
	FrameSize int

	// Metrics receives monitor instrumentation. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Monitor copies input frames to output frames unmodified. Its lifecycle is
// Stopped → Running → Stopped; Start while running is a logged no-op and
// Stop is idempotent. Safe for concurrent use.
type Monitor struct {
	cfg     Config
	metrics *observe.Metrics
	ctx     context.Context

	mu      sync.Mutex
	running bool
	ep      device.Endpoint
}

// New returns a stopped monitor. No devices are opened until Start.
func New(cfg Config) *Monitor {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Monitor{
		cfg:     cfg,
		metrics: m,
		ctx:     context.Background(),
	}
}

// Start opens the duplex pair and begins the pass-through. Calling Start
// while already running logs a warning and returns nil — it is a no-op, not
// an error. An open failure leaves the monitor stopped and is returned as a
// [device.OpenError].
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		slog.Warn("monitor already running, start ignored")
		return nil
	}

	ep, err := m.cfg.Host.Open(device.Params{
		DeviceID:       m.cfg.InputDeviceID,
		Direction:      device.Duplex,
		OutputDeviceID: m.cfg.OutputDeviceID,
		SampleRate:     m.cfg.SampleRate,
		Channels:       m.cfg.Channels,
		FrameSize:      m.cfg.FrameSize,
	})
	if err != nil {
		return err
	}

	if err := ep.StartDuplex(m.passThrough); err != nil {
		_ = ep.Close()
		return fmt.Errorf("monitor: start duplex: %w", err)
	}

	m.ep = ep
	m.running = true
	m.metrics.MonitorRunning.Add(m.ctx, 1)

	slog.Info("monitor started",
		"input", m.cfg.InputDeviceID,
		"output", m.cfg.OutputDeviceID,
		"rate", m.cfg.SampleRate,
	)
	return nil
}

// Stop closes the endpoint pair. Idempotent; stopping a stopped monitor
// returns nil immediately.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	err := m.ep.Close()
	m.ep = nil
	m.running = false
	m.metrics.MonitorRunning.Add(m.ctx, -1)

	slog.Info("monitor stopped")
	if err != nil {
		return fmt.Errorf("monitor: close endpoint: %w", err)
	}
	return nil
}

// Running reports whether the monitor is currently passing audio through.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// passThrough is the duplex callback: what comes in goes out, bit for bit.
// Underflow on the output side is expected while the cable is silent, so the
// combined status is only reported at debug level.
func (m *Monitor) passThrough(in, out []int16, status device.Status) {
	if status.Any() {
		slog.Debug("monitor stream status", "status", status.String(), "samples", len(in))
	}
	copy(out, in)
}
