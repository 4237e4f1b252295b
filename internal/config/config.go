// Package config provides the configuration schema and loader for the vcable
// audio routing service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML duration strings such
// as "250ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats d like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the vcable service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// WriterStrategy selects the output-path buffering model for the session.
type WriterStrategy string

const (
	// WriterPush uses the dedicated bounded-blocking writer goroutine.
	WriterPush WriterStrategy = "push"

	// WriterPull uses the output device's pull callback with an
	// accumulation buffer.
	WriterPull WriterStrategy = "pull"
)

// IsValid reports whether w is a recognised writer strategy.
func (w WriterStrategy) IsValid() bool {
	return w == WriterPush || w == WriterPull
}

// Config is the root configuration structure for vcable.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Devices DevicesConfig `yaml:"devices"`
	Audio   AudioConfig   `yaml:"audio"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig holds network and logging settings for the control surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the control/metrics server listens on
	// (e.g., ":8080"). Empty disables the HTTP server entirely.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DevicesConfig names the audio devices by opaque backend ID. IDs are
// backend device indices as decimal strings, or exact device names; run
// `vcable -list-devices` to see both. The engine does not second-guess these
// beyond propagating open failures.
type DevicesConfig struct {
	// MicID is the microphone the session captures from.
	MicID string `yaml:"mic_id"`

	// CableID is the virtual cable (or other output) the session plays
	// synthesised speech into.
	CableID string `yaml:"cable_id"`

	// SpeakerID is the monitor's output device.
	SpeakerID string `yaml:"speaker_id"`
}

// AudioConfig holds the fixed stream properties of a session.
type AudioConfig struct {
	// SampleRate in Hz for every stream; the engine performs no resampling.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count (1 for a mono remote link).
	Channels int `yaml:"channels"`

	// OutputChannels is the playback device channel count; mono service
	// audio is upmixed to this by duplication.
	OutputChannels int `yaml:"output_channels"`

	// FrameSize is frames per device callback / write.
	FrameSize int `yaml:"frame_size"`

	// Writer selects the output-path strategy. Empty means push.
	Writer WriterStrategy `yaml:"writer"`

	// OpenSettleDelay is slept after each device open. Some drivers report
	// spurious errors when two physical streams open back-to-back; leave
	// zero unless that bites.
	OpenSettleDelay Duration `yaml:"open_settle_delay"`
}

// MonitorConfig configures the pass-through verification monitor.
type MonitorConfig struct {
	// Enabled starts the monitor together with the session.
	Enabled bool `yaml:"enabled"`

	// Channels is the shared channel count of the monitor's input and
	// output side. Zero means audio.output_channels.
	Channels int `yaml:"channels"`
}

// Default returns a Config with the conventional remote-link settings:
// 16 kHz mono capture, stereo cable output, 1024-frame buffers.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			OutputChannels: 2,
			FrameSize:      1024,
			Writer:         WriterPush,
		},
	}
}
