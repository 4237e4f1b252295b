package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Fields absent from the YAML keep their [Default] values. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Devices.MicID == "" {
		errs = append(errs, errors.New("devices.mic_id is not configured"))
	}
	if cfg.Devices.CableID == "" {
		errs = append(errs, errors.New("devices.cable_id is not configured"))
	}
	if cfg.Monitor.Enabled && cfg.Devices.SpeakerID == "" {
		errs = append(errs, errors.New("monitor is enabled but devices.speaker_id is not configured"))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be positive", cfg.Audio.Channels))
	}
	if cfg.Audio.OutputChannels < cfg.Audio.Channels {
		errs = append(errs, fmt.Errorf("audio.output_channels %d below audio.channels %d", cfg.Audio.OutputChannels, cfg.Audio.Channels))
	}
	if cfg.Audio.Channels > 1 && cfg.Audio.OutputChannels > cfg.Audio.Channels {
		errs = append(errs, fmt.Errorf("audio.output_channels %d: upmixing is only defined from mono, got audio.channels %d", cfg.Audio.OutputChannels, cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.Writer != "" && !cfg.Audio.Writer.IsValid() {
		errs = append(errs, fmt.Errorf("audio.writer %q is invalid; valid values: push, pull", cfg.Audio.Writer))
	}
	if cfg.Audio.OpenSettleDelay < 0 {
		errs = append(errs, fmt.Errorf("audio.open_settle_delay %s must not be negative", cfg.Audio.OpenSettleDelay))
	}

	// Suspicious-but-legal values get a warning, not an error.
	if cfg.Audio.Channels > 1 {
		slog.Warn("audio.channels above 1; remote speech services typically expect mono capture",
			"channels", cfg.Audio.Channels)
	}
	if cfg.Audio.SampleRate > 0 && cfg.Audio.SampleRate < 8000 {
		slog.Warn("audio.sample_rate is unusually low", "sample_rate", cfg.Audio.SampleRate)
	}

	return errors.Join(errs...)
}
