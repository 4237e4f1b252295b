// Command vcable routes microphone audio into a virtual audio cable with
// mute, interrupt, and a speaker pass-through monitor, controlled over a
// small HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/mlaggner/vcable/internal/config"
	"github.com/mlaggner/vcable/internal/engine"
	"github.com/mlaggner/vcable/internal/health"
	"github.com/mlaggner/vcable/internal/monitor"
	"github.com/mlaggner/vcable/internal/observe"
	"github.com/mlaggner/vcable/internal/server"
	"github.com/mlaggner/vcable/pkg/audio/device"
	padevice "github.com/mlaggner/vcable/pkg/audio/device/portaudio"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "vcable: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vcable: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vcable: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("vcable starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "vcable",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio host ────────────────────────────────────────────────────────────
	host, err := padevice.New(padevice.WithSettleDelay(cfg.Audio.OpenSettleDelay.Std()))
	if err != nil {
		slog.Error("failed to initialise audio host", "err", err)
		return 1
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("audio host close error", "err", err)
		}
	}()

	// ── Session ───────────────────────────────────────────────────────────────
	session, err := engine.New(engine.Config{
		Host:           host,
		InputDeviceID:  cfg.Devices.MicID,
		OutputDeviceID: cfg.Devices.CableID,
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		OutputChannels: cfg.Audio.OutputChannels,
		FrameSize:      cfg.Audio.FrameSize,
		Strategy:       engine.Strategy(cfg.Audio.Writer),
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	// Without a remote peer the session self-loops: captured microphone
	// audio is fed straight back as playback input, so the full
	// mic → gate → queue → cable path runs standalone.
	if err := session.Start(session.Output); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}
	defer func() {
		if err := session.Stop(); err != nil {
			slog.Warn("session stop error", "err", err)
		}
	}()

	// ── Monitor (optional) ────────────────────────────────────────────────────
	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		monChannels := cfg.Monitor.Channels
		if monChannels == 0 {
			monChannels = cfg.Audio.OutputChannels
		}
		mon = monitor.New(monitor.Config{
			Host:           host,
			InputDeviceID:  cfg.Devices.CableID,
			OutputDeviceID: cfg.Devices.SpeakerID,
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       monChannels,
			FrameSize:      cfg.Audio.FrameSize,
			Metrics:        metrics,
		})
		if err := mon.Start(); err != nil {
			slog.Error("failed to start monitor", "err", err)
			return 1
		}
		defer func() {
			if err := mon.Stop(); err != nil {
				slog.Warn("monitor stop error", "err", err)
			}
		}()
	}

	// ── Control server ────────────────────────────────────────────────────────
	devicesCheck := health.Checker{Name: "devices", Check: func(_ context.Context) error {
		_, err := host.Devices()
		return err
	}}

	var monCtl server.MonitorControl
	if mon != nil {
		monCtl = mon
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.ListenAddr != "" {
		srv := server.New(cfg.Server.ListenAddr, session, monCtl, metrics, devicesCheck)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	} else {
		slog.Warn("control server disabled; no listen_addr configured")
		g.Go(func() error {
			<-gctx.Done()
			return gctx.Err()
		})
	}

	slog.Info("ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// printDevices lists every audio device visible to the host in a table.
func printDevices(w *os.File) error {
	host, err := padevice.New()
	if err != nil {
		return err
	}
	defer host.Close()

	infos, err := host.Devices()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIN\tOUT\tRATE")
	for _, info := range infos {
		name := info.Name
		if device.IsVirtualCable(info) {
			name += " [virtual cable]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.0f\n",
			info.ID, name, info.MaxInputChannels, info.MaxOutputChannels, info.DefaultSampleRate)
	}
	return tw.Flush()
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
