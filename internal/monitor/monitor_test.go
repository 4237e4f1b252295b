package monitor_test

import (
	"errors"
	"testing"

	"github.com/mlaggner/vcable/internal/monitor"
	"github.com/mlaggner/vcable/pkg/audio/device"
	"github.com/mlaggner/vcable/pkg/audio/device/mock"
)

func testConfig(host *mock.Host) monitor.Config {
	return monitor.Config{
		Host:           host,
		InputDeviceID:  "cable",
		OutputDeviceID: "speakers",
		SampleRate:     16000,
		Channels:       2,
		FrameSize:      4,
	}
}

func TestMonitor_PassThroughIsIdentity(t *testing.T) {
	host := &mock.Host{}
	m := monitor.New(testConfig(host))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if len(host.OpenCalls) != 1 {
		t.Fatalf("got %d Open calls, want 1", len(host.OpenCalls))
	}
	if host.OpenCalls[0].Direction != device.Duplex {
		t.Errorf("direction %v, want Duplex", host.OpenCalls[0].Direction)
	}
	if host.OpenCalls[0].OutputDeviceID != "speakers" {
		t.Errorf("output device %q, want %q", host.OpenCalls[0].OutputDeviceID, "speakers")
	}

	in := []int16{1, -2, 300, -32768}
	out := host.Endpoints[0].EmitDuplex(in, device.Status{})
	if len(out) != len(in) {
		t.Fatalf("got %d output samples, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestMonitor_StartTwiceIsNoOp(t *testing.T) {
	host := &mock.Host{}
	m := monitor.New(testConfig(host))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if len(host.OpenCalls) != 1 {
		t.Errorf("second Start opened a device: %d Open calls", len(host.OpenCalls))
	}
	if !m.Running() {
		t.Error("monitor should be running")
	}
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	host := &mock.Host{}
	m := monitor.New(testConfig(host))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Running() {
		t.Error("monitor should not be running after Stop")
	}
	if !host.Endpoints[0].Closed() {
		t.Error("endpoint not closed after Stop")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop: got %v, want nil", err)
	}
}

func TestMonitor_OpenFailure(t *testing.T) {
	host := &mock.Host{OpenError: errors.New("device busy")}
	m := monitor.New(testConfig(host))

	err := m.Start()
	var oerr *device.OpenError
	if !errors.As(err, &oerr) {
		t.Fatalf("Start: got %v, want *device.OpenError", err)
	}
	if m.Running() {
		t.Error("monitor must stay idle after a failed Start")
	}
}
