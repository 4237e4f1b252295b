package engine_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mlaggner/vcable/internal/engine"
	"github.com/mlaggner/vcable/pkg/audio"
	"github.com/mlaggner/vcable/pkg/audio/device"
	"github.com/mlaggner/vcable/pkg/audio/device/mock"
)

// testConfig returns a small session config against the given mock host.
// FrameSize 2 with stereo output means the push writer emits 4-sample frames,
// keeping expected sequences short.
func testConfig(host *mock.Host, strategy engine.Strategy) engine.Config {
	return engine.Config{
		Host:           host,
		InputDeviceID:  "mic",
		OutputDeviceID: "cable",
		SampleRate:     16000,
		Channels:       1,
		OutputChannels: 2,
		FrameSize:      2,
		Strategy:       strategy,
	}
}

// sinkRecorder collects everything the capture path forwards.
type sinkRecorder struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (r *sinkRecorder) sink(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.chunks = append(r.chunks, cp)
}

func (r *sinkRecorder) all() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([][]byte, len(r.chunks))
	copy(cp, r.chunks)
	return cp
}

// waitFor polls cond until it holds or the deadline passes. The push writer
// drains its queue on its own goroutine, so write-side assertions must wait.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func sampleEq(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSession_StartStop(t *testing.T) {
	host := &mock.Host{}
	s, err := engine.New(testConfig(host, engine.StrategyPush))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &sinkRecorder{}
	if err := s.Start(rec.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Running() {
		t.Error("session should be running after Start")
	}
	if len(host.OpenCalls) != 2 {
		t.Fatalf("got %d Open calls, want 2", len(host.OpenCalls))
	}
	if host.OpenCalls[0].Direction != device.Capture {
		t.Errorf("first open direction %v, want Capture", host.OpenCalls[0].Direction)
	}
	if host.OpenCalls[1].Direction != device.Playback {
		t.Errorf("second open direction %v, want Playback", host.OpenCalls[1].Direction)
	}
	if host.OpenCalls[1].Pull {
		t.Error("push strategy must not request a pull stream")
	}
	if host.OpenCalls[1].Channels != 2 {
		t.Errorf("playback channels %d, want 2", host.OpenCalls[1].Channels)
	}

	if err := s.Start(rec.sink); !errors.Is(err, engine.ErrAlreadyStarted) {
		t.Errorf("second Start: got %v, want ErrAlreadyStarted", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Running() {
		t.Error("session should not be running after Stop")
	}
	for i, ep := range host.Endpoints {
		if !ep.Closed() {
			t.Errorf("endpoint %d not closed after Stop", i)
		}
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: got %v, want nil", err)
	}
}

func TestSession_StartOpenFailure(t *testing.T) {
	host := &mock.Host{OpenError: errors.New("no such device")}
	s, err := engine.New(testConfig(host, engine.StrategyPush))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.Start(func([]byte) {})
	var oerr *device.OpenError
	if !errors.As(err, &oerr) {
		t.Fatalf("Start: got %v, want *device.OpenError", err)
	}
	if s.Running() {
		t.Error("session must stay idle after a failed Start")
	}
}

func TestCapture_ForwardsBytes(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	rec := &sinkRecorder{}
	if err := s.Start(rec.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	in := []int16{10, -20, 30}
	host.Endpoints[0].EmitCapture(in, device.Status{})

	chunks := rec.all()
	if len(chunks) != 1 {
		t.Fatalf("got %d sink calls, want 1", len(chunks))
	}
	got := audio.BytesToSamples(chunks[0])
	if !sampleEq(got, in) {
		t.Errorf("sink received %v, want %v", got, in)
	}
}

func TestCapture_MutedSubstitutesSilence(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	rec := &sinkRecorder{}
	if err := s.Start(rec.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.SetMuted(true)
	host.Endpoints[0].EmitCapture([]int16{100, 200, 300}, device.Status{})

	chunks := rec.all()
	if len(chunks) != 1 {
		t.Fatalf("muted capture must still feed the sink, got %d calls", len(chunks))
	}
	// Same byte length as a live frame, every byte zero.
	if len(chunks[0]) != 3*audio.BytesPerSample {
		t.Fatalf("silence frame is %d bytes, want %d", len(chunks[0]), 3*audio.BytesPerSample)
	}
	for i, b := range chunks[0] {
		if b != 0 {
			t.Fatalf("byte %d of muted frame is %d, want 0", i, b)
		}
	}

	// Unmuting restores live audio on the very next frame.
	s.SetMuted(false)
	host.Endpoints[0].EmitCapture([]int16{7}, device.Status{})
	chunks = rec.all()
	if got := audio.BytesToSamples(chunks[1]); !sampleEq(got, []int16{7}) {
		t.Errorf("after unmute sink received %v, want [7]", got)
	}
}

func TestOutput_FIFOAndUpmix_Push(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	s.Output(audio.SamplesToBytes([]int16{1, 2}))
	s.Output(audio.SamplesToBytes([]int16{3, 4}))

	// Two mono chunks upmixed to stereo, written in FIFO order.
	want := []int16{1, 1, 2, 2, 3, 3, 4, 4}
	waitFor(t, func() bool { return sampleEq(out.WrittenSamples(), want) })
}

func TestOutput_PartialFlushZeroPads_Push(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	// One mono sample upmixes to 2 of the 4 samples a frame needs; the
	// writer flushes it zero-padded once no more audio arrives.
	s.Output(audio.SamplesToBytes([]int16{9}))

	want := []int16{9, 9, 0, 0}
	waitFor(t, func() bool { return sampleEq(out.WrittenSamples(), want) })
}

// TestOutput_StereoPassThrough pins the identity case: when the remote
// service already delivers audio at the output channel count, no sample may
// be duplicated.
func TestOutput_StereoPassThrough(t *testing.T) {
	host := &mock.Host{}
	cfg := testConfig(host, engine.StrategyPull)
	cfg.Channels = 2
	cfg.OutputChannels = 2
	s, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	in := []int16{10, -20, 30, -40}
	s.Output(audio.SamplesToBytes(in))

	got := out.Pull(4, device.Status{})
	if !sampleEq(got, in) {
		t.Errorf("stereo chunk came out as %v, want it unchanged %v", got, in)
	}
}

// TestOutput_WriteErrorDoesNotStopWriter checks that a failing device write
// is contained per call: the frame is dropped, but the writer keeps draining
// and later chunks still reach the device.
func TestOutput_WriteErrorDoesNotStopWriter(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	out.SetWriteError(errors.New("stream stopped"))
	s.Output(audio.SamplesToBytes([]int16{1, 2}))

	waitFor(t, func() bool { return out.WriteCalls() >= 1 })
	if got := out.WrittenSamples(); len(got) != 0 {
		t.Fatalf("failed write must not record samples, got %v", got)
	}

	out.SetWriteError(nil)
	s.Output(audio.SamplesToBytes([]int16{3, 4}))

	// Only the post-recovery chunk plays; the failed frame is gone.
	want := []int16{3, 3, 4, 4}
	waitFor(t, func() bool { return sampleEq(out.WrittenSamples(), want) })
}

func TestInterrupt_DiscardsQueuedAudio_Push(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]

	// One mono sample fills half a frame, so the writer holds it back waiting
	// for more audio; the interrupt must discard it before the partial flush.
	s.Output(audio.SamplesToBytes([]int16{9}))
	s.Interrupt()

	// Long enough for a flush cycle to have happened if anything survived.
	time.Sleep(350 * time.Millisecond)
	if got := out.WrittenSamples(); len(got) != 0 {
		t.Fatalf("pre-interrupt audio reached the device: %v", got)
	}

	s.Output(audio.SamplesToBytes([]int16{5, 6}))
	want := []int16{5, 5, 6, 6}
	waitFor(t, func() bool { return sampleEq(out.WrittenSamples(), want) })
}

func TestOutput_DroppedWhileMuted(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	s.SetMuted(true)
	s.Output(audio.SamplesToBytes([]int16{111, 111}))
	s.SetMuted(false)
	s.Output(audio.SamplesToBytes([]int16{5, 6}))

	// Only the post-unmute chunk may reach the device.
	want := []int16{5, 5, 6, 6}
	waitFor(t, func() bool { return sampleEq(out.WrittenSamples(), want) })
}

func TestPull_AccumulatesAcrossChunkBoundaries(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPull))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	if !host.OpenCalls[1].Pull {
		t.Fatal("pull strategy must request a pull stream")
	}

	s.Output(audio.SamplesToBytes([]int16{1, 2})) // upmixed: 1 1 2 2
	s.Output(audio.SamplesToBytes([]int16{3}))    // upmixed: 3 3

	got := out.Pull(6, device.Status{})
	if want := []int16{1, 1, 2, 2, 3, 3}; !sampleEq(got, want) {
		t.Errorf("pull returned %v, want %v", got, want)
	}

	// Queue is now empty: the callback zero-fills.
	got = out.Pull(4, device.Status{})
	if want := []int16{0, 0, 0, 0}; !sampleEq(got, want) {
		t.Errorf("pull on empty queue returned %v, want silence", got)
	}
}

func TestPull_PartialFillZeroPadsRemainder(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPull))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	s.Output(audio.SamplesToBytes([]int16{5})) // upmixed: 5 5

	got := out.Pull(4, device.Status{})
	if want := []int16{5, 5, 0, 0}; !sampleEq(got, want) {
		t.Errorf("pull returned %v, want %v", got, want)
	}
}

// TestInterrupt_DiscardsQueuedAudio walks a mid-sentence barge-in at typical
// session parameters: 512 mono samples are upmixed and fully drained, audio
// queued before the interrupt vanishes, and fresh audio flows right after.
func TestInterrupt_DiscardsQueuedAudio(t *testing.T) {
	host := &mock.Host{}
	cfg := testConfig(host, engine.StrategyPull)
	cfg.FrameSize = 1024
	s, _ := engine.New(cfg)
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]

	chunk := make([]int16, 512)
	for i := range chunk {
		chunk[i] = 1000
	}
	s.Output(audio.SamplesToBytes(chunk))

	// 512 mono samples duplicate into exactly 1024 stereo samples.
	got := out.Pull(1024, device.Status{})
	for i, v := range got {
		if v != 1000 {
			t.Fatalf("sample %d before interrupt: got %d, want 1000", i, v)
		}
	}

	// Queue another chunk, then discard it before it is pulled.
	s.Output(audio.SamplesToBytes(chunk))
	s.Interrupt()

	next := make([]int16, 256)
	for i := range next {
		next[i] = -500
	}
	s.Output(audio.SamplesToBytes(next))

	// Only the post-interrupt audio plays: 512 samples of -500, zero-padded
	// to the requested length, with no trace of the 1000-valued chunk.
	got = out.Pull(1024, device.Status{})
	for i, v := range got {
		want := int16(-500)
		if i >= 512 {
			want = 0
		}
		if v != want {
			t.Fatalf("sample %d after interrupt: got %d, want %d", i, v, want)
		}
	}
}

func TestInterrupt_WorksWhileMuted(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPull))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	out := host.Endpoints[1]
	s.Output(audio.SamplesToBytes([]int16{8, 8}))
	s.SetMuted(true)
	s.Interrupt()

	got := out.Pull(4, device.Status{})
	for i, v := range got {
		if v != 0 {
			t.Fatalf("sample %d: got %d, want 0 after muted interrupt", i, v)
		}
	}
}

func TestToggleMuted(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))

	if s.Muted() {
		t.Fatal("session must start unmuted")
	}
	if !s.ToggleMuted() {
		t.Error("first toggle should mute")
	}
	if s.ToggleMuted() {
		t.Error("second toggle should unmute")
	}
}

func TestMuteState_SurvivesStop(t *testing.T) {
	host := &mock.Host{}
	s, _ := engine.New(testConfig(host, engine.StrategyPush))
	if err := s.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.SetMuted(true)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !s.Muted() {
		t.Error("mute state must survive Stop")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	host := &mock.Host{}
	cfg := testConfig(host, engine.StrategyPush)
	cfg.SampleRate = 0
	cfg.OutputChannels = 0
	if _, err := engine.New(cfg); err == nil {
		t.Fatal("expected error for invalid config")
	}

	cfg = testConfig(host, "bogus")
	if _, err := engine.New(cfg); err == nil {
		t.Fatal("expected error for unknown strategy")
	}

	// Duplication is only defined from mono input.
	cfg = testConfig(host, engine.StrategyPush)
	cfg.Channels = 2
	cfg.OutputChannels = 4
	if _, err := engine.New(cfg); err == nil {
		t.Fatal("expected error for multi-channel upmix")
	}
}
