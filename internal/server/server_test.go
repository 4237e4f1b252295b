package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mlaggner/vcable/internal/server"
)

// sessionStub implements server.SessionControl.
type sessionStub struct {
	mu sync.Mutex

	RunningResult bool
	muted         bool

	CallCountInterrupt int
}

func (s *sessionStub) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *sessionStub) ToggleMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

func (s *sessionStub) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *sessionStub) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountInterrupt++
}

func (s *sessionStub) Running() bool { return s.RunningResult }

// monitorStub implements server.MonitorControl.
type monitorStub struct {
	StartError error
	StopError  error

	running bool
}

func (m *monitorStub) Start() error {
	if m.StartError != nil {
		return m.StartError
	}
	m.running = true
	return nil
}

func (m *monitorStub) Stop() error {
	if m.StopError != nil {
		return m.StopError
	}
	m.running = false
	return nil
}

func (m *monitorStub) Running() bool { return m.running }

func newTestServer(session *sessionStub, monitor *monitorStub) http.Handler {
	var monCtl server.MonitorControl
	if monitor != nil {
		monCtl = monitor
	}
	return server.New(":0", session, monCtl, nil).Handler()
}

func TestStatus(t *testing.T) {
	session := &sessionStub{RunningResult: true}
	mon := &monitorStub{running: true}
	h := newTestServer(session, mon)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var body struct {
		Running        bool `json:"running"`
		Muted          bool `json:"muted"`
		MonitorRunning bool `json:"monitor_running"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Running || body.Muted || !body.MonitorRunning {
		t.Errorf("unexpected status body: %+v", body)
	}
}

func TestMute_SetAndToggle(t *testing.T) {
	session := &sessionStub{RunningResult: true}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/mute", strings.NewReader(`{"muted": true}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("mute status %d, want 200", rec.Code)
	}
	if !session.Muted() {
		t.Error("session should be muted after POST /v1/mute")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/mute/toggle", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status %d, want 200", rec.Code)
	}
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Muted {
		t.Error("toggle after mute should report unmuted")
	}
}

func TestMute_RejectsInvalidBody(t *testing.T) {
	session := &sessionStub{}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/mute", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestInterrupt(t *testing.T) {
	session := &sessionStub{}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/interrupt", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	if session.CallCountInterrupt != 1 {
		t.Errorf("interrupt called %d times, want 1", session.CallCountInterrupt)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	session := &sessionStub{}
	mon := &monitorStub{}
	h := newTestServer(session, mon)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/monitor/start", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("start status %d, want 204", rec.Code)
	}
	if !mon.Running() {
		t.Error("monitor should be running after start")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/monitor/stop", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("stop status %d, want 204", rec.Code)
	}
	if mon.Running() {
		t.Error("monitor should be stopped after stop")
	}
}

func TestMonitor_StartFailure(t *testing.T) {
	session := &sessionStub{}
	mon := &monitorStub{StartError: errors.New("device busy")}
	h := newTestServer(session, mon)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/monitor/start", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
}

func TestMonitor_RoutesAbsentWithoutMonitor(t *testing.T) {
	session := &sessionStub{}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/monitor/start", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	session := &sessionStub{RunningResult: true}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestReadyz_FailsWhenSessionIdle(t *testing.T) {
	session := &sessionStub{RunningResult: false}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	session := &sessionStub{RunningResult: true}
	h := newTestServer(session, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}
