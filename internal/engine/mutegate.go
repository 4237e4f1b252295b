package engine

import "sync"

// MuteGate is the guarded mute flag shared by the capture and playback paths.
// While muted, the capture path substitutes silence (keeping the remote link
// alive) and Output drops incoming chunks so no stale audio accumulates.
//
// The gate itself has no I/O side effects; callers consult it. All methods
// are safe for concurrent use and hold the lock only for the instant of the
// read or write — in particular they are safe to call from device callbacks.
type MuteGate struct {
	mu    sync.Mutex
	muted bool
}

// Muted reports the current mute state.
func (g *MuteGate) Muted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muted
}

// Set sets the mute state explicitly.
func (g *MuteGate) Set(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = muted
}

// Toggle atomically flips the mute state and returns the new value.
func (g *MuteGate) Toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = !g.muted
	return g.muted
}
