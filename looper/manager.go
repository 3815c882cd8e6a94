package looper

import (
	"context"
	"sync"
	"time"

	"go-looper/debug"
	"go-looper/midi"
)

// Manager owns a Loop, serializes every operation behind one mutex, and
// drives the engine clock from its own goroutine. The Loop itself offers no
// internal synchronization.
type Manager struct {
	mu   sync.Mutex
	loop *Loop

	epoch     time.Time
	tickEvery time.Duration

	// Notify the display surface of state changes
	UpdateChan chan struct{}
}

// NewManager wraps a new Loop emitting to out.
func NewManager(out EventFunc, capacity int) *Manager {
	return &Manager{
		loop:       NewWithCapacity(out, capacity),
		epoch:      time.Now(),
		tickEvery:  time.Millisecond,
		UpdateChan: make(chan struct{}, 1),
	}
}

// SetTickInterval overrides the default 1ms tick. Call before Run.
func (m *Manager) SetTickInterval(d time.Duration) {
	if d > 0 {
		m.tickEvery = d
	}
}

// Run drives the engine clock (blocking - run in a goroutine).
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.loop.Advance(m.now())
			m.mu.Unlock()
		}
	}
}

// now reads the engine clock. Callers hold m.mu, so walltime can never run
// backwards between two Advance calls.
func (m *Manager) now() AbsTime {
	return AbsTime(time.Since(m.epoch) / time.Millisecond)
}

// HandleEvent feeds one incoming channel-voice event to the engine. The
// clock is advanced first so note durations are measured from fresh
// walltime.
func (m *Manager) HandleEvent(ev midi.Event) {
	m.mu.Lock()
	m.loop.Advance(m.now())
	m.loop.AddEvent(ev)
	m.mu.Unlock()
	m.notify()
}

// Keep closes or commits the current recording.
func (m *Manager) Keep() {
	m.mu.Lock()
	m.loop.Advance(m.now())
	m.loop.Keep()
	m.mu.Unlock()
	debug.Log("loop", "keep")
	m.notify()
}

// Arm discards the loop at the next recorded event.
func (m *Manager) Arm() {
	m.mu.Lock()
	m.loop.Arm()
	m.mu.Unlock()
	debug.Log("loop", "arm")
	m.notify()
}

// Clear empties the loop immediately.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.loop.Clear()
	m.mu.Unlock()
	debug.Log("loop", "clear")
	m.notify()
}

// LayerMute silences a layer's playback.
func (m *Manager) LayerMute(layer uint8, muted bool) {
	m.mu.Lock()
	m.loop.LayerMute(layer, muted)
	m.mu.Unlock()
	debug.Log("loop", "mute layer=%d muted=%v", layer, muted)
	m.notify()
}

// LayerVolume sets a layer's playback volume.
func (m *Manager) LayerVolume(layer, volume uint8) {
	m.mu.Lock()
	m.loop.LayerVolume(layer, volume)
	m.mu.Unlock()
	m.notify()
}

// LayerArm selects the layer the next recorded event overdubs into.
func (m *Manager) LayerArm(layer uint8) {
	m.mu.Lock()
	m.loop.LayerArm(layer)
	m.mu.Unlock()
	debug.Log("loop", "arm layer=%d", layer)
	m.notify()
}

// Status snapshots the engine for the display surface.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loop.Status()
}

func (m *Manager) notify() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
