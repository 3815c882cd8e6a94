package looper

import "go-looper/midi"

// EventFunc receives every event the loop emits, live pass-through and
// playback alike. It must not call back into the Loop.
type EventFunc func(midi.Event)

// awaiting tracks a held note: the loop-body cell that recorded its note-on
// and the walltime the note started, so the matching note-off can patch the
// cell's duration whenever it arrives.
type awaiting struct {
	cell  *cell
	start AbsTime
}

// Loop is the multi-layer recording/playback engine. Events added while
// armed start a fresh recording; Keep closes the recording into a circular
// loop that replays on every Advance, and further events overdub into the
// active layer.
//
// The engine is single-threaded: callers on multiple goroutines must
// serialize every operation. Manager does exactly that.
type Loop struct {
	out  EventFunc
	pool *cellPool

	walltime AbsTime

	armed       bool
	activeLayer uint8
	layerArmed  bool

	firstCell       *cell // head of the chain while recording the initial layer
	recentCell      *cell // playback/record cursor
	timeSinceRecent DeltaTime

	pendingOff  *cell
	awaitingOff [128]awaiting

	layerMutes   [MaxLayers]bool
	layerVolumes [MaxLayers]uint8
}

// New creates an armed, empty loop with the default pool capacity.
func New(out EventFunc) *Loop {
	return NewWithCapacity(out, DefaultPoolCapacity)
}

// NewWithCapacity creates an armed, empty loop with its own cell pool.
func NewWithCapacity(out EventFunc, capacity int) *Loop {
	l := &Loop{
		out:   out,
		pool:  newCellPool(capacity),
		armed: true,
	}
	for i := range l.layerVolumes {
		l.layerVolumes[i] = 100
	}
	return l
}

// scaleVelocity applies a 0..127 layer volume to a note-on velocity.
// 100 is unity. The floor of 1 keeps the result a note-on.
func scaleVelocity(vel, vol uint8) uint8 {
	v := uint32(vel) * uint32(vol) / 100
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// Advance moves the engine clock to now, emitting due pending note-offs and
// whatever part of the loop body the cursor passes over.
func (l *Loop) Advance(now AbsTime) {
	// The engine clock never moves backwards.
	if now < l.walltime {
		return
	}

	// The offs really belong interleaved with the cells played below. But
	// since dt has already elapsed, and is rarely more than a tick, spitting
	// them all out first is close enough.

	dt := DeltaTime(now - l.walltime)
	l.walltime = now

	var prev *cell
	for p := l.pendingOff; p != nil; {
		if dt < p.duration {
			p.duration -= dt
			prev = p
			p = p.next
		} else {
			l.out(p.event)

			n := p.next
			l.pool.release(p)

			if prev != nil {
				prev.next = n
			} else {
				l.pendingOff = n
			}
			p = n
		}
	}

	if l.recentCell == nil {
		return
	}

	if l.recentCell.next == nil {
		// Still recording the initial layer. Abandon the take if the
		// player walked away.
		if dt > maxEventInterval-l.timeSinceRecent {
			l.Clear()
			return
		}

		l.timeSinceRecent += dt
		return
	}

	for l.recentCell.nextTime <= l.timeSinceRecent+dt {
		// time to move to the next cell, and play it

		nextCell := l.recentCell.next
		layer := nextCell.layer

		if layer == l.activeLayer && !l.layerArmed {
			// Prior material on the layer currently being recorded into:
			// delete it. An armed layer is still waiting for its first
			// event, so its old material keeps playing.
			if nextCell == l.recentCell {
				// The cursor's own cell is the last one left. Dropping it
				// leaves the loop empty.
				if nextCell.event.IsNoteOn() {
					l.cancelAwaitingOff(nextCell)
				}
				l.pool.release(nextCell)
				l.firstCell = nil
				l.recentCell = nil
				l.timeSinceRecent = 0
				return
			}

			if nextCell.event.IsNoteOn() {
				l.cancelAwaitingOff(nextCell)
			}

			l.recentCell.next = nextCell.next
			l.recentCell.nextTime += nextCell.nextTime
			l.pool.release(nextCell)
			continue
		}

		dt -= l.recentCell.nextTime - l.timeSinceRecent
		l.timeSinceRecent = 0
		l.recentCell = nextCell

		if l.layerMutes[layer] {
			continue
		}

		if nextCell.event.IsNoteOn() && nextCell.duration > 0 {
			note := nextCell.event
			note.Data2 = scaleVelocity(note.Data2, l.layerVolumes[layer])
			l.out(note)

			if off := l.pool.alloc(); off != nil {
				off.event = note
				off.event.Data2 = 0 // velocity 0 makes it a note-off
				off.duration = nextCell.duration
				off.next = l.pendingOff
				l.pendingOff = off
			}
		} else {
			l.out(nextCell.event)
		}
	}

	l.timeSinceRecent += dt
}

// AddEvent feeds one incoming event to the engine. A note-off is neither
// played nor recorded; it only patches the duration of its note-on. Any
// other event is played through the sink immediately and, unless the pool
// is exhausted, recorded at the cursor.
func (l *Loop) AddEvent(ev midi.Event) {
	if ev.IsNoteOff() {
		// Note-offs are never stored. They patch the duration of the
		// matching recorded note-on.
		l.finishAwaitingOff(ev)
		return
	}

	if l.armed {
		l.Clear()
		l.armed = false
	}
	l.layerArmed = false
	l.layerMutes[l.activeLayer] = false

	if ev.IsNoteOn() {
		note := ev
		note.Data2 = scaleVelocity(note.Data2, l.layerVolumes[l.activeLayer])
		l.out(note)
	} else {
		l.out(ev)
	}

	newCell := l.pool.alloc()
	if newCell == nil {
		return // ran out of cells; the event played live but is not recorded
	}
	newCell.event = ev
	newCell.layer = l.activeLayer
	newCell.duration = 0

	if ev.IsNoteOn() {
		l.startAwaitingOff(newCell)
	}

	if l.recentCell != nil {
		if nextCell := l.recentCell.next; nextCell != nil {
			newCell.next = nextCell
			newCell.nextTime = l.recentCell.nextTime - l.timeSinceRecent
		}

		l.recentCell.next = newCell
		l.recentCell.nextTime = l.timeSinceRecent
	} else {
		l.firstCell = newCell
	}

	l.recentCell = newCell
	l.timeSinceRecent = 0
}

// Keep closes the initial recording into a circular loop, or commits the
// current overdub pass, and arms the next layer.
func (l *Loop) Keep() {
	if l.firstCell != nil {
		// Closing the loop. The closing gap is at least one tick; a
		// zero-length ring would spin the playback cursor forever.
		gap := l.timeSinceRecent
		if gap == 0 {
			gap = 1
		}
		l.recentCell.next = l.firstCell
		l.recentCell.nextTime = gap
		l.firstCell = nil
	}

	if l.activeLayer < MaxLayers-1 {
		l.activeLayer++
	}
	l.layerArmed = true

	// step onto the start of the loop
	l.Advance(l.walltime)
}

// Arm makes the next recorded event discard the current loop first.
func (l *Loop) Arm() {
	l.armed = true
}

// Clear frees the whole loop body and returns the engine to armed/empty.
// Layer volumes survive; mutes do not. Already-scheduled note-offs still
// emit so no note is left hanging.
func (l *Loop) Clear() {
	start := l.recentCell
	if l.firstCell != nil {
		// not yet closed; walk from the head so the whole chain is freed
		start = l.firstCell
	}
	for c := start; c != nil; {
		doomed := c
		c = c.next
		l.pool.release(doomed)
		if c == start {
			break
		}
	}

	l.clearAwaitingOff()

	l.firstCell = nil
	l.recentCell = nil
	l.timeSinceRecent = 0
	l.armed = true
	l.activeLayer = 0
	l.layerArmed = false
	for i := range l.layerMutes {
		l.layerMutes[i] = false
	}
}

// LayerMute silences playback of a layer. Recording into a muted layer
// unmutes it.
func (l *Loop) LayerMute(layer uint8, muted bool) {
	if layer < MaxLayers {
		l.layerMutes[layer] = muted
	}
}

// LayerVolume sets a layer's playback volume, 0..127. 100 is unity.
func (l *Loop) LayerVolume(layer, volume uint8) {
	if layer < MaxLayers {
		l.layerVolumes[layer] = volume
	}
}

// LayerArm selects the layer the next recorded event overdubs into.
func (l *Loop) LayerArm(layer uint8) {
	if layer >= MaxLayers {
		return
	}
	l.activeLayer = layer
	l.layerArmed = true
}

func (l *Loop) startAwaitingOff(c *cell) {
	l.finishAwaitingOff(c.event)
	ao := &l.awaitingOff[c.event.Data1&0x7f]
	ao.cell = c
	ao.start = l.walltime
}

func (l *Loop) finishAwaitingOff(ev midi.Event) {
	ao := &l.awaitingOff[ev.Data1&0x7f]
	if ao.cell != nil {
		ao.cell.duration = DeltaTime(l.walltime - ao.start)
		ao.cell = nil
	}
}

func (l *Loop) cancelAwaitingOff(c *cell) {
	ao := &l.awaitingOff[c.event.Data1&0x7f]
	if ao.cell == c {
		ao.cell = nil
	}
}

func (l *Loop) clearAwaitingOff() {
	for i := range l.awaitingOff {
		l.awaitingOff[i] = awaiting{}
	}
}
