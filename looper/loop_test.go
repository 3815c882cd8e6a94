package looper

import (
	"testing"

	"go-looper/midi"
)

type sink struct {
	events []midi.Event
}

func (s *sink) emit(ev midi.Event) { s.events = append(s.events, ev) }

// take returns everything emitted since the last take.
func (s *sink) take() []midi.Event {
	evs := s.events
	s.events = nil
	return evs
}

func noteOn(note, vel uint8) midi.Event {
	return midi.Event{Status: 0x90, Data1: note, Data2: vel}
}

func noteOff(note uint8) midi.Event {
	return midi.Event{Status: 0x80, Data1: note, Data2: 0}
}

func wantEvents(t *testing.T, got, want []midi.Event) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d events %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRecordAndPlaySingleNote(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	wantEvents(t, s.take(), []midi.Event{noteOn(60, 100)}) // live pass-through

	l.Advance(100)
	l.AddEvent(noteOff(60)) // patches the duration, emits nothing
	wantEvents(t, s.take(), nil)

	l.Advance(500)
	l.Keep() // closes a 500ms loop and steps onto its head
	wantEvents(t, s.take(), []midi.Event{noteOn(60, 100)})

	l.Advance(600) // the synthesized off comes due 100ms after the on
	wantEvents(t, s.take(), []midi.Event{{Status: 0x90, Data1: 60, Data2: 0}})

	l.Advance(1000) // next cycle
	wantEvents(t, s.take(), []midi.Event{noteOn(60, 100)})

	l.Advance(1100)
	wantEvents(t, s.take(), []midi.Event{{Status: 0x90, Data1: 60, Data2: 0}})
}

func TestPendingOffEmitsBeforeNextOn(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	l.Advance(10)
	l.AddEvent(noteOff(60))
	l.Advance(20)
	l.Keep() // 20ms loop, plays the head and schedules its off
	s.take()

	// One advance spanning both the off (due at +10) and the next on (+20):
	// the off must come out first.
	l.Advance(40)
	wantEvents(t, s.take(), []midi.Event{
		{Status: 0x90, Data1: 60, Data2: 0},
		noteOn(60, 100),
	})
}

func TestOverdubErasesPriorLayerMaterial(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	// 100ms loop with one note on layer 0.
	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	l.Advance(10)
	l.AddEvent(noteOff(60))
	l.Advance(100)
	l.Keep()
	s.take()

	// Back onto layer 0; armed, so the old material still plays.
	l.LayerArm(0)
	l.Advance(110) // pending off drains
	l.Advance(150)
	wantEvents(t, s.take(), []midi.Event{{Status: 0x90, Data1: 60, Data2: 0}})

	// First overdub event at phase 50 unarms the layer.
	l.AddEvent(noteOn(62, 100))
	wantEvents(t, s.take(), []midi.Event{noteOn(62, 100)})

	// The cursor reaches the old layer-0 cell at phase 0 of the next cycle
	// and erases it silently.
	l.Advance(200)
	wantEvents(t, s.take(), nil)
	if got := l.Status().Layers[0].Cells; got != 1 {
		t.Fatalf("layer 0 cells after erase = %d, want 1", got)
	}

	// Commit the overdub so the new cell survives the cursor's return.
	l.Keep()
	s.take()

	l.Advance(250)
	wantEvents(t, s.take(), []midi.Event{noteOn(62, 100)})
}

func TestUncommittedOverdubEmptiesLoop(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	l.Advance(10)
	l.AddEvent(noteOff(60))
	l.Advance(100)
	l.Keep()

	l.LayerArm(0)
	l.Advance(150)
	l.AddEvent(noteOn(62, 100))
	l.Advance(200) // old cell erased
	s.take()

	// Without a keep, the cursor comes back around to the only remaining
	// cell, which is on the layer being overdubbed. The loop ends up empty
	// rather than corrupting the pool.
	l.Advance(250)
	st := l.Status()
	if st.Looping || st.Recording {
		t.Fatalf("loop should be empty, got %+v", st)
	}
	if st.CellsFree != 16 {
		t.Fatalf("cells free = %d, want 16", st.CellsFree)
	}
}

func TestPoolExhaustionPlaysLiveOnly(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 1)

	l.Advance(0)
	l.AddEvent(midi.Event{Status: 0xB0, Data1: 1, Data2: 64}) // takes the only cell
	l.Advance(50)
	l.Keep()
	s.take()

	// Pool is empty: the note still sounds but is not recorded.
	l.AddEvent(noteOn(64, 100))
	wantEvents(t, s.take(), []midi.Event{noteOn(64, 100)})

	st := l.Status()
	if st.CellsFree != 0 {
		t.Fatalf("cells free = %d, want 0", st.CellsFree)
	}
	if st.Layers[1].Cells != 0 {
		t.Fatalf("unrecorded event shows up in layer 1")
	}

	// The next cycle replays only the recorded CC.
	l.Advance(100)
	wantEvents(t, s.take(), []midi.Event{{Status: 0xB0, Data1: 1, Data2: 64}})
}

func TestIdleRecordingIsAbandoned(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Arm()
	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	s.take()

	l.Advance(AbsTime(maxEventInterval) + 1)

	st := l.Status()
	if !st.Armed {
		t.Fatalf("expected engine re-armed after idle timeout")
	}
	if st.Recording || st.Looping {
		t.Fatalf("expected empty loop, got %+v", st)
	}
	if st.CellsFree != 16 {
		t.Fatalf("cells free = %d, want 16", st.CellsFree)
	}
}

func TestVolumeScalesLiveAndPlayback(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.LayerVolume(0, 50)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	wantEvents(t, s.take(), []midi.Event{noteOn(60, 50)})

	l.Advance(10)
	l.AddEvent(noteOff(60))
	l.Advance(100)
	l.Keep()
	wantEvents(t, s.take(), []midi.Event{noteOn(60, 50)})
}

func TestLayerMuteSilencesPlayback(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	// Layer 0: note 60, duration 10, in a 100ms loop.
	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	l.Advance(10)
	l.AddEvent(noteOff(60))
	l.Advance(100)
	l.Keep()

	// Layer 1: note 62 at phase 50.
	l.Advance(110)
	l.Advance(150)
	l.AddEvent(noteOn(62, 100))
	l.Advance(160)
	l.AddEvent(noteOff(62))
	l.Keep()
	l.LayerMute(0, true)
	s.take()

	// Full cycle: the layer-0 note stays silent, the layer-1 note sounds.
	l.Advance(200)
	wantEvents(t, s.take(), nil) // cursor passed the muted note 60
	l.Advance(250)
	wantEvents(t, s.take(), []midi.Event{noteOn(62, 100)})
	l.Advance(260)
	wantEvents(t, s.take(), []midi.Event{{Status: 0x90, Data1: 62, Data2: 0}})
}

func TestDoubledNoteOnFinalizesEarlierEntry(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	first := l.recentCell

	l.Advance(30)
	l.AddEvent(noteOn(60, 90))
	if first.duration != 30 {
		t.Fatalf("first cell duration = %d, want 30", first.duration)
	}
	if l.awaitingOff[60].cell != l.recentCell {
		t.Fatalf("awaiting-off should track the newer cell")
	}

	l.Advance(50)
	l.AddEvent(noteOff(60))
	if l.recentCell.duration != 20 {
		t.Fatalf("second cell duration = %d, want 20", l.recentCell.duration)
	}
	if l.awaitingOff[60].cell != nil {
		t.Fatalf("awaiting-off entry not cleared by note-off")
	}
}

func TestNoteOffWithoutMatchIsIgnored(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 4)

	l.Advance(0)
	l.AddEvent(noteOff(60))
	wantEvents(t, s.take(), nil)

	st := l.Status()
	if st.CellsFree != 4 || st.Recording {
		t.Fatalf("stray note-off changed engine state: %+v", st)
	}
}

func TestNoteOffAfterKeepPatchesDuration(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	held := l.recentCell

	l.Advance(50)
	l.Keep() // note still held when the loop closes
	s.take()

	l.Advance(70)
	l.AddEvent(noteOff(60))
	if held.duration != 70 {
		t.Fatalf("held cell duration = %d, want 70", held.duration)
	}
}

func TestRingLengthConstantAcrossTicks(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.Advance(0)
	l.AddEvent(midi.Event{Status: 0xB0, Data1: 1, Data2: 10})
	l.Advance(40)
	l.AddEvent(midi.Event{Status: 0xB0, Data1: 1, Data2: 20})
	l.Advance(70)
	l.AddEvent(midi.Event{Status: 0xB0, Data1: 1, Data2: 30})
	l.Advance(100)
	l.Keep()

	for now := AbsTime(101); now <= 400; now += 7 {
		l.Advance(now)
		if got := l.Status().LoopLength; got != 100 {
			t.Fatalf("loop length at t=%d is %d, want 100", now, got)
		}
	}
}

func TestClearKeepsVolumesResetsMutes(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.LayerVolume(3, 55)
	l.LayerMute(2, true)

	l.Advance(0)
	l.AddEvent(noteOn(60, 100))
	l.Advance(50)
	l.Keep()

	l.Clear()

	st := l.Status()
	if !st.Armed || st.ActiveLayer != 0 || st.LayerArmed {
		t.Fatalf("clear did not reset state: %+v", st)
	}
	if st.CellsFree != 16 {
		t.Fatalf("cells free = %d, want 16", st.CellsFree)
	}
	if st.Layers[3].Volume != 55 {
		t.Fatalf("layer volume did not survive clear")
	}
	if st.Layers[2].Muted {
		t.Fatalf("layer mute survived clear")
	}
}

func TestClearDuringRecordingFreesWholeChain(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 8)

	l.Advance(0)
	for i := 0; i < 5; i++ {
		l.AddEvent(midi.Event{Status: 0xB0, Data1: 1, Data2: uint8(i)})
		l.Advance(AbsTime(i+1) * 10)
	}

	l.Clear()
	if got := l.Status().CellsFree; got != 8 {
		t.Fatalf("cells free after clear = %d, want 8", got)
	}
}

func TestOutOfRangeLayerOpsIgnored(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 4)

	l.LayerMute(42, true)
	l.LayerVolume(99, 5)
	l.LayerArm(200)

	st := l.Status()
	if st.ActiveLayer != 0 || st.LayerArmed {
		t.Fatalf("out-of-range layer op changed state: %+v", st)
	}
	for i, ls := range st.Layers {
		if ls.Muted || ls.Volume != 100 {
			t.Fatalf("layer %d modified: %+v", i, ls)
		}
	}
}

func TestRecordingUnmutesActiveLayer(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 16)

	l.LayerMute(0, true)
	l.Advance(0)
	l.AddEvent(noteOn(60, 100))

	if l.Status().Layers[0].Muted {
		t.Fatalf("recording into a muted layer should unmute it")
	}
}

func TestPoolAccountingStaysConsistent(t *testing.T) {
	s := &sink{}
	l := NewWithCapacity(s.emit, 8)

	check := func() {
		t.Helper()
		if l.pool.inUse < 0 || l.pool.inUse > 8 {
			t.Fatalf("pool inUse = %d", l.pool.inUse)
		}
		if l.pool.inUse+l.pool.available() != 8 {
			t.Fatalf("pool accounting broken: inUse=%d free=%d", l.pool.inUse, l.pool.available())
		}
	}

	now := AbsTime(0)
	l.Advance(now)
	for i := 0; i < 40; i++ {
		l.AddEvent(noteOn(uint8(60+i%4), 100))
		check()
		now += 5
		l.Advance(now)
		l.AddEvent(noteOff(uint8(60 + i%4)))
		check()
		if i%7 == 3 {
			l.Keep()
			check()
		}
		if i%13 == 11 {
			l.Clear()
			check()
		}
		now += 5
		l.Advance(now)
		check()
	}
}

func TestScaleVelocity(t *testing.T) {
	cases := []struct {
		vel, vol, want uint8
	}{
		{100, 100, 100},
		{64, 100, 64},
		{100, 50, 50},
		{127, 100, 127},
		{10, 0, 1},
		{1, 1, 1},
		{127, 127, 127},
		{100, 200, 127},
	}
	for _, c := range cases {
		if got := scaleVelocity(c.vel, c.vol); got != c.want {
			t.Errorf("scaleVelocity(%d, %d) = %d, want %d", c.vel, c.vol, got, c.want)
		}
	}
}
