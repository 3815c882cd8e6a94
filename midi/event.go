package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI channel-voice status nibbles
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyAftertouch  uint8 = 0xA0
	ControlChange   uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
	System          uint8 = 0xF0
)

// Event is one channel-voice message as the looper sees it: a raw
// status byte plus two data bytes.
type Event struct {
	Status uint8
	Data1  uint8
	Data2  uint8
}

// Kind returns the status nibble (NoteOn, ControlChange, ...).
func (e Event) Kind() uint8 { return e.Status & 0xf0 }

// Channel returns the zero-based MIDI channel.
func (e Event) Channel() uint8 { return e.Status & 0x0f }

// IsNoteOn reports a sounding note-on. A note-on with velocity 0 is a
// note-off in disguise and reports false here.
func (e Event) IsNoteOn() bool { return e.Kind() == NoteOn && e.Data2 > 0 }

// IsNoteOff reports a note-off, including the velocity-0 note-on form.
func (e Event) IsNoteOff() bool {
	return e.Kind() == NoteOff || (e.Kind() == NoteOn && e.Data2 == 0)
}

// Message renders the event as a raw wire message. Program change and
// channel pressure are two-byte messages.
func (e Event) Message() gomidi.Message {
	switch e.Kind() {
	case ProgramChange, ChannelPressure:
		return gomidi.Message{e.Status, e.Data1}
	default:
		return gomidi.Message{e.Status, e.Data1, e.Data2}
	}
}

// FromMessage converts a raw wire message to an Event. ok is false for
// messages the looper has no use for (System, SysEx, empty).
func FromMessage(msg gomidi.Message) (Event, bool) {
	if len(msg) == 0 || msg[0] >= System {
		return Event{}, false
	}
	ev := Event{Status: msg[0]}
	if len(msg) > 1 {
		ev.Data1 = msg[1]
	}
	if len(msg) > 2 {
		ev.Data2 = msg[2]
	}
	return ev, true
}
