package control

import (
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
)

// ccSustain is the sustain pedal controller; pressing it means keep.
const ccSustain = 64

// Commander is the slice of the loop engine the surface drives.
type Commander interface {
	HandleEvent(ev midi.Event)
	Keep()
	Arm()
	Clear()
	LayerMute(layer uint8, muted bool)
	LayerVolume(layer, volume uint8)
	LayerArm(layer uint8)
}

// Mapping describes which channels and controllers carry surface commands.
// Channels are 1-16. The defaults match a nanoKontrol sending on the control
// channel and a percussion pad sending on the command channel.
type Mapping struct {
	ControlChannel int `json:"controlChannel"` // CC command strip
	CommandChannel int `json:"commandChannel"` // pad notes

	VolumeCCs [looper.MaxLayers]uint8 `json:"volumeCCs"`
	MuteCCs   [looper.MaxLayers]uint8 `json:"muteCCs"`
	ArmCCs    [looper.MaxLayers]uint8 `json:"armCCs"`

	ArmCC   uint8 `json:"armCC"`
	ClearCC uint8 `json:"clearCC"`
	KeepCC  uint8 `json:"keepCC"`

	KeepNote uint8 `json:"keepNote"`
	ArmNote  uint8 `json:"armNote"`
}

// DefaultMapping returns the nanoKontrol default strip.
func DefaultMapping() Mapping {
	return Mapping{
		ControlChannel: 16,
		CommandChannel: 2,

		// CCs 7 and 10 are skipped: they are the channel volume and pan
		// controllers
		VolumeCCs: [looper.MaxLayers]uint8{2, 3, 4, 5, 6, 8, 9, 11, 12},
		MuteCCs:   [looper.MaxLayers]uint8{23, 24, 25, 26, 27, 28, 29, 30, 31},
		ArmCCs:    [looper.MaxLayers]uint8{33, 34, 35, 36, 37, 38, 39, 40, 41},

		ArmCC:   44,
		ClearCC: 46,
		KeepCC:  49,

		KeepNote: 48,
		ArmNote:  42,
	}
}

// Surface routes incoming MIDI to the loop: command gestures become engine
// operations, playable channel-voice events are recorded, everything else
// is dropped before it reaches the engine.
type Surface struct {
	loop    Commander
	mapping Mapping
}

// NewSurface creates a surface driving loop with the given mapping.
func NewSurface(loop Commander, mapping Mapping) *Surface {
	return &Surface{loop: loop, mapping: mapping}
}

// Handle processes one incoming event.
func (s *Surface) Handle(ev midi.Event) {
	ch := int(ev.Channel()) + 1

	if ch == s.mapping.ControlChannel {
		s.handleControl(ev)
		return
	}

	if ch == s.mapping.CommandChannel {
		if ev.IsNoteOn() {
			switch ev.Data1 {
			case s.mapping.KeepNote:
				debug.Log("ctrl", "keep pad")
				s.loop.Keep()
			case s.mapping.ArmNote:
				debug.Log("ctrl", "arm pad")
				s.loop.Arm()
			}
		}
		return
	}

	switch ev.Kind() {
	case midi.NoteOff, midi.NoteOn, midi.PolyAftertouch:

	case midi.ControlChange:
		if ev.Data1 == ccSustain {
			// treat the sustain pedal as the keep function
			if ev.Data2 > 0 {
				s.loop.Keep()
			}
			return
		}

	case midi.ProgramChange:
		return

	case midi.ChannelPressure, midi.PitchBend:

	default:
		// System messages never reach the engine
		return
	}

	s.loop.HandleEvent(ev)
}

func (s *Surface) handleControl(ev midi.Event) {
	if ev.Kind() != midi.ControlChange {
		return
	}
	cc, val := ev.Data1, ev.Data2

	for i, c := range s.mapping.VolumeCCs {
		if cc == c {
			s.loop.LayerVolume(uint8(i), val)
			return
		}
	}
	for i, c := range s.mapping.MuteCCs {
		if cc == c {
			s.loop.LayerMute(uint8(i), val != 0)
			return
		}
	}
	for i, c := range s.mapping.ArmCCs {
		if cc == c {
			if val != 0 {
				s.loop.LayerArm(uint8(i))
			}
			return
		}
	}

	switch cc {
	case s.mapping.ArmCC:
		if val != 0 {
			s.loop.Arm()
		}
	case s.mapping.ClearCC:
		if val != 0 {
			s.loop.Clear()
		}
	case s.mapping.KeepCC:
		if val != 0 {
			s.loop.Keep()
		}
	}
}
