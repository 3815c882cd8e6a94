package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-looper/debug"
)

// PortEvent is emitted when the configured ports appear or disappear
type PortEvent struct {
	Type  PortEventType
	Name  string
	Input bool
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// DeviceManager handles hot-plug detection of the configured input
// (controllers) and output (synths) ports. Incoming channel-voice events
// are delivered on Events; Send writes to the connected output.
type DeviceManager struct {
	inWant  string // substring match, empty = first non-Through port
	outWant string

	mu      sync.RWMutex
	inName  string
	stopIn  func()
	outName string
	send    func(gomidi.Message) error

	events     chan Event
	portEvents chan PortEvent
	pollRate   time.Duration
}

// NewDeviceManager creates a device manager matching ports by name substring.
func NewDeviceManager(inPort, outPort string) *DeviceManager {
	return &DeviceManager{
		inWant:     strings.ToLower(inPort),
		outWant:    strings.ToLower(outPort),
		events:     make(chan Event, 64),
		portEvents: make(chan PortEvent, 8),
		pollRate:   time.Second,
	}
}

// Events returns the stream of incoming channel-voice events
func (dm *DeviceManager) Events() <-chan Event {
	return dm.events
}

// PortEvents returns a channel of port connect/disconnect events
func (dm *DeviceManager) PortEvents() <-chan PortEvent {
	return dm.portEvents
}

// Connected returns the names of the currently connected ports ("" = none)
func (dm *DeviceManager) Connected() (in, out string) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.inName, dm.outName
}

// Send writes one event to the connected output. Events are dropped while
// no output port is connected.
func (dm *DeviceManager) Send(ev Event) {
	dm.mu.RLock()
	send := dm.send
	dm.mu.RUnlock()

	if send == nil {
		return
	}
	if err := send(ev.Message()); err != nil {
		debug.Log("midi", "send: %v", err)
	}
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		inPorts := gomidi.GetInPorts()
		outPorts := gomidi.GetOutPorts()
		ch <- portsResult{inPorts: inPorts, outPorts: outPorts}
	}()

	var inPorts []drivers.In
	var outPorts []drivers.Out

	select {
	case result := <-ch:
		inPorts = result.inPorts
		outPorts = result.outPorts
	case <-time.After(3 * time.Second):
		// CoreMIDI is hung - skip this scan
		return
	}

	dm.scanInput(inPorts)
	dm.scanOutput(outPorts)
}

func (dm *DeviceManager) scanInput(ports []drivers.In) {
	var found drivers.In
	for i, p := range ports {
		if portMatches(p.String(), dm.inWant) {
			found = ports[i]
			break
		}
	}

	dm.mu.RLock()
	cur := dm.inName
	dm.mu.RUnlock()

	if found == nil {
		if cur != "" {
			dm.dropInput(cur)
		}
		return
	}
	if cur == found.String() {
		return
	}
	if cur != "" {
		dm.dropInput(cur)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, timestampms int32) {
		ev, ok := FromMessage(msg)
		if !ok {
			return
		}
		select {
		case dm.events <- ev:
		default:
			// Drop if the engine is behind
		}
	})
	if err != nil {
		debug.Log("midi", "open input %s: %v", found.String(), err)
		return
	}

	dm.mu.Lock()
	dm.inName = found.String()
	dm.stopIn = stop
	dm.mu.Unlock()

	dm.notifyPort(PortEvent{Type: PortConnected, Name: found.String(), Input: true})
}

func (dm *DeviceManager) dropInput(name string) {
	dm.mu.Lock()
	if dm.stopIn != nil {
		dm.stopIn()
		dm.stopIn = nil
	}
	dm.inName = ""
	dm.mu.Unlock()

	dm.notifyPort(PortEvent{Type: PortDisconnected, Name: name, Input: true})
}

func (dm *DeviceManager) scanOutput(ports []drivers.Out) {
	var found drivers.Out
	for i, p := range ports {
		if portMatches(p.String(), dm.outWant) {
			found = ports[i]
			break
		}
	}

	dm.mu.RLock()
	cur := dm.outName
	dm.mu.RUnlock()

	if found == nil {
		if cur != "" {
			dm.dropOutput(cur)
		}
		return
	}
	if cur == found.String() {
		return
	}
	if cur != "" {
		dm.dropOutput(cur)
	}

	send, err := gomidi.SendTo(found)
	if err != nil {
		debug.Log("midi", "open output %s: %v", found.String(), err)
		return
	}

	dm.mu.Lock()
	dm.outName = found.String()
	dm.send = send
	dm.mu.Unlock()

	dm.notifyPort(PortEvent{Type: PortConnected, Name: found.String(), Input: false})
}

func (dm *DeviceManager) dropOutput(name string) {
	dm.mu.Lock()
	dm.outName = ""
	dm.send = nil
	dm.mu.Unlock()

	dm.notifyPort(PortEvent{Type: PortDisconnected, Name: name, Input: false})
}

func (dm *DeviceManager) notifyPort(ev PortEvent) {
	select {
	case dm.portEvents <- ev:
	default:
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.stopIn != nil {
		dm.stopIn()
		dm.stopIn = nil
	}
	dm.inName = ""
	dm.outName = ""
	dm.send = nil
}

func portMatches(name, want string) bool {
	name = strings.ToLower(name)
	if want != "" {
		return strings.Contains(name, want)
	}
	// ALSA's Midi Through port is never what we want by default
	return !strings.Contains(name, "through")
}
