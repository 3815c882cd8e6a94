package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
)

type Model struct {
	Manager   *looper.Manager
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme
	quitting  bool
}

type UpdateMsg struct{}

type PortEventMsg midi.PortEvent

type frameMsg time.Time

// frame rate for the status refresh; playback changes state without
// notifications
const statusFPS = 10

func NewModel(manager *looper.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
	}
}

func ListenForUpdates(manager *looper.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForPorts(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event := <-deviceMgr.PortEvents()
		return PortEventMsg(event)
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(time.Second/statusFPS, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Manager),
		ListenForPorts(m.DeviceMgr),
		nextFrame(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "k", " ":
			m.Manager.Keep()

		case "a":
			m.Manager.Arm()

		case "c":
			m.Manager.Clear()

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			layer := uint8(msg.String()[0] - '1')
			m.Manager.LayerArm(layer)

		case "m":
			s := m.Manager.Status()
			layer := uint8(s.ActiveLayer)
			m.Manager.LayerMute(layer, !s.Layers[layer].Muted)

		case "+", "=":
			m.bumpVolume(5)

		case "-", "_":
			m.bumpVolume(-5)
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case PortEventMsg:
		return m, ListenForPorts(m.DeviceMgr)

	case frameMsg:
		return m, nextFrame()
	}

	return m, nil
}

func (m Model) bumpVolume(delta int) {
	s := m.Manager.Status()
	layer := uint8(s.ActiveLayer)
	v := int(s.Layers[layer].Volume) + delta
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	m.Manager.LayerVolume(layer, uint8(v))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Manager.Status()
	inPort, outPort := m.DeviceMgr.Connected()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	activeStyle := lipgloss.NewStyle().Foreground(m.Theme.Active())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	state := "EMPTY"
	switch {
	case s.Recording:
		state = "REC"
	case s.Looping:
		state = "LOOP"
	}
	if s.Armed {
		state += " ARMED"
	}

	header := headerStyle.Render(fmt.Sprintf("go-looper  %-10s layer:%d  loop:%dms  cells free:%d",
		state, s.ActiveLayer+1, s.LoopLength, s.CellsFree))

	var layers strings.Builder
	for i, ls := range s.Layers {
		marker := m.Theme.Symbols.LayerIdle
		style := dimStyle
		if i == s.ActiveLayer {
			if s.LayerArmed {
				marker = m.Theme.Symbols.LayerArmed
			} else {
				marker = m.Theme.Symbols.LayerActive
			}
			style = activeStyle
		}

		mute := " "
		if ls.Muted {
			mute = string(m.Theme.Symbols.Muted)
		}

		line := fmt.Sprintf("%c %d  vol:%3d  %s  cells:%d", marker, i+1, ls.Volume, mute, ls.Cells)
		if ls.Muted {
			layers.WriteString(warnStyle.Render(line))
		} else {
			layers.WriteString(style.Render(line))
		}
		layers.WriteString("\n")
	}

	ports := dimStyle.Render(fmt.Sprintf("in:%s  out:%s", portLabel(inPort), portLabel(outPort)))

	help := dimStyle.Render("k/space:keep  a:arm  c:clear  1-9:layer  m:mute  +/-:volume  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(layers.String())
	out.WriteString("\n")
	out.WriteString(ports)
	out.WriteString("\n\n")
	out.WriteString(help)

	return out.String()
}

func portLabel(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}
