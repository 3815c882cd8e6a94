package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-looper/config"
	"go-looper/control"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
	"go-looper/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Debug {
		debug.Enable()
	}

	// MIDI transport (handles hot-plug)
	deviceMgr := midi.NewDeviceManager(cfg.InputPort, cfg.OutputPort)

	// Loop engine; everything it emits goes straight to the output port
	manager := looper.NewManager(deviceMgr.Send, cfg.PoolCapacity)
	manager.SetTickInterval(time.Duration(cfg.TickMillis) * time.Millisecond)

	// Control surface mapping
	surface := control.NewSurface(manager, cfg.Mapping)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go deviceMgr.Run(ctx)
	go manager.Run(ctx)
	go func() {
		for ev := range deviceMgr.Events() {
			surface.Handle(ev)
		}
	}()

	pal := theme.Default()
	if cfg.Palette != "" {
		if p, err := theme.LoadGPL(cfg.Palette); err == nil {
			pal = p
		}
	}
	th := theme.New(pal)

	fmt.Println("go-looper")
	fmt.Println("Connect MIDI devices any time - they'll be detected automatically")
	fmt.Println("")

	m := tui.NewModel(manager, deviceMgr, th)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
