package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "watch":
		name := ""
		if len(os.Args) > 2 {
			name = os.Args[2]
		}
		watchPort(name)
	case "note":
		name := ""
		if len(os.Args) > 2 {
			name = os.Args[2]
		}
		sendNote(name)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI monitor")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI ports")
	fmt.Println("  watch [name]  - Print events from an input port")
	fmt.Println("  note [name]   - Send a test note to an output port")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ins := midi.GetInPorts()
		outs := midi.GetOutPorts()
		ch <- result{ins: ins, outs: outs}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI backend is hung.")
	}
}

func findIn(name string) drivers.In {
	for _, p := range midi.GetInPorts() {
		if name == "" || strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			return p
		}
	}
	return nil
}

func findOut(name string) drivers.Out {
	for _, p := range midi.GetOutPorts() {
		if name == "" || strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			return p
		}
	}
	return nil
}

func watchPort(name string) {
	inPort := findIn(name)
	if inPort == nil {
		fmt.Println("No matching input port")
		return
	}

	fmt.Printf("Watching %s (Ctrl+C to exit)\n", inPort.String())

	stop, err := midi.ListenTo(inPort, func(msg midi.Message, timestampms int32) {
		fmt.Printf("[%8dms] % X  %s\n", timestampms, []byte(msg), msg.String())
	})
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	fmt.Println("\nDone")
}

func sendNote(name string) {
	outPort := findOut(name)
	if outPort == nil {
		fmt.Println("No matching output port")
		return
	}

	fmt.Printf("Using output: %s\n", outPort.String())

	send, err := midi.SendTo(outPort)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}

	fmt.Println("Sending middle C...")
	send(midi.NoteOn(0, 60, 100))
	time.Sleep(500 * time.Millisecond)
	send(midi.NoteOff(0, 60))

	fmt.Println("Done!")
}
