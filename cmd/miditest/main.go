package main

import (
	"fmt"
	"os"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"notanalyzr/score"
	"notanalyzr/voice"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "note":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		testNotes(port)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list         - List all MIDI ports")
	fmt.Println("  note [port]  - Play a C major arpeggio on an output port")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- midi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		if len(outs) == 0 {
			fmt.Println("  (none)")
		}
		for i, p := range outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI driver did not answer.")
	}
}

func testNotes(port string) {
	send, closer, err := voice.OpenPort(port)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	v := voice.NewPortVoice(send, closer, 0, 0)
	defer v.Dispose()

	start := time.Now()
	for i, name := range []string{"C4", "E4", "G4", "C5"} {
		p, err := score.ParsePitch(name)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("  %s\n", name)
		v.TriggerAttackRelease(p, 400*time.Millisecond, start.Add(time.Duration(i)*500*time.Millisecond), 0.8)
	}

	time.Sleep(2200 * time.Millisecond)
	fmt.Println("Done!")
}
