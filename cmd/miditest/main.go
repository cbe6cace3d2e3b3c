package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midiseq/backend/softseq"
	"go-midiseq/debug"
	"go-midiseq/midi"
	"go-midiseq/sequencer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	if os.Getenv("MIDISEQ_DEBUG") != "" {
		debug.EnableWriter(os.Stderr)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "patch":
		err = patch(os.Args[2:])
	case "beat":
		err = beat(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                                  - List all MIDI ports")
	fmt.Println("  patch <port> <channel> <bank> <prog>  - Send bank select and program change")
	fmt.Println("  beat <port>                           - Play two bars through the engine")
}

func listPorts() error {
	fmt.Println("(waiting up to 3 seconds...)")
	ports, err := midi.ListPorts()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range ports.InNames() {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range ports.OutNames() {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

// openEngine wires an engine with one output bus to port
func openEngine(port string) (*sequencer.Engine, *sequencer.Bus, func(), error) {
	router := midi.NewRouter(port)
	deliver := func(_ string, msg gomidi.Message) error {
		return router.Send("", msg)
	}

	session := sequencer.NewSession("miditest", 48000, 480, 120)
	engine := sequencer.NewEngine(session, softseq.Opener(softseq.Options{Deliver: deliver}))
	bus := sequencer.NewBus("out", sequencer.BusOutput)
	engine.AddBus(bus)
	if err := engine.Open("miditest"); err != nil {
		router.Close()
		return nil, nil, nil, err
	}
	return engine, bus, func() {
		engine.Close()
		router.Close()
	}, nil
}

func patch(args []string) error {
	if len(args) < 4 {
		usage()
		return nil
	}
	var nums [3]int
	for i, s := range args[1:4] {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad number %q", s)
		}
		nums[i] = n
	}

	_, bus, closeAll, err := openEngine(args[0])
	if err != nil {
		return err
	}
	defer closeAll()

	channel := uint8(nums[0]-1) & 0x0f
	if err := bus.SetPatch(channel, "miditest", nums[1], nums[2], sequencer.BankSelectNormal); err != nil {
		return err
	}
	fmt.Printf("Sent bank %d program %d on channel %d\n", nums[1], nums[2], channel+1)
	return nil
}

func beat(args []string) error {
	if len(args) < 1 {
		usage()
		return nil
	}
	engine, bus, closeAll, err := openEngine(args[0])
	if err != nil {
		return err
	}
	defer closeAll()

	session := engine.Session()
	seq := midi.NewSequence("beat", 9, 480)
	for step := uint64(0); step < 32; step++ {
		note := uint8(42)
		if step%4 == 0 {
			note = 36
		}
		seq.Add(step*120, midi.NoteOn{Note: note, Velocity: 100, Duration: 60})
	}
	track := sequencer.NewMidiTrack(engine, "beat", bus, 9)
	clip := track.AddClip(seq, 0, 0)
	session.AddTrack(track)

	driver := sequencer.NewClockDriver(session, engine, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go driver.Run(ctx)

	transport := sequencer.NewTransport(session, engine)
	if err := transport.Play(); err != nil {
		return err
	}
	fmt.Println("Playing two bars...")
	for session.Frame() < clip.End() {
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	return transport.Stop()
}
