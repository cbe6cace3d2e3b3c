package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midiseq/backend/softseq"
	"go-midiseq/config"
	"go-midiseq/debug"
	"go-midiseq/document"
	"go-midiseq/midi"
	"go-midiseq/sequencer"
	"go-midiseq/theme"
	"go-midiseq/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if cfg.Debug || os.Getenv("MIDISEQ_DEBUG") != "" {
		if err := debug.Enable(); err != nil {
			fmt.Printf("debug log: %v\n", err)
		}
	}
	defer debug.Disable()

	fmt.Println("go-midiseq")
	fmt.Println("Scanning MIDI ports...")

	defaultPort := ""
	if ports, err := midi.ListPorts(); err != nil {
		fmt.Printf("%v - fix: sudo killall coreaudiod midiserver\n", err)
	} else if names := ports.OutNames(); len(names) > 0 {
		defaultPort = names[0]
		fmt.Printf("Default output: %s\n", defaultPort)
	}

	router := midi.NewRouter(defaultPort)
	defer router.Close()

	// buses deliver to the hardware port named in their config
	deliver := func(bus string, msg gomidi.Message) error {
		port := ""
		if bc := cfg.FindBus(bus); bc != nil {
			port = bc.PortName
		}
		return router.Send(port, msg)
	}

	session := sequencer.NewSession("untitled",
		uint32(cfg.Engine.SampleRate), uint16(cfg.Engine.TicksPerBeat), cfg.UI.LastTempo)
	engine := sequencer.NewEngine(session, softseq.Opener(softseq.Options{Deliver: deliver}))
	engine.SetReadAhead(uint64(cfg.Engine.ReadAhead))
	engine.SetStopTimeout(cfg.StopTimeoutDuration())
	for _, bc := range cfg.Buses {
		engine.AddBus(sequencer.NewBus(bc.Name, sequencer.ParseBusMode(bc.Mode)))
	}

	projects, err := document.DefaultProjects()
	if err != nil {
		fmt.Printf("projects: %v\n", err)
	}
	project := cfg.UI.LastProject
	if project == "" {
		project = "untitled"
	}

	imported, err := loadTracks(os.Args[1:], projects, project, session, engine)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := engine.Open(cfg.Engine.ClientName); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	// buses are open now, so imported patches reach the hardware
	if len(imported) > 0 {
		importer := sequencer.NewImporter(session, importSettings(cfg.Import))
		if _, err := importer.Finish(imported); err != nil {
			debug.Warn("main", err, "import patches")
		}
	}

	driver := sequencer.NewClockDriver(session, engine, cfg.DriverPeriodDuration())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go driver.Run(ctx)

	watcher := midi.NewPortWatcher(cfg.PortPollDuration())
	go watcher.Run(ctx)
	go watchPorts(watcher, router)

	m := tui.NewModel(session, engine, driver, projects, project, theme.New(theme.Default()))
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg.UI.LastTempo = session.Tempo()
	cfg.UI.LastProject = project
	if err := cfg.Save(); err != nil {
		debug.Warn("main", err, "save config")
	}
}

// watchPorts drops cached senders for unplugged ports and adopts the
// first port to appear when none was found at startup
func watchPorts(w *midi.PortWatcher, router *midi.Router) {
	for ev := range w.Events() {
		debug.Log("ports", "%s %s", ev.Type, ev.Name)
		switch ev.Type {
		case midi.PortRemoved:
			router.Forget(ev.Name)
		case midi.PortAdded:
			if router.DefaultPort() == "" {
				router.SetDefaultPort(ev.Name)
			}
		}
	}
}
