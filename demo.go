package main

import (
	"fmt"
	"os"

	"go-midiseq/config"
	"go-midiseq/curve"
	"go-midiseq/debug"
	"go-midiseq/document"
	"go-midiseq/midi"
	"go-midiseq/sequencer"
)

// loadTracks fills the session from a MIDI file given on the command
// line, else from the project's latest save, else with a demo groove.
// Tracks of an imported file are returned so their patches can be sent
// once the engine is open.
func loadTracks(args []string, projects *document.Projects, project string, session *sequencer.Session, engine *sequencer.Engine) ([]*sequencer.MidiTrack, error) {
	if len(args) > 0 {
		return importSMF(args[0], session, engine)
	}

	if projects != nil {
		var el sequencer.SessionElement
		doc, err := projects.Load(project, "", &el)
		if err == nil {
			debug.Log("main", "loading %s", doc.Path)
			return nil, sequencer.LoadSession(doc, el, session, engine)
		}
		debug.Log("main", "no save for %s: %v", project, err)
	}

	demo(session, engine)
	return nil, nil
}

// importSMF places every non-empty track of path at frame zero
func importSMF(path string, session *sequencer.Session, engine *sequencer.Engine) ([]*sequencer.MidiTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sm, err := midi.ReadSMF(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	bus := firstBus(engine)
	var imported []*sequencer.MidiTrack
	for i := range sm.Tracks {
		seq := midi.NewSequence("", 0, session.TicksPerBeat())
		if err := midi.LoadTrack(sm, i, seq); err != nil {
			return nil, err
		}
		if seq.Len() == 0 {
			continue
		}
		if seq.Name == "" {
			seq.Name = fmt.Sprintf("track %d", i+1)
		}
		tr := sequencer.NewMidiTrack(engine, seq.Name, bus, seq.Channel)
		tr.AddClip(seq, 0, 0)
		session.AddTrack(tr)
		imported = append(imported, tr)
	}
	session.SetName(path)
	return imported, nil
}

// importSettings maps the config's import section
func importSettings(cfg config.ImportConfig) sequencer.ImportSettings {
	return sequencer.ImportSettings{
		Instrument:     cfg.Instrument,
		InstrumentBank: cfg.InstrumentBank,
		DrumInstrument: cfg.DrumInstrument,
		DrumBank:       cfg.DrumBank,
		Naming:         sequencer.ParseTrackNaming(cfg.TrackName),
	}
}

func firstBus(engine *sequencer.Engine) *sequencer.Bus {
	for _, b := range engine.Buses() {
		if b.Mode() == sequencer.BusOutput || b.Mode() == sequencer.BusDuplex {
			return b
		}
	}
	return nil
}

// demo builds four bars of bass, drums and a filter sweep
func demo(session *sequencer.Session, engine *sequencer.Engine) {
	tpb := uint64(session.TicksPerBeat())
	bus := firstBus(engine)
	bar := 4 * tpb

	bass := midi.NewSequence("bass", 1, uint16(tpb))
	for b, root := range []uint8{36, 36, 41, 43} {
		for beat := uint64(0); beat < 4; beat++ {
			bass.Add(uint64(b)*bar+beat*tpb, midi.NoteOn{Note: root, Velocity: 96, Duration: uint32(tpb / 2)})
			bass.Add(uint64(b)*bar+beat*tpb+tpb/2, midi.NoteOn{Note: root + 12, Velocity: 72, Duration: uint32(tpb / 4)})
		}
	}
	bassTrack := sequencer.NewMidiTrack(engine, "bass", bus, 1)
	bassTrack.AddClip(bass, 0, 0)

	sweep := curve.New(curve.Subject{Type: midi.KindController, Channel: 1, Param: 74}, curve.Linear)
	sweep.Process = true
	sweep.AddNode(0, 20)
	sweep.AddNode(2*bar, 110)
	sweep.AddNode(4*bar, 20)
	bassTrack.Curves().AddCurve(sweep)
	session.AddTrack(bassTrack)

	drums := midi.NewSequence("drums", 9, uint16(tpb))
	for step := uint64(0); step < 4*16; step++ {
		tick := step * tpb / 4
		if step%4 == 0 {
			drums.Add(tick, midi.NoteOn{Note: 36, Velocity: 110, Duration: uint32(tpb / 8)})
		}
		if step%8 == 4 {
			drums.Add(tick, midi.NoteOn{Note: 38, Velocity: 100, Duration: uint32(tpb / 8)})
		}
		drums.Add(tick, midi.NoteOn{Note: 42, Velocity: uint8(60 + 20*(step%2)), Duration: uint32(tpb / 16)})
	}
	drumTrack := sequencer.NewMidiTrack(engine, "drums", bus, 9)
	drumTrack.AddClip(drums, 0, 0)
	session.AddTrack(drumTrack)

	session.SetName("demo")
}
