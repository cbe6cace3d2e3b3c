package sequencer

import (
	"fmt"
	"os"

	"go-midiseq/curve"
	"go-midiseq/debug"
	"go-midiseq/document"
	"go-midiseq/midi"
)

// PatchElement is one channel's instrument
type PatchElement struct {
	Channel    uint8  `yaml:"channel"`
	Instrument string `yaml:"instrument"`
}

// BusElement is a bus in a document
type BusElement struct {
	Name    string         `yaml:"name"`
	Mode    string         `yaml:"mode"`
	Patches []PatchElement `yaml:"midi-map,omitempty"`
}

// EngineElement lists the engine's buses
type EngineElement struct {
	Buses []BusElement `yaml:"midi-buses"`
}

// ClipElement places track Track of SMF File on a MIDI track
type ClipElement struct {
	File   string `yaml:"file"`
	Track  int    `yaml:"track"`
	Start  uint64 `yaml:"start"`
	Length uint64 `yaml:"length"`
}

// TrackElement is a MIDI track. Tag is informational; tags are handed
// out again on load.
type TrackElement struct {
	Name    string             `yaml:"name"`
	Bus     string             `yaml:"bus"`
	Channel uint8              `yaml:"channel"`
	Tag     uint8              `yaml:"tag"`
	Mute    string             `yaml:"mute"`
	Gain    string             `yaml:"gain"`
	Clips   []ClipElement      `yaml:"clips,omitempty"`
	Curves  *curve.FileElement `yaml:"curve-file,omitempty"`
}

// SessionElement is the root of a session document
type SessionElement struct {
	Name         string         `yaml:"name"`
	SampleRate   uint32         `yaml:"sample-rate"`
	TicksPerBeat uint16         `yaml:"ticks-per-beat"`
	Tempo        float64        `yaml:"tempo"`
	Engine       EngineElement  `yaml:"engine"`
	Tracks       []TrackElement `yaml:"tracks,omitempty"`
}

// SaveElement describes the bus
func (b *Bus) SaveElement() BusElement {
	el := BusElement{Name: b.name, Mode: b.mode.String()}
	for ch, inst := range b.Patches() {
		if inst != "" {
			el.Patches = append(el.Patches, PatchElement{Channel: uint8(ch), Instrument: inst})
		}
	}
	return el
}

// LoadElement restores the patch map. Nothing is sent.
func (b *Bus) LoadElement(el BusElement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patches = [16]string{}
	for _, p := range el.Patches {
		b.patches[p.Channel&0x0f] = p.Instrument
	}
}

// SaveElement describes the engine's buses
func (e *Engine) SaveElement() EngineElement {
	var el EngineElement
	for _, bus := range e.Buses() {
		el.Buses = append(el.Buses, bus.SaveElement())
	}
	return el
}

// LoadElement adds the buses in el, reusing buses that already exist by
// name. Buses are not opened.
func (e *Engine) LoadElement(el EngineElement) {
	for _, be := range el.Buses {
		bus := e.FindBus(be.Name)
		if bus == nil {
			bus = NewBus(be.Name, ParseBusMode(be.Mode))
			e.AddBus(bus)
		}
		bus.LoadElement(be)
	}
}

// SaveSession writes each clip and curve list of session next to doc and
// returns the element describing the whole session.
func SaveSession(doc *document.Document, session *Session, engine *Engine) (SessionElement, error) {
	tpb := session.TicksPerBeat()
	el := SessionElement{
		Name:         session.Name(),
		SampleRate:   session.SampleRate(),
		TicksPerBeat: tpb,
		Tempo:        session.Tempo(),
		Engine:       engine.SaveElement(),
	}

	for i, t := range session.MidiTracks() {
		te := TrackElement{
			Name:    t.Name(),
			Channel: t.MidiChannel(),
			Tag:     t.MidiTag(),
			Mute:    document.TextFromBool(t.IsMute()),
			Gain:    document.TextFromFloat(t.Gain()),
		}
		if bus := t.Bus(); bus != nil {
			te.Bus = bus.Name()
		}

		for j, c := range t.MidiClips() {
			path := doc.FilePath(fmt.Sprintf("track%d-clip%d.mid", i+1, j+1))
			if err := writeClip(path, c.Sequence()); err != nil {
				return SessionElement{}, fmt.Errorf("track %q: %w", t.Name(), err)
			}
			te.Clips = append(te.Clips, ClipElement{
				File:   doc.AddFile(path),
				Start:  c.Start(),
				Length: c.Length(),
			})
		}

		cf, err := curve.Save(doc, doc.FilePath(fmt.Sprintf("track%d-curves.mid", i+1)), t.Curves(), tpb)
		if err != nil {
			return SessionElement{}, fmt.Errorf("track %q curves: %w", t.Name(), err)
		}
		if cf.Filename != "" {
			te.Curves = &cf
		}

		el.Tracks = append(el.Tracks, te)
	}
	return el, nil
}

func writeClip(path string, seq *midi.Sequence) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := midi.WriteSMF(f, seq.TicksPerBeat, seq); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readClip(path string, index int, seq *midi.Sequence) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return midi.ReadSMFTrack(f, index, seq)
}

// LoadSession applies el to session and engine: timing, buses, then the
// tracks with their clips and curves. Mute is restored without touching
// the backend. A clip whose file cannot be read is skipped and logged.
func LoadSession(doc *document.Document, el SessionElement, session *Session, engine *Engine) error {
	if el.Name != "" {
		session.SetName(el.Name)
	}
	session.SetTiming(el.SampleRate, el.TicksPerBeat)
	if el.Tempo > 0 {
		session.SetTempo(el.Tempo)
	}
	engine.LoadElement(el.Engine)

	tpb := session.TicksPerBeat()
	for _, te := range el.Tracks {
		t := NewMidiTrack(engine, te.Name, engine.FindBus(te.Bus), te.Channel)
		t.SetGain(document.FloatFromText(te.Gain, 1.0))
		t.mute.Store(document.BoolFromText(te.Mute))

		for _, ce := range te.Clips {
			seq := midi.NewSequence(te.Name, t.MidiChannel(), tpb)
			if err := readClip(doc.ResolveFile(ce.File), ce.Track, seq); err != nil {
				debug.Warn("session", err, "clip %s", ce.File)
				continue
			}
			t.AddClip(seq, ce.Start, ce.Length)
		}

		if te.Curves != nil {
			var f curve.File
			f.Load(doc, *te.Curves)
			if err := f.Apply(t.Curves(), tpb); err != nil {
				return fmt.Errorf("track %q curves: %w", te.Name, err)
			}
		}

		session.AddTrack(t)
	}
	return nil
}
