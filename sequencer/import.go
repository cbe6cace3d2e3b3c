package sequencer

import (
	"fmt"
	"strings"

	"go-midiseq/debug"
	"go-midiseq/midi"
)

// TrackNaming picks how imported tracks that got a patch are renamed
type TrackNaming int

const (
	NameByFile  TrackNaming = iota // keep the name read from the file
	NameByTrack                    // "Track N"
	NameByPatch                    // program name, "Drums" on the drum channel
)

func (n TrackNaming) String() string {
	switch n {
	case NameByTrack:
		return "track"
	case NameByPatch:
		return "patch"
	}
	return "file"
}

// ParseTrackNaming reads "file", "track" or "patch"; anything else is
// NameByFile
func ParseTrackNaming(s string) TrackNaming {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "track":
		return NameByTrack
	case "patch":
		return NameByPatch
	}
	return NameByFile
}

// drumChannel is General MIDI channel 10
const drumChannel = 9

// ImportSettings are the patches given to freshly imported tracks. A
// negative bank leaves bank select out.
type ImportSettings struct {
	Instrument     string
	InstrumentBank int
	DrumInstrument string
	DrumBank       int
	Naming         TrackNaming
}

func DefaultImportSettings() ImportSettings {
	return ImportSettings{InstrumentBank: -1, DrumBank: -1}
}

// Importer finishes imported tracks once their buses are open. Track
// numbers keep counting across imports.
type Importer struct {
	session  *Session
	settings ImportSettings
	number   int
}

func NewImporter(session *Session, settings ImportSettings) *Importer {
	return &Importer{session: session, settings: settings}
}

// Finish sends each track's patch through its bus and renames it. A
// bank or program found at the head of the track's first clip wins over
// the instrument bank; drum tracks always take the drum bank and fall
// back to program 0. It reports whether any track changed.
func (im *Importer) Finish(tracks []*MidiTrack) (bool, error) {
	changed := false
	for _, t := range tracks {
		ch := t.MidiChannel()
		drum := ch == drumChannel
		bank, prog := headPatch(t)

		instrument := im.settings.Instrument
		if drum {
			bank = im.settings.DrumBank
			instrument = im.settings.DrumInstrument
			if prog < 0 {
				prog = 0
			}
		} else if bank < 0 {
			bank = im.settings.InstrumentBank
		}
		if bank >= 0 || prog >= 0 || instrument != "" {
			changed = true
		}

		if bus := t.Bus(); bus != nil && prog >= 0 {
			if err := bus.SetPatch(ch, instrument, bank, prog, BankSelectNormal); err != nil {
				return changed, fmt.Errorf("patch %s: %w", t.Name(), err)
			}
		}

		if bank < 0 || prog < 0 {
			continue
		}
		if name := im.trackName(drum, prog); name != "" {
			t.SetName(name)
			changed = true
		}
		debug.Log("import", "%s ch=%d bank=%d prog=%d", t.Name(), ch+1, bank, prog)
	}
	return changed, nil
}

func (im *Importer) trackName(drum bool, prog int) string {
	switch im.settings.Naming {
	case NameByTrack:
		im.number++
		return im.session.UniqueTrackName(fmt.Sprintf("Track %d", im.number))
	case NameByPatch:
		if drum {
			return "Drums"
		}
		return gmProgramNames[prog&0x7f]
	}
	return ""
}

// headPatch returns the bank and program set before the first note of
// the track's first clip, -1 when absent
func headPatch(t *MidiTrack) (bank, prog int) {
	bank, prog = -1, -1
	clips := t.MidiClips()
	if len(clips) == 0 {
		return
	}
	msb, lsb := -1, -1
	for _, te := range clips[0].Sequence().Events() {
		switch ev := te.Event.(type) {
		case midi.NoteOn:
			return combineBank(msb, lsb), prog
		case midi.Controller:
			switch ev.Param {
			case ccBankMSB:
				msb = int(ev.Value)
			case ccBankLSB:
				lsb = int(ev.Value)
			}
		case midi.ProgramChange:
			prog = int(ev.Program)
		}
	}
	return combineBank(msb, lsb), prog
}

func combineBank(msb, lsb int) int {
	if msb < 0 && lsb < 0 {
		return -1
	}
	return max(msb, 0)<<7 | max(lsb, 0)
}

// General MIDI level 1 program names
var gmProgramNames = [128]string{
	"Acoustic Grand Piano", "Bright Acoustic Piano", "Electric Grand Piano", "Honky-tonk Piano",
	"Electric Piano 1", "Electric Piano 2", "Harpsichord", "Clavinet",
	"Celesta", "Glockenspiel", "Music Box", "Vibraphone",
	"Marimba", "Xylophone", "Tubular Bells", "Dulcimer",
	"Drawbar Organ", "Percussive Organ", "Rock Organ", "Church Organ",
	"Reed Organ", "Accordion", "Harmonica", "Tango Accordion",
	"Acoustic Guitar (nylon)", "Acoustic Guitar (steel)", "Electric Guitar (jazz)", "Electric Guitar (clean)",
	"Electric Guitar (muted)", "Overdriven Guitar", "Distortion Guitar", "Guitar Harmonics",
	"Acoustic Bass", "Electric Bass (finger)", "Electric Bass (pick)", "Fretless Bass",
	"Slap Bass 1", "Slap Bass 2", "Synth Bass 1", "Synth Bass 2",
	"Violin", "Viola", "Cello", "Contrabass",
	"Tremolo Strings", "Pizzicato Strings", "Orchestral Harp", "Timpani",
	"String Ensemble 1", "String Ensemble 2", "Synth Strings 1", "Synth Strings 2",
	"Choir Aahs", "Voice Oohs", "Synth Voice", "Orchestra Hit",
	"Trumpet", "Trombone", "Tuba", "Muted Trumpet",
	"French Horn", "Brass Section", "Synth Brass 1", "Synth Brass 2",
	"Soprano Sax", "Alto Sax", "Tenor Sax", "Baritone Sax",
	"Oboe", "English Horn", "Bassoon", "Clarinet",
	"Piccolo", "Flute", "Recorder", "Pan Flute",
	"Blown Bottle", "Shakuhachi", "Whistle", "Ocarina",
	"Lead 1 (square)", "Lead 2 (sawtooth)", "Lead 3 (calliope)", "Lead 4 (chiff)",
	"Lead 5 (charang)", "Lead 6 (voice)", "Lead 7 (fifths)", "Lead 8 (bass + lead)",
	"Pad 1 (new age)", "Pad 2 (warm)", "Pad 3 (polysynth)", "Pad 4 (choir)",
	"Pad 5 (bowed)", "Pad 6 (metallic)", "Pad 7 (halo)", "Pad 8 (sweep)",
	"FX 1 (rain)", "FX 2 (soundtrack)", "FX 3 (crystal)", "FX 4 (atmosphere)",
	"FX 5 (brightness)", "FX 6 (goblins)", "FX 7 (echoes)", "FX 8 (sci-fi)",
	"Sitar", "Banjo", "Shamisen", "Koto",
	"Kalimba", "Bagpipe", "Fiddle", "Shanai",
	"Tinkle Bell", "Agogo", "Steel Drums", "Woodblock",
	"Taiko Drum", "Melodic Tom", "Synth Drum", "Reverse Cymbal",
	"Guitar Fret Noise", "Breath Noise", "Seashore", "Bird Tweet",
	"Telephone Ring", "Helicopter", "Applause", "Gunshot",
}
