package sequencer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midiseq/curve"
	"go-midiseq/document"
	"go-midiseq/midi"
)

func TestEngineElementRoundTrip(t *testing.T) {
	h := newEngine(t)
	require.NoError(t, h.bus.SetPatch(0, "Piano", 0, 0, BankSelectNormal))
	require.NoError(t, h.bus.SetPatch(9, "Drums", -1, 0, BankSelectNormal))
	h.engine.AddBus(NewBus("Keys In", BusInput))

	el := h.engine.SaveElement()
	assert.Equal(t, EngineElement{Buses: []BusElement{
		{Name: "Master", Mode: "duplex", Patches: []PatchElement{{0, "Piano"}, {9, "Drums"}}},
		{Name: "Keys In", Mode: "input"},
	}}, el)

	other := NewEngine(NewSession("s", testRate, testTPB, testTempo), failingOpener)
	other.LoadElement(el)
	require.Len(t, other.Buses(), 2)
	assert.Equal(t, BusInput, other.FindBus("Keys In").Mode())
	assert.Equal(t, "Drums", other.FindBus("Master").Instrument(9))
	assert.Equal(t, el, other.SaveElement())

	// loading again reuses buses by name
	other.LoadElement(el)
	assert.Len(t, other.Buses(), 2)
}

func TestSessionDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := document.New(filepath.Join(dir, "song.yml"))

	h := newEngine(t)
	h.session.SetName("song")
	h.session.SetTempo(100)
	require.NoError(t, h.bus.SetPatch(1, "Bass", 0, 33, BankSelectNormal))

	bass := h.track("bass", 1)
	bass.SetGain(0.75)
	bass.AddClip(notes(0, 480), 4800, 0)
	bass.AddClip(notes(0), 96000, 24000)
	bend := curve.New(curve.Subject{Type: midi.KindPitchBend, Channel: 1}, curve.Linear)
	bend.Process = true
	bend.AddNode(0, 0)
	bend.AddNode(480, 4000)
	bass.Curves().AddCurve(bend)

	lead := h.track("lead", 2)
	require.NoError(t, lead.SetMute(true))

	el, err := SaveSession(doc, h.session, h.engine)
	require.NoError(t, err)
	require.NoError(t, document.Save(doc.Path, el))

	assert.Equal(t, "song", el.Name)
	require.Len(t, el.Tracks, 2)
	assert.Equal(t, "song-track1-clip1.mid", filepath.Base(el.Tracks[0].Clips[0].File))
	assert.False(t, filepath.IsAbs(el.Tracks[0].Clips[0].File), "stored relative to the document")
	assert.Nil(t, el.Tracks[1].Curves, "no curve file without curves")

	var loaded SessionElement
	require.NoError(t, document.Load(doc.Path, &loaded))
	assert.Equal(t, el, loaded)

	other := newEngine(t)
	session := other.session
	require.NoError(t, LoadSession(doc, loaded, session, other.engine))

	assert.Equal(t, "song", session.Name())
	assert.Equal(t, 100.0, session.Tempo())
	assert.Equal(t, "Bass", other.bus.Instrument(1), "existing bus reused")

	tracks := session.MidiTracks()
	require.Len(t, tracks, 2)

	b := tracks[0]
	assert.Equal(t, "bass", b.Name())
	assert.Equal(t, uint8(1), b.MidiChannel())
	assert.Same(t, other.bus, b.Bus())
	assert.Equal(t, 0.75, b.Gain())
	assert.False(t, b.IsMute())

	clips := b.MidiClips()
	require.Len(t, clips, 2)
	assert.Equal(t, uint64(4800), clips[0].Start())
	assert.Equal(t, bass.MidiClips()[0].Length(), clips[0].Length())
	assert.Equal(t, uint64(24000), clips[1].Length())

	var ticks []uint64
	for _, te := range clips[0].Sequence().Events() {
		ticks = append(ticks, te.Tick)
		assert.Equal(t, uint32(60), te.Event.(midi.NoteOn).Duration)
	}
	assert.Equal(t, []uint64{0, 480}, ticks)

	c := b.Curves().FindCurve(bend.Subject)
	require.NotNil(t, c)
	assert.Equal(t, curve.Linear, c.Mode)
	assert.True(t, c.Process)
	assert.Equal(t, bend.Nodes(), c.Nodes())

	assert.True(t, tracks[1].IsMute())
	assert.NotEqual(t, b.MidiTag(), tracks[1].MidiTag())
}

func TestLoadSessionSkipsMissingClip(t *testing.T) {
	doc := document.New(filepath.Join(t.TempDir(), "song.yml"))
	h := newEngine(t)
	el := SessionElement{
		Tracks: []TrackElement{{
			Name:  "ghost",
			Bus:   "Master",
			Clips: []ClipElement{{File: "missing.mid", Start: 0, Length: 100}},
		}},
	}

	require.NoError(t, LoadSession(doc, el, h.session, h.engine))
	tracks := h.session.MidiTracks()
	require.Len(t, tracks, 1)
	assert.Empty(t, tracks[0].Clips())
	assert.Equal(t, 1.0, tracks[0].Gain())
}
