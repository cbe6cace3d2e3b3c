package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midiseq/backend"
	"go-midiseq/curve"
	"go-midiseq/midi"
)

func TestAddClipOrdersByStart(t *testing.T) {
	h := newEngine(t)
	tr := NewMidiTrack(h.engine, "t", h.bus, 0x12)
	assert.Equal(t, uint8(2), tr.MidiChannel())
	assert.Equal(t, TrackMidi, tr.Type())

	c2 := tr.AddClip(notes(0), 48000, 100)
	c1 := tr.AddClip(notes(0), 0, 100)
	c3 := tr.AddClip(notes(0), 48000, 200)

	assert.Equal(t, []*MidiClip{c1, c2, c3}, tr.MidiClips())
	require.Len(t, tr.Clips(), 3)

	tr.RemoveClip(c2)
	assert.Equal(t, []*MidiClip{c1, c3}, tr.MidiClips())
}

func TestClipNaturalLength(t *testing.T) {
	h := newEngine(t)
	tr := NewMidiTrack(h.engine, "t", h.bus, 0)

	// the last note ends 540 ticks after the clip start
	c := tr.AddClip(notes(0, 480), 1000, 0)
	assert.Equal(t, uint64(27001), c.Length())
	assert.Equal(t, uint64(28001), c.End())
}

func TestClipRescalesSequenceResolution(t *testing.T) {
	h := newHarness(t)
	tr := h.track("t", 0)
	seq := midi.NewSequence("hires", 0, 960)
	seq.Add(960, midi.NoteOn{Note: 60, Velocity: 90, Duration: 10})
	tr.AddClip(seq, 0, 0)

	lores := midi.NewSequence("lores", 0, 240)
	lores.Add(240, midi.NoteOn{Note: 62, Velocity: 90, Duration: 120})
	tr.AddClip(lores, 0, 0)

	h.start(t, 0)
	queued := h.Queued()
	require.Len(t, queued, 2)
	assert.Equal(t, []uint64{480, 480}, ticksOf(queued))

	durations := map[uint8]uint32{}
	for _, ev := range queued {
		durations[ev.Note] = ev.Duration
	}
	assert.Equal(t, map[uint8]uint32{60: 5, 62: 240}, durations, "durations follow the session resolution")
}

func TestClipProcessClampsToClip(t *testing.T) {
	h := newHarness(t)
	tr := h.track("t", 0)
	// clip placed at tick 100 and cut after 200 ticks
	c := tr.AddClip(notes(0, 150, 250), 5000, 10000)

	h.start(t, 0)
	require.NoError(t, h.Seq().DropOutput())

	c.Process(1.0, 0, 48000)
	require.NoError(t, h.engine.Flush())
	assert.Equal(t, []uint64{100, 250}, ticksOf(h.Queued()))
}

func TestTrackGainScalesVelocity(t *testing.T) {
	h := newHarness(t)
	tr := h.track("t", 0)
	tr.SetGain(0.5)
	tr.AddClip(notes(0), 0, 0)

	h.start(t, 0)
	queued := h.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, uint8(50), queued[0].Velocity)

	tr.SetGain(-1)
	assert.Zero(t, tr.Gain())
}

func TestTrackProcessesCurves(t *testing.T) {
	h := newHarness(t)
	tr := h.track("t", 4)
	vol := curve.New(curve.Subject{Type: midi.KindController, Channel: 4, Param: 7}, curve.Hold)
	vol.Process = true
	vol.AddNode(0, 100)
	vol.AddNode(480, 20)
	tr.Curves().AddCurve(vol)

	idle := curve.New(curve.Subject{Type: midi.KindPitchBend, Channel: 4}, curve.Hold)
	idle.AddNode(0, 500)
	tr.Curves().AddCurve(idle)

	h.start(t, 0)

	var values []int32
	for _, ev := range h.Queued() {
		require.Equal(t, backend.EvController, ev.Type, "only processed curves play")
		assert.Equal(t, uint8(7), ev.Param)
		assert.Equal(t, uint8(4), ev.Channel)
		values = append(values, ev.Value)
	}
	assert.Equal(t, []int32{100, 20}, values)
}

func TestSetMuteWithoutEngineClient(t *testing.T) {
	h := newEngine(t)
	tr := NewMidiTrack(h.engine, "t", h.bus, 0)

	require.NoError(t, tr.SetMute(true))
	assert.True(t, tr.IsMute())
	require.NoError(t, tr.SetMute(false))
	assert.False(t, tr.IsMute())
}
