package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiseq/midi"
)

func TestTempo(t *testing.T) {
	tempo := TempoFromBPM(480, 120)
	assert.Equal(t, Tempo{PPQ: 480, MicrosPerBeat: 500000}, tempo)
	assert.InDelta(t, 120.0, tempo.BPM(), 1e-9)

	assert.Equal(t, uint32(500000), TempoFromBPM(96, 0).MicrosPerBeat)
	assert.Zero(t, Tempo{}.BPM())
}

func TestFromEvent(t *testing.T) {
	ev := FromEvent(0x13, midi.NoteOn{Note: 60, Velocity: 100, Duration: 240})
	assert.Equal(t, EvNote, ev.Type)
	assert.Equal(t, uint8(3), ev.Channel)
	assert.Equal(t, uint32(240), ev.Duration)

	sx := FromEvent(0, midi.SysEx{Data: []byte{0x41, 0x10}})
	assert.Equal(t, EvSysEx, sx.Type)
	assert.Equal(t, []byte{0xF0, 0x41, 0x10, 0xF7}, sx.Data)

	pb := FromEvent(1, midi.PitchBend{Value: -8192})
	assert.Equal(t, int32(-8192), pb.Value)
}

func TestEventMessage(t *testing.T) {
	note := Event{Type: EvNote, Channel: 2, Note: 64, Velocity: 90, Duration: 10, Tick: 100}
	assert.Equal(t, gomidi.NoteOn(2, 64, 90), note.Message())

	off := note.NoteOff()
	assert.Equal(t, EvNoteOff, off.Type)
	assert.Equal(t, uint64(110), off.Tick)
	assert.Equal(t, gomidi.NoteOff(2, 64), off.Message())

	cc := Event{Type: EvController, Channel: 1, Param: 0x20, Value: 5}
	assert.Equal(t, gomidi.ControlChange(1, 0x20, 5), cc.Message())

	sx := Event{Type: EvSysEx, Data: []byte{0xF0, 0x7E, 0xF7}}
	assert.Equal(t, gomidi.Message{0xF0, 0x7E, 0xF7}, sx.Message())
}

func TestRemoveFilterMatch(t *testing.T) {
	f := RemoveFilter{
		Condition: RemoveOutput | RemoveTimeAfter | RemoveTimeTick | RemoveDestChannel | RemoveIgnoreOff | RemoveTagMatch,
		Tag:       7,
		Channel:   2,
		Tick:      100,
	}

	base := Event{Type: EvNote, Tag: 7, Channel: 2, Tick: 100}
	assert.True(t, f.Match(base))

	early := base
	early.Tick = 99
	assert.False(t, f.Match(early))

	other := base
	other.Tag = 8
	assert.False(t, f.Match(other), "other tracks at the same tick survive")

	ch := base
	ch.Channel = 3
	assert.False(t, f.Match(ch))

	off := base
	off.Type = EvNoteOff
	assert.False(t, f.Match(off), "note-offs are kept")
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "PGMCHANGE", EvPgmChange.String())
	assert.Equal(t, "EventType(99)", EventType(99).String())
	assert.True(t, (CapRead | CapSubsRead).Has(CapSubsRead))
	assert.False(t, CapRead.Has(CapWrite))
}
