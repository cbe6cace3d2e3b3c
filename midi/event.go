package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// SysEx framing bytes
const (
	SysExStart uint8 = 0xF0
	SysExEnd   uint8 = 0xF7
)

// Kind identifies which variant an Event holds
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindKeyPress
	KindController
	KindProgramChange
	KindChannelPressure
	KindPitchBend
	KindSysEx
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "NOTEON"
	case KindKeyPress:
		return "KEYPRESS"
	case KindController:
		return "CONTROLLER"
	case KindProgramChange:
		return "PGMCHANGE"
	case KindChannelPressure:
		return "CHANPRESS"
	case KindPitchBend:
		return "PITCHBEND"
	case KindSysEx:
		return "SYSEX"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one of NoteOn, KeyPress, Controller, ProgramChange,
// ChannelPressure, PitchBend or SysEx.
type Event interface {
	Kind() Kind
	isEvent()
}

// NoteOn starts a note. The note-off is implied Duration ticks later.
type NoteOn struct {
	Note     uint8
	Velocity uint8
	Duration uint32
}

// KeyPress is polyphonic aftertouch
type KeyPress struct {
	Note  uint8
	Value uint8
}

type Controller struct {
	Param uint8
	Value uint8
}

type ProgramChange struct {
	Program uint8
}

type ChannelPressure struct {
	Value uint8
}

// PitchBend value is centered on zero (-8192..8191)
type PitchBend struct {
	Value int16
}

// SysEx data excludes the F0/F7 framing
type SysEx struct {
	Data []byte
}

func (NoteOn) Kind() Kind          { return KindNoteOn }
func (KeyPress) Kind() Kind        { return KindKeyPress }
func (Controller) Kind() Kind      { return KindController }
func (ProgramChange) Kind() Kind   { return KindProgramChange }
func (ChannelPressure) Kind() Kind { return KindChannelPressure }
func (PitchBend) Kind() Kind       { return KindPitchBend }
func (SysEx) Kind() Kind           { return KindSysEx }

func (NoteOn) isEvent()          {}
func (KeyPress) isEvent()        {}
func (Controller) isEvent()      {}
func (ProgramChange) isEvent()   {}
func (ChannelPressure) isEvent() {}
func (PitchBend) isEvent()       {}
func (SysEx) isEvent()           {}

// FrameSysEx wraps data in F0 ... F7
func FrameSysEx(data []byte) []byte {
	framed := make([]byte, 0, len(data)+2)
	framed = append(framed, SysExStart)
	framed = append(framed, data...)
	return append(framed, SysExEnd)
}

// Value returns the single data value an event carries, used by curves.
// NoteOn yields its velocity, PitchBend its signed bend, SysEx zero.
func Value(ev Event) int {
	switch e := ev.(type) {
	case NoteOn:
		return int(e.Velocity)
	case KeyPress:
		return int(e.Value)
	case Controller:
		return int(e.Value)
	case ProgramChange:
		return int(e.Program)
	case ChannelPressure:
		return int(e.Value)
	case PitchBend:
		return int(e.Value)
	}
	return 0
}

// Message encodes ev as a wire message on channel. NoteOn yields only the
// note-on part; callers schedule the note-off from Duration.
func Message(channel uint8, ev Event) gomidi.Message {
	ch := channel & 0x0f
	switch e := ev.(type) {
	case NoteOn:
		return gomidi.NoteOn(ch, e.Note&0x7f, e.Velocity&0x7f)
	case KeyPress:
		return gomidi.PolyAfterTouch(ch, e.Note&0x7f, e.Value&0x7f)
	case Controller:
		return gomidi.ControlChange(ch, e.Param&0x7f, e.Value&0x7f)
	case ProgramChange:
		return gomidi.ProgramChange(ch, e.Program&0x7f)
	case ChannelPressure:
		return gomidi.AfterTouch(ch, e.Value&0x7f)
	case PitchBend:
		return gomidi.Pitchbend(ch, e.Value)
	case SysEx:
		return gomidi.Message(FrameSysEx(e.Data))
	}
	return nil
}

// FromMessage decodes a wire message into an Event and its channel.
// Note-offs (and note-ons with zero velocity) return ok=false since they
// have no standalone representation.
func FromMessage(msg gomidi.Message) (ev Event, channel uint8, ok bool) {
	var ch, key, vel, ctl, val, prog, pressure uint8
	var rel int16
	var abs uint16
	var data []byte

	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			return nil, ch, false
		}
		return NoteOn{Note: key, Velocity: vel}, ch, true
	case msg.GetPolyAfterTouch(&ch, &key, &pressure):
		return KeyPress{Note: key, Value: pressure}, ch, true
	case msg.GetControlChange(&ch, &ctl, &val):
		return Controller{Param: ctl, Value: val}, ch, true
	case msg.GetProgramChange(&ch, &prog):
		return ProgramChange{Program: prog}, ch, true
	case msg.GetAfterTouch(&ch, &pressure):
		return ChannelPressure{Value: pressure}, ch, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return PitchBend{Value: rel}, ch, true
	case msg.GetSysEx(&data):
		return SysEx{Data: append([]byte(nil), data...)}, 0, true
	}
	return nil, 0, false
}
