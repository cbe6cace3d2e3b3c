// Package backend defines the sequencer client the engine schedules into:
// ports, a tick-stamped timer queue, a pending output buffer and
// filtered removal of queued events.
package backend

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiseq/midi"
)

var (
	ErrClosed    = errors.New("backend: client closed")
	ErrNoQueue   = errors.New("backend: no such queue")
	ErrNoPort    = errors.New("backend: no such port")
	ErrQueueBusy = errors.New("backend: queue already running")
)

// PortCaps are port capability flags
type PortCaps uint8

const (
	CapRead      PortCaps = 1 << iota // others may read from the port
	CapWrite                          // others may write to the port
	CapSubsRead                       // read subscriptions allowed
	CapSubsWrite                      // write subscriptions allowed
)

func (c PortCaps) Has(flag PortCaps) bool {
	return c&flag == flag
}

// Tempo programs a queue timer
type Tempo struct {
	PPQ           int
	MicrosPerBeat uint32
}

// BPM returns beats per minute
func (t Tempo) BPM() float64 {
	if t.MicrosPerBeat == 0 {
		return 0
	}
	return 60_000_000 / float64(t.MicrosPerBeat)
}

// TempoFromBPM converts beats per minute to a tempo
func TempoFromBPM(ppq int, bpm float64) Tempo {
	if bpm <= 0 {
		bpm = 120
	}
	return Tempo{PPQ: ppq, MicrosPerBeat: uint32(60_000_000 / bpm)}
}

// EventType is the protocol event type
type EventType uint8

const (
	EvNote EventType = iota // note-on with an implied note-off after Duration
	EvNoteOn
	EvNoteOff
	EvKeyPress
	EvController
	EvPgmChange
	EvChanPress
	EvPitchBend
	EvSysEx
)

var eventTypeNames = [...]string{
	EvNote:       "NOTE",
	EvNoteOn:     "NOTEON",
	EvNoteOff:    "NOTEOFF",
	EvKeyPress:   "KEYPRESS",
	EvController: "CONTROLLER",
	EvPgmChange:  "PGMCHANGE",
	EvChanPress:  "CHANPRESS",
	EvPitchBend:  "PITCHBEND",
	EvSysEx:      "SYSEX",
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// Event is a tick-stamped protocol event. Direct events bypass the queue
// and go out on the next Drain.
type Event struct {
	Type   EventType
	Tag    uint8
	Source int // port id
	Queue  int
	Tick   uint64
	Direct bool

	Channel  uint8
	Note     uint8
	Velocity uint8
	Duration uint32
	Param    uint8
	Value    int32
	Data     []byte // framed sysex
}

// Message converts the event to a wire message. EvNote yields its note-on.
func (e Event) Message() gomidi.Message {
	ch := e.Channel & 0x0f
	switch e.Type {
	case EvNote, EvNoteOn:
		return gomidi.NoteOn(ch, e.Note&0x7f, e.Velocity&0x7f)
	case EvNoteOff:
		return gomidi.NoteOff(ch, e.Note&0x7f)
	case EvKeyPress:
		return gomidi.PolyAfterTouch(ch, e.Note&0x7f, uint8(e.Value)&0x7f)
	case EvController:
		return gomidi.ControlChange(ch, e.Param&0x7f, uint8(e.Value)&0x7f)
	case EvPgmChange:
		return gomidi.ProgramChange(ch, uint8(e.Value)&0x7f)
	case EvChanPress:
		return gomidi.AfterTouch(ch, uint8(e.Value)&0x7f)
	case EvPitchBend:
		return gomidi.Pitchbend(ch, int16(e.Value))
	case EvSysEx:
		return gomidi.Message(e.Data)
	}
	return nil
}

// NoteOff returns the release matching a note event
func (e Event) NoteOff() Event {
	off := e
	off.Type = EvNoteOff
	off.Velocity = 0
	off.Duration = 0
	off.Tick = e.Tick + uint64(e.Duration)
	return off
}

func (e Event) String() string {
	return fmt.Sprintf("%s ch=%d tick=%d tag=%d note=%d vel=%d param=%d value=%d",
		e.Type, e.Channel+1, e.Tick, e.Tag, e.Note, e.Velocity, e.Param, e.Value)
}

// FromEvent builds a protocol event from a sequence event
func FromEvent(channel uint8, ev midi.Event) Event {
	out := Event{Channel: channel & 0x0f}
	switch e := ev.(type) {
	case midi.NoteOn:
		out.Type = EvNote
		out.Note = e.Note
		out.Velocity = e.Velocity
		out.Duration = e.Duration
	case midi.KeyPress:
		out.Type = EvKeyPress
		out.Note = e.Note
		out.Value = int32(e.Value)
	case midi.Controller:
		out.Type = EvController
		out.Param = e.Param
		out.Value = int32(e.Value)
	case midi.ProgramChange:
		out.Type = EvPgmChange
		out.Value = int32(e.Program)
	case midi.ChannelPressure:
		out.Type = EvChanPress
		out.Value = int32(e.Value)
	case midi.PitchBend:
		out.Type = EvPitchBend
		out.Value = int32(e.Value)
	case midi.SysEx:
		out.Type = EvSysEx
		out.Data = midi.FrameSysEx(e.Data)
	}
	return out
}

// RemoveCondition selects which queued events RemoveEvents drops
type RemoveCondition uint16

const (
	RemoveInput       RemoveCondition = 1 << iota // pending input
	RemoveOutput                                  // undelivered output
	RemoveDest                                    // match destination queue
	RemoveDestChannel                             // match channel
	RemoveTimeBefore                              // tick < filter tick
	RemoveTimeAfter                               // tick >= filter tick
	RemoveTimeTick                                // filter time is in ticks
	RemoveEventType                               // match event type
	RemoveIgnoreOff                               // keep note-offs
	RemoveTagMatch                                // match tag
)

func (c RemoveCondition) Has(flag RemoveCondition) bool {
	return c&flag == flag
}

// RemoveFilter describes queued events to remove
type RemoveFilter struct {
	Condition RemoveCondition
	Queue     int
	Tag       uint8
	Channel   uint8
	Tick      uint64
	Type      EventType
}

// Match reports whether the filter selects e
func (f RemoveFilter) Match(e Event) bool {
	c := f.Condition
	if c.Has(RemoveDest) && e.Queue != f.Queue {
		return false
	}
	if c.Has(RemoveDestChannel) && e.Channel != f.Channel {
		return false
	}
	if c.Has(RemoveTimeAfter) && e.Tick < f.Tick {
		return false
	}
	if c.Has(RemoveTimeBefore) && e.Tick >= f.Tick {
		return false
	}
	if c.Has(RemoveEventType) && e.Type != f.Type {
		return false
	}
	if c.Has(RemoveIgnoreOff) && e.Type == EvNoteOff {
		return false
	}
	if c.Has(RemoveTagMatch) && e.Tag != f.Tag {
		return false
	}
	return true
}

// Sequencer is a client of the event delivery subsystem.
// Implementations must be safe for concurrent use.
type Sequencer interface {
	ClientID() int
	Name() string

	CreatePort(name string, caps PortCaps) (int, error)
	DeletePort(port int) error

	AllocQueue() (int, error)
	FreeQueue(queue int) error
	QueueTempo(queue int) (Tempo, error)
	SetQueueTempo(queue int, tempo Tempo) error
	StartQueue(queue int) error
	StopQueue(queue int) error
	QueueTick(queue int) (uint64, error)

	// Output appends to the pending buffer; nothing is sent until Drain.
	Output(ev Event) error
	Drain() error
	// DropOutput discards pending and queued, undelivered output.
	DropOutput() error
	RemoveEvents(filter RemoveFilter) (int, error)

	Close() error
}

// Opener opens a duplex client with the given name
type Opener func(clientName string) (Sequencer, error)
